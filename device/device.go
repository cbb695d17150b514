// Package device classifies user agents as phones, tablets or desktops.
//
// Classifiers follow the Mobile-Detect convention: IsMobile is true for
// any handheld device, tablets included. Use Classify to get the
// mutually exclusive Kind.
package device

import (
	"fmt"
	"strings"

	"github.com/avct/uasurfer"
	"github.com/mileusna/useragent"
)

type Kind string

const (
	KindPhone   Kind = "phone"
	KindTablet  Kind = "tablet"
	KindDesktop Kind = "desktop"
)

const (
	BackendUserAgent = "useragent"
	BackendSurfer    = "uasurfer"
)

type Classifier interface {
	IsMobile(userAgent string) bool
	IsTablet(userAgent string) bool
}

// Classify combines the classifier answers: a tablet is never a phone,
// anything neither mobile nor tablet is a desktop.
func Classify(c Classifier, userAgent string) Kind {
	mobile := c.IsMobile(userAgent)
	tablet := c.IsTablet(userAgent)
	switch {
	case tablet:
		return KindTablet
	case mobile:
		return KindPhone
	default:
		return KindDesktop
	}
}

// ByName returns the classifier registered under name, empty name means the default one.
func ByName(name string) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendUserAgent:
		return NewUserAgent(), nil
	case BackendSurfer:
		return NewSurfer(), nil
	default:
		return nil, fmt.Errorf("unknown device detection backend %q", name)
	}
}

// UserAgent is backed by github.com/mileusna/useragent.
type UserAgent struct{}

func NewUserAgent() *UserAgent {
	return &UserAgent{}
}

func (UserAgent) IsMobile(ua string) bool {
	if ua == "" {
		return false
	}
	info := useragent.Parse(ua)
	return info.Mobile || info.Tablet
}

func (UserAgent) IsTablet(ua string) bool {
	if ua == "" {
		return false
	}
	return useragent.Parse(ua).Tablet
}

// Surfer is backed by github.com/avct/uasurfer.
type Surfer struct{}

func NewSurfer() *Surfer {
	return &Surfer{}
}

func (Surfer) IsMobile(ua string) bool {
	if ua == "" {
		return false
	}
	switch uasurfer.Parse(ua).DeviceType {
	case uasurfer.DevicePhone, uasurfer.DeviceTablet, uasurfer.DeviceWearable:
		return true
	default:
		return false
	}
}

func (Surfer) IsTablet(ua string) bool {
	if ua == "" {
		return false
	}
	return uasurfer.Parse(ua).DeviceType == uasurfer.DeviceTablet
}
