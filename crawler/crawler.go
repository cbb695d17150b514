// Package crawler tells automated clients from people by their user agent.
package crawler

import (
	"strings"

	"github.com/mileusna/useragent"
	"github.com/x-way/crawlerdetect"
)

// Classifier is the crawler detection contract the inspector depends on.
type Classifier interface {
	IsCrawler(userAgent string) bool
	// Match returns the name or signature that identified the crawler, "" for people.
	Match(userAgent string) string
}

// Detector checks the CrawlerDetect pattern set, exclusions included, and
// falls back to the bot flag of the user agent parser. Safe for concurrent use.
type Detector struct {
	patterns *crawlerdetect.CrawlerDetect
}

func New() *Detector {
	return &Detector{patterns: crawlerdetect.New()}
}

func (d *Detector) IsCrawler(userAgent string) bool {
	return d.Match(userAgent) != ""
}

// Match prefers the well known name reported by the parser, e.g. "Googlebot",
// over the raw pattern text.
func (d *Detector) Match(userAgent string) string {
	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		return ""
	}

	parsed := parserBot(ua)
	if !d.patterns.IsCrawler(ua) {
		return parsed
	}
	if parsed != "" {
		return parsed
	}
	if m := strings.TrimSpace(d.patterns.Matches(ua)); m != "" {
		return m
	}
	return ua
}

func parserBot(ua string) string {
	info := useragent.Parse(ua)
	if !info.Bot {
		return ""
	}
	if info.Name != "" {
		return info.Name
	}
	return ua
}
