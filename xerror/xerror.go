// Copyright 2021 The VPN House Authors. All rights reserved.
// Use of this source code is governed by a AGPL-style
// license that can be found in the LICENSE file.

package xerror

import (
	"errors"
	"strings"

	"go.uber.org/zap"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConfiguration:
		return "configuration"
	default:
		return "internal"
	}
}

// Error carries a kind, a human readable message, an optional cause
// and the zap fields describing the failed operation.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Fields  []zap.Field
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ZapFields returns the fields to log the error with, the error itself included.
func (e *Error) ZapFields() []zap.Field {
	fields := make([]zap.Field, 0, len(e.Fields)+2)
	fields = append(fields, zap.String("kind", e.Kind.String()))
	fields = append(fields, e.Fields...)
	if e.Cause != nil {
		fields = append(fields, zap.Error(e.Cause))
	}
	return fields
}

func newError(kind Kind, msg string, cause error, fields ...zap.Field) error {
	return &Error{
		Kind:    kind,
		Message: msg,
		Cause:   cause,
		Fields:  fields,
	}
}

func EInternalError(msg string, cause error, fields ...zap.Field) error {
	return newError(KindInternal, msg, cause, fields...)
}

func EInvalidArgument(msg string, cause error, fields ...zap.Field) error {
	return newError(KindInvalidArgument, msg, cause, fields...)
}

func EConfiguration(msg string, cause error, fields ...zap.Field) error {
	return newError(KindConfiguration, msg, cause, fields...)
}

// KindOf reports the kind of the outermost *Error in the chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindInternal, false
}

func IsInternal(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindInternal
}

func IsInvalidArgument(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindInvalidArgument
}

func IsConfiguration(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConfiguration
}
