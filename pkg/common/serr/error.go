// Copyright 2026 The Scribble Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package serr defines the coded errors used across the scribble pipeline.
// Every failure that crosses a package boundary is a *Error carrying a
// stable uint16 code, so callers can branch on IsCode instead of matching
// message text.
package serr

import (
	"errors"
	"fmt"
)

const (
	Ok uint16 = 0

	// Group 1: user-correctable query errors. These are raised during
	// validation and never reach the scan stage.
	ErrInvalidQuery uint16 = 20100
	ErrNoSuchColumn uint16 = 20101
	ErrBadConfig    uint16 = 20102

	// Group 2: scan and reader errors.
	ErrScan          uint16 = 20200
	ErrReaderIO      uint16 = 20201
	ErrDatasetClosed uint16 = 20202
	ErrCancelled     uint16 = 20203

	// Group 3: internal invariant violations.
	ErrInternal uint16 = 20300
	ErrEncode   uint16 = 20301

	errEnd uint16 = 20302
)

var errorMsgRefer = map[uint16]string{
	ErrInvalidQuery:  "invalid query: %s",
	ErrNoSuchColumn:  "no such column '%s'",
	ErrBadConfig:     "invalid configuration: %s",
	ErrScan:          "scan failed at chunk offset %d: %s",
	ErrReaderIO:      "reader io error: %s",
	ErrDatasetClosed: "dataset is closed",
	ErrCancelled:     "request cancelled",
	ErrInternal:      "internal error: %s",
	ErrEncode:        "encode error: %s",
}

// Error is a coded pipeline error. The field name, when set, identifies
// the offending part of the user's selection.
type Error struct {
	code    uint16
	message string
	field   string
}

func newError(code uint16, args ...any) *Error {
	format, ok := errorMsgRefer[code]
	if !ok {
		panic(fmt.Sprintf("unknown scribble error code: %d", code))
	}
	if len(args) == 0 {
		return &Error{code: code, message: format}
	}
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

// Field returns the user-visible field name attached to the error, or ""
// if none applies.
func (e *Error) Field() string {
	return e.field
}

// WithField tags the error with the offending selection field and returns
// the same error for chaining.
func (e *Error) WithField(field string) *Error {
	e.field = field
	return e
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code uint16) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.code == code
	}
	return false
}

func NewInvalidQuery(field string, msg string, args ...any) *Error {
	return newError(ErrInvalidQuery, fmt.Sprintf(msg, args...)).WithField(field)
}

func NewNoSuchColumn(name string) *Error {
	return newError(ErrNoSuchColumn, name).WithField(name)
}

func NewBadConfig(msg string, args ...any) *Error {
	return newError(ErrBadConfig, fmt.Sprintf(msg, args...))
}

// NewScan wraps a reader failure observed at the given chunk offset.
func NewScan(offset int64, cause error) *Error {
	return newError(ErrScan, offset, cause)
}

func NewReaderIO(cause error) *Error {
	return newError(ErrReaderIO, cause)
}

func NewDatasetClosed() *Error {
	return newError(ErrDatasetClosed)
}

func NewCancelled() *Error {
	return newError(ErrCancelled)
}

func NewInternal(msg string, args ...any) *Error {
	return newError(ErrInternal, fmt.Sprintf(msg, args...))
}

func NewEncode(msg string, args ...any) *Error {
	return newError(ErrEncode, fmt.Sprintf(msg, args...))
}
