// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package poolapi

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Configuration errors.  These are returned before any request is made and
// are never worth retrying.
var (
	ErrUnsupportedVersion  = errors.New("unsupported pool API version")
	ErrInsecureEndpoint    = errors.New("pool API must be served over HTTPS to protect API tokens")
	ErrNoCompatibleVersion = errors.New("pool advertises no compatible API version")
)

// ErrNotSupportedAtVersion is returned when a call is made that the
// negotiated API version does not provide.
var ErrNotSupportedAtVersion = errors.New("method not supported by the client's API version")

// ErrMissingData is returned when a pool reports success but leaves out a
// required part of the payload.
var ErrMissingData = errors.New("pool response is missing required data")

// TransportError describes a request that did not produce a 2xx HTTP
// response.  StatusCode is zero when no response was received at all.
type TransportError struct {
	Method     string
	StatusCode int
	Status     string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: transport error: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("%s: unexpected HTTP status %s", e.Method, e.Status)
}

// Unwrap returns the underlying network error, if any.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectedError is an explicit failure reported in the response envelope.
type RejectedError struct {
	Method  string
	Code    codes.Code
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: pool rejected request (%v): %s", e.Method,
		e.Code, e.Message)
}

// InvalidDataError is returned when a payload field is present but holds a
// value the client cannot accept.
type InvalidDataError struct {
	Field string
	Err   error
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid %s in pool response: %v", e.Field, e.Err)
}

func (e *InvalidDataError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err was caused by an unusable pool
// configuration: an unsupported version or an insecure endpoint.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrInsecureEndpoint) ||
		errors.Is(err, ErrNoCompatibleVersion)
}

// IsProtocolError reports whether err came back from talking to a pool:
// an HTTP failure, an envelope rejection or a malformed payload.
func IsProtocolError(err error) bool {
	var te *TransportError
	var re *RejectedError
	var ie *InvalidDataError
	return errors.As(err, &te) || errors.As(err, &re) ||
		errors.As(err, &ie) || errors.Is(err, ErrMissingData)
}

// IsRejectedWith reports whether err is an envelope rejection carrying code.
func IsRejectedWith(err error, code codes.Code) bool {
	var re *RejectedError
	return errors.As(err, &re) && re.Code == code
}
