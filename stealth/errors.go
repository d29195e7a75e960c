// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package stealth

import (
	"errors"
	"fmt"

	"github.com/AmaanSayyad/PrivatePay/codec"
)

var (
	// ErrInvalidLength is returned when an input does not have the byte count its role requires
	ErrInvalidLength = codec.ErrInvalidLength
	// ErrOddLength is returned for hex input with an odd number of digits
	ErrOddLength = codec.ErrOddLength
	// ErrInvalidHexDigit is returned for hex input with a non-hex character
	ErrInvalidHexDigit = codec.ErrInvalidHexDigit

	// ErrInvalidPrefix is returned when a compressed public key does not start with 0x02 or 0x03
	ErrInvalidPrefix = errors.New("invalid public key prefix")
	// ErrInvalidPoint is returned when bytes are not a secp256k1 point, or a
	// derived point is the point at infinity
	ErrInvalidPoint = errors.New("invalid curve point")
	// ErrInvalidScalar is returned when a private key is zero or not below the group order
	ErrInvalidScalar = errors.New("invalid private key scalar")
	// ErrInsecureRandomness is returned when the secure random source fails
	ErrInsecureRandomness = errors.New("secure random source unavailable")
)

// ValidationError reports which input field failed validation and why.
// It unwraps to one of the error kinds above.
type ValidationError struct {
	Field  string
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Field, e.Err, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func fieldError(field string, err error, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// withField relabels a validation error with the caller's field name,
// leaving other errors untouched.
func withField(field string, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return &ValidationError{Field: field, Err: verr.Err, Detail: verr.Detail}
	}
	return err
}
