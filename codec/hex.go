// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

// Package codec holds the hex/byte conversions shared by every PrivatePay
// package. Keys, secrets and addresses travel as lower-case hex strings with an
// optional 0x prefix; this is the only place that parses or prints them.
package codec

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// ErrOddLength is returned when a hex string has an odd number of digits
	ErrOddLength = errors.New("hex string has odd length")
	// ErrInvalidHexDigit is returned when a hex string contains a non-hex character
	ErrInvalidHexDigit = errors.New("invalid hex digit")
	// ErrInvalidLength is returned when decoded bytes do not have the size required for their role
	ErrInvalidLength = errors.New("invalid length")
)

// Has0xPrefix reports whether s starts with 0x or 0X
func Has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// Strip0x removes an optional 0x/0X prefix
func Strip0x(s string) string {
	if Has0xPrefix(s) {
		return s[2:]
	}
	return s
}

// HexToBytes decodes a hex string, with or without 0x prefix.
// The empty string and a bare "0x" decode to an empty slice.
func HexToBytes(s string) ([]byte, error) {
	b, err := hexutil.Decode("0x" + Strip0x(s))
	switch {
	case err == nil:
		return b, nil
	case errors.Is(err, hexutil.ErrOddLength):
		return nil, ErrOddLength
	case errors.Is(err, hexutil.ErrSyntax):
		return nil, ErrInvalidHexDigit
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidHexDigit, err)
	}
}

// BytesToHex encodes b as lower-case hex with a 0x prefix
func BytesToHex(b []byte) string {
	return hexutil.Encode(b)
}

// HexToFixed decodes s and checks it is exactly size bytes long
func HexToFixed(s string, size int) ([]byte, error) {
	b, err := HexToBytes(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidLength, size, len(b))
	}
	return b, nil
}

// Normalize re-encodes a valid hex string in canonical form (lower case, 0x prefix)
func Normalize(s string) (string, error) {
	b, err := HexToBytes(s)
	if err != nil {
		return "", err
	}
	return BytesToHex(b), nil
}

// LeftPad returns b left-padded with zero bytes to size. Inputs already at
// least size bytes long are returned unchanged.
func LeftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	padded := make([]byte, size)
	copy(padded[size-len(b):], b)
	return padded
}
