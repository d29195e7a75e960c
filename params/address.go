// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package params

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownChain is returned when no address format is registered for a chain name
	ErrUnknownChain = errors.New("unknown chain")
	// ErrInvalidAddressFormat is returned when an address format cannot produce addresses
	ErrInvalidAddressFormat = errors.New("invalid address format")
)

// AddressFormat describes how a chain turns a stealth public key hash into an
// account address: the first Width bytes of the hash are kept and left-padded
// with zeros to Size bytes, then hex encoded behind Prefix.
type AddressFormat struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`  // Hash bytes kept
	Size   int    `json:"size"`   // Canonical address size in bytes
	Prefix string `json:"prefix"` // Address marker, e.g. "0x"
}

// AptosAddressFormat is the format PrivatePay uses on Aptos: 16 hash bytes
// padded to a 32-byte account address.
var AptosAddressFormat = AddressFormat{
	Name:   "aptos",
	Width:  16,
	Size:   32,
	Prefix: "0x",
}

// FullAddressFormat keeps the whole 32-byte hash.
var FullAddressFormat = AddressFormat{
	Name:   "full",
	Width:  32,
	Size:   32,
	Prefix: "0x",
}

var addressFormats = map[string]AddressFormat{
	AptosAddressFormat.Name: AptosAddressFormat,
	FullAddressFormat.Name:  FullAddressFormat,
}

// LookupAddressFormat returns the registered format for a chain name
func LookupAddressFormat(name string) (AddressFormat, error) {
	f, ok := addressFormats[strings.ToLower(name)]
	if !ok {
		return AddressFormat{}, fmt.Errorf("%w: %q", ErrUnknownChain, name)
	}
	return f, nil
}

// Validate checks that the format can be applied to a 32-byte hash
func (f AddressFormat) Validate() error {
	if f.Width <= 0 || f.Width > 32 {
		return fmt.Errorf("%w: width %d out of range", ErrInvalidAddressFormat, f.Width)
	}
	if f.Size < f.Width {
		return fmt.Errorf("%w: size %d smaller than width %d", ErrInvalidAddressFormat, f.Size, f.Width)
	}
	return nil
}

// HexLength returns the number of characters of an address in this format, prefix included
func (f AddressFormat) HexLength() int {
	return len(f.Prefix) + 2*f.Size
}

// String implements the stringer interface
func (f AddressFormat) String() string {
	return fmt.Sprintf("%s(width: %d, size: %d)", f.Name, f.Width, f.Size)
}
