// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package params

import (
	"fmt"
)

// Version information
const (
	VersionMajor = 1       // Major version component
	VersionMinor = 0       // Minor version component
	VersionPatch = 0       // Patch version component
	VersionMeta  = "alpha" // Version metadata
)

// Version holds the textual version string
var Version = func() string {
	return fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}()

// VersionWithMeta holds the textual version string including metadata
var VersionWithMeta = func() string {
	v := Version
	if VersionMeta != "" {
		v += "-" + VersionMeta
	}
	return v
}()

// Stealth protocol constants
const (
	// PrivateKeyLength is the size of a secp256k1 scalar
	PrivateKeyLength = 32

	// PublicKeyLength is the size of a compressed secp256k1 point
	PublicKeyLength = 33

	// SharedSecretLength is the size of a compressed ECDH point
	SharedSecretLength = PublicKeyLength

	// MetaAddressSeparator splits the spend and viewing keys in a stored meta address
	MetaAddressSeparator = ":"

	// MaxKeyDraws bounds how many times key generation redraws from the random
	// source before giving up on it
	MaxKeyDraws = 16
)
