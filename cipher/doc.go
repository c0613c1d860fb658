// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cipher defines the cryptographic primitives of mutefs: Curve25519
// key pairs and Diffie-Hellman, the BLAKE2b based key derivation function,
// NaCl secretbox encryption, and AES-256 for key files.
package cipher
