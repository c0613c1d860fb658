// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cipher

import (
	"github.com/mutecomm/mutefs/log"
	"golang.org/x/crypto/blake2b"
)

// KDFPersonal is the personalization string of all key derivations.
const KDFPersonal = "3ma-e2e"

// KDF derives a 32-byte key from key for the given salt and personalization.
// It computes keyed BLAKE2b-256 over personal||salt.
func KDF(key []byte, salt, personal string) *[32]byte {
	h, err := blake2b.New256(key)
	if err != nil {
		// only happens for keys longer than 64 bytes
		panic(log.Critical(err))
	}
	h.Write([]byte(personal))
	h.Write([]byte(salt))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return &out
}

// Hash512 returns the BLAKE2b-512 hash of the concatenation of parts.
func Hash512(parts ...[]byte) *[64]byte {
	h, err := blake2b.New512(nil)
	if err != nil {
		panic(log.Critical(err))
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out [64]byte
	copy(out[:], h.Sum(nil))
	return &out
}
