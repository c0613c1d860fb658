// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cipher

import (
	"errors"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrMessageAuthentication is raised when a secretbox could not be opened.
var ErrMessageAuthentication = errors.New("cipher: message authentication failed")

var zeroNonce [24]byte

// SecretBoxSeal encrypts and authenticates message with key. A zero nonce
// is used, therefore each key must only be used for a single message.
func SecretBoxSeal(message []byte, key *[32]byte) []byte {
	return secretbox.Seal(nil, message, &zeroNonce, key)
}

// SecretBoxOpen authenticates and decrypts box sealed by SecretBoxSeal.
func SecretBoxOpen(box []byte, key *[32]byte) ([]byte, error) {
	message, ok := secretbox.Open(nil, box, &zeroNonce, key)
	if !ok {
		return nil, ErrMessageAuthentication
	}
	return message, nil
}
