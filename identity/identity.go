// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package identity contains the long-term identities of mutefs parties and
// helper functions to check them.
package identity

import (
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/mutecomm/mutefs/cipher"
	"github.com/mutecomm/mutefs/log"
)

// Length is the length of an identity string.
const Length = 8

// Alphabet defines the characters allowed in identities.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789*"

// ErrInvalid is returned if an identity is not well-formed.
var ErrInvalid = errors.New("identity: identity is not well-formed")

// Check returns ErrInvalid if id is not a well-formed identity.
func Check(id string) error {
	if len(id) != Length {
		return ErrInvalid
	}
	for _, c := range id {
		if !strings.ContainsRune(Alphabet, c) {
			return ErrInvalid
		}
	}
	return nil
}

// KeyPair is the long-term key pair of a local identity.
type KeyPair struct {
	identity string
	key      *cipher.Curve25519Key
}

// Generate creates a new key pair for id.
func Generate(id string, rand io.Reader) (*KeyPair, error) {
	if err := Check(id); err != nil {
		return nil, log.Error(err)
	}
	key, err := cipher.Curve25519Generate(rand)
	if err != nil {
		return nil, err
	}
	return &KeyPair{identity: id, key: key}, nil
}

// FromSecret returns the key pair for id with the given private key.
func FromSecret(id string, secret []byte) (*KeyPair, error) {
	if err := Check(id); err != nil {
		return nil, log.Error(err)
	}
	key, err := cipher.NewCurve25519Key(secret)
	if err != nil {
		return nil, err
	}
	return &KeyPair{identity: id, key: key}, nil
}

// FromBase64 is like FromSecret with the private key given in base64.
func FromBase64(id, secret string) (*KeyPair, error) {
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, log.Error(err)
	}
	return FromSecret(id, raw)
}

// Identity returns the identity string.
func (kp *KeyPair) Identity() string {
	return kp.identity
}

// PublicKey returns the long-term public key.
func (kp *KeyPair) PublicKey() *[32]byte {
	return kp.key.PublicKey()
}

// PrivateKey returns the long-term private key.
func (kp *KeyPair) PrivateKey() *[32]byte {
	return kp.key.PrivateKey()
}

// SharedSecret computes the DH shared secret with peerPublicKey.
func (kp *KeyPair) SharedSecret(peerPublicKey *[32]byte) (*[32]byte, error) {
	return cipher.ECDH(kp.key.PrivateKey(), peerPublicKey, kp.key.PublicKey())
}
