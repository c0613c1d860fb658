// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cipher

import (
	"crypto/subtle"
	"io"

	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/util/bzero"
	"golang.org/x/crypto/curve25519"
)

// Curve25519Key holds a Curve25519 key pair. The private key can be wiped
// while the public key stays available.
type Curve25519Key struct {
	publicKey  *[32]byte
	privateKey *[32]byte
}

// Curve25519Generate generates a new Curve25519 key pair.
func Curve25519Generate(rand io.Reader) (*Curve25519Key, error) {
	var c Curve25519Key
	c.privateKey = new([32]byte)
	if _, err := io.ReadFull(rand, c.privateKey[:]); err != nil {
		return nil, log.Error(err)
	}
	c.publicKey = new([32]byte)
	curve25519.ScalarBaseMult(c.publicKey, c.privateKey)
	return &c, nil
}

// NewCurve25519Key returns a key pair for the given private key with the
// public key derived from it.
func NewCurve25519Key(privateKey []byte) (*Curve25519Key, error) {
	var c Curve25519Key
	if err := c.SetPrivateKey(privateKey); err != nil {
		return nil, err
	}
	c.publicKey = new([32]byte)
	curve25519.ScalarBaseMult(c.publicKey, c.privateKey)
	return &c, nil
}

// PublicKey returns the public key of c.
func (c *Curve25519Key) PublicKey() *[32]byte {
	return c.publicKey
}

// PrivateKey returns the private key of c, nil if it has been wiped.
func (c *Curve25519Key) PrivateKey() *[32]byte {
	return c.privateKey
}

// SetPublicKey sets the public key of c to key.
// SetPublicKey returns an error, if len(key) != 32.
func (c *Curve25519Key) SetPublicKey(key []byte) error {
	if len(key) != 32 {
		return log.Errorf("cipher: Curve25519Key.SetPublicKey(): len(key) = %d != 32", len(key))
	}
	c.publicKey = new([32]byte)
	copy(c.publicKey[:], key)
	return nil
}

// SetPrivateKey sets the private key of c to key.
// SetPrivateKey returns an error, if len(key) != 32.
func (c *Curve25519Key) SetPrivateKey(key []byte) error {
	if len(key) != 32 {
		return log.Errorf("cipher: Curve25519Key.SetPrivateKey(): len(key) = %d != 32", len(key))
	}
	c.privateKey = new([32]byte)
	copy(c.privateKey[:], key)
	return nil
}

// WipePrivateKey overwrites the private key of c with zeros and drops it.
func (c *Curve25519Key) WipePrivateKey() {
	if c.privateKey != nil {
		bzero.Bytes(c.privateKey[:])
		c.privateKey = nil
	}
}

// ECDH computes a Diffie-Hellman (DH) key exchange over the elliptic curve (EC)
// curve25519. If ownPublicKey is given it is used to check for the key
// reflection attack. Otherwise it is derived from privateKey.
func ECDH(privateKey, peersPublicKey, ownPublicKey *[32]byte) (*[32]byte, error) {
	if privateKey == nil {
		return nil, log.Error("cipher: curve25519.ECDH(): privateKey == nil")
	}
	if peersPublicKey == nil {
		return nil, log.Error("cipher: curve25519.ECDH(): peersPublicKey == nil")
	}
	pubKey := ownPublicKey
	if pubKey == nil {
		pubKey = new([32]byte)
		curve25519.ScalarBaseMult(pubKey, privateKey)
	}
	if subtle.ConstantTimeCompare(pubKey[:], peersPublicKey[:]) == 1 {
		return nil, log.Errorf("cipher: curve25519.ECDH(): publicKey == peersPublicKey")
	}
	var sharedKey [32]byte
	curve25519.ScalarMult(&sharedKey, privateKey, peersPublicKey)
	return &sharedKey, nil
}
