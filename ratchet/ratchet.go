// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ratchet implements the symmetric KDF ratchet of forward secrecy
// sessions.
//
// A ratchet consists of a chain key and a counter. Every turn replaces the
// chain key by KDF(chainKey, "kdf-ck") and increments the counter, so keys
// of earlier counter values cannot be recovered from the current state.
// The encryption key for the current counter value is KDF(chainKey, "kdf-aek").
package ratchet

import (
	"crypto/subtle"
	"errors"

	"github.com/mutecomm/mutefs/cipher"
	"github.com/mutecomm/mutefs/def"
	"github.com/mutecomm/mutefs/util/bzero"
)

const (
	saltChainKey      = "kdf-ck"
	saltEncryptionKey = "kdf-aek"
)

// ErrTooManyTurns is raised when a ratchet would have to be turned more than
// def.MaxCounterIncrement times to reach a target counter.
var ErrTooManyTurns = errors.New("ratchet: too many turns")

// ErrRotationNotPossible is raised when the target counter of TurnUntil lies
// in the past.
var ErrRotationNotPossible = errors.New("ratchet: rotation not possible")

// KDFRatchet is a symmetric key ratchet.
type KDFRatchet struct {
	counter  uint64
	chainKey [32]byte
}

// New returns a ratchet with the given counter and chain key. Freshly derived
// ratchets start with counter 1.
func New(counter uint64, chainKey *[32]byte) *KDFRatchet {
	r := &KDFRatchet{counter: counter}
	copy(r.chainKey[:], chainKey[:])
	return r
}

// Counter returns the current counter value.
func (r *KDFRatchet) Counter() uint64 {
	return r.counter
}

// ChainKey returns a copy of the current chain key.
func (r *KDFRatchet) ChainKey() *[32]byte {
	ck := r.chainKey
	return &ck
}

// Turn advances the ratchet by one step.
func (r *KDFRatchet) Turn() {
	next := cipher.KDF(r.chainKey[:], saltChainKey, cipher.KDFPersonal)
	copy(r.chainKey[:], next[:])
	bzero.Key32(next)
	r.counter++
}

// TurnUntil advances the ratchet until it reaches the target counter and
// returns the number of turns. The ratchet is left unchanged on error.
func (r *KDFRatchet) TurnUntil(target uint64) (uint64, error) {
	if target < r.counter {
		return 0, ErrRotationNotPossible
	}
	if target-r.counter > def.MaxCounterIncrement {
		return 0, ErrTooManyTurns
	}
	var turns uint64
	for r.counter < target {
		r.Turn()
		turns++
	}
	return turns, nil
}

// CurrentEncryptionKey returns the message key for the current counter value.
func (r *KDFRatchet) CurrentEncryptionKey() *[32]byte {
	return cipher.KDF(r.chainKey[:], saltEncryptionKey, cipher.KDFPersonal)
}

// Equal reports whether r and o have the same counter and chain key.
func (r *KDFRatchet) Equal(o *KDFRatchet) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.counter == o.counter &&
		subtle.ConstantTimeCompare(r.chainKey[:], o.chainKey[:]) == 1
}

// Clone returns a deep copy of r (nil for nil).
func (r *KDFRatchet) Clone() *KDFRatchet {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Wipe zeroes the chain key of r.
func (r *KDFRatchet) Wipe() {
	if r != nil {
		bzero.Bytes(r.chainKey[:])
	}
}
