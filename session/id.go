// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"bytes"
	"encoding/hex"
	"io"

	"github.com/mutecomm/mutefs/log"
)

// IDSize is the size of a session ID in bytes.
const IDSize = 16

// ID identifies a session between two parties.
type ID [IDSize]byte

// NewID returns a random session ID read from rand.
func NewID(rand io.Reader) (ID, error) {
	var id ID
	if _, err := io.ReadFull(rand, id[:]); err != nil {
		return id, log.Error(err)
	}
	return id, nil
}

// IDFromBytes converts b to an ID.
func IDFromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != IDSize {
		return id, log.Errorf("session: invalid session ID length %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Less reports whether id is numerically smaller than other, reading both
// as big-endian unsigned integers.
func (id ID) Less(other ID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}
