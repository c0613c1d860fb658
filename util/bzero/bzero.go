// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bzero defines helper functions to zero sensitive memory.
package bzero

// Bytes sets all entries in the given byte slice buffer to zero.
func Bytes(buffer []byte) {
	for i := range buffer {
		buffer[i] = 0
	}
}

// Key32 zeroes the 32-byte key k, if it is not nil.
func Key32(k *[32]byte) {
	if k != nil {
		Bytes(k[:])
	}
}
