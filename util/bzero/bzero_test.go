// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bzero

import (
	"testing"
)

func TestBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	Bytes(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("b[%d] != 0", i)
		}
	}
}

func TestKey32(t *testing.T) {
	var k [32]byte
	k[0], k[31] = 0xff, 0xff
	Key32(&k)
	if k != [32]byte{} {
		t.Error("key not zeroed")
	}
	Key32(nil)
}
