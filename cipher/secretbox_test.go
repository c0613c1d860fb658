// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cipher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretBox(t *testing.T) {
	key := KDF(make([]byte, 32), "kdf-aek", KDFPersonal)
	box := SecretBoxSeal([]byte("Hello Bob!"), key)
	msg, err := SecretBoxOpen(box, key)
	require.NoError(t, err)
	assert.Equal(t, "Hello Bob!", string(msg))

	otherKey := KDF(make([]byte, 32), "kdf-ck", KDFPersonal)
	_, err = SecretBoxOpen(box, otherKey)
	assert.Equal(t, ErrMessageAuthentication, err)

	box[len(box)-1] ^= 0xff
	_, err = SecretBoxOpen(box, key)
	assert.Equal(t, ErrMessageAuthentication, err)
}
