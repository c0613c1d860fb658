// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package identity

import (
	"testing"

	"github.com/mutecomm/mutefs/cipher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceSecret = "2Hi7lA4boz9eLl0ozdeb2uKj2+i/wD2PUTRczwshp1Y="
	bobSecret   = "WE2g/Mu8jeGHMUX0pqyCP+ypW6gCu2xEBKESOyqgbn0="
)

func TestCheck(t *testing.T) {
	assert.NoError(t, Check("AAAAAAAA"))
	assert.NoError(t, Check("*THREEMA"))
	assert.Equal(t, ErrInvalid, Check("AAAAAAA"))
	assert.Equal(t, ErrInvalid, Check("aaaaaaaa"))
	assert.Equal(t, ErrInvalid, Check("AAAA-AAA"))
}

func TestSharedSecret(t *testing.T) {
	alice, err := FromBase64("AAAAAAAA", aliceSecret)
	require.NoError(t, err)
	bob, err := FromBase64("BBBBBBBB", bobSecret)
	require.NoError(t, err)
	ab, err := alice.SharedSecret(bob.PublicKey())
	require.NoError(t, err)
	ba, err := bob.SharedSecret(alice.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Equal(t, "AAAAAAAA", alice.Identity())

	_, err = alice.SharedSecret(alice.PublicKey())
	assert.Error(t, err, "key reflection must fail")
}

func TestGenerate(t *testing.T) {
	kp, err := Generate("CCCCCCCC", cipher.RandReader)
	require.NoError(t, err)
	assert.NotNil(t, kp.PrivateKey())
	_, err = Generate("short", cipher.RandReader)
	assert.Error(t, err)
	_, err = Generate("CCCCCCCC", cipher.RandFail)
	assert.Error(t, err)
	_, err = FromBase64("AAAAAAAA", "not base64!")
	assert.Error(t, err)
	_, err = FromSecret("AAAAAAAA", []byte{1})
	assert.Error(t, err)
}
