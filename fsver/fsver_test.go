// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fsver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func r(min, max uint32) Range {
	return Range{Min: FromWire(min), Max: FromWire(max)}
}

func TestWire(t *testing.T) {
	assert.Equal(t, uint32(0x0100), V1_0.Wire())
	assert.Equal(t, uint32(0x0102), V1_2.Wire())
	assert.Equal(t, V1_1, FromWire(0x0101))
	assert.Equal(t, Unspecified, FromWire(0))
	assert.False(t, FromWire(0x0103).Known())
	assert.False(t, FromWire(0x10000).Known())
	assert.True(t, V1_2.Known())
	assert.False(t, Unspecified.Known())
	assert.Equal(t, "1.1", V1_1.String())
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		local, remote Range
		want          Version
		err           error
	}{
		{r(0x100, 0x101), r(0x100, 0x101), V1_1, nil},
		{r(0x100, 0x101), r(0x101, 0x103), V1_1, nil},
		{r(0x100, 0x101), r(0x101, 0x104), V1_1, nil},
		{r(0x100, 0x102), r(0x100, 0x102), V1_2, nil},
		{r(0x100, 0x102), r(0x100, 0x100), V1_0, nil},
		{r(0x100, 0x104), r(0x100, 0x103), Unspecified, ErrUnableToNegotiate},
		{r(0x100, 0x103), r(0x104, 0x10e), Unspecified, ErrUnableToNegotiate},
		{r(0x100, 0x102), r(0, 0), Unspecified, ErrInvalidVersion},
		{r(0x100, 0x102), r(0x102, 0x101), Unspecified, ErrInvalidVersion},
		{r(0, 0x102), r(0x100, 0x101), Unspecified, ErrInvalidVersion},
	}
	for i, test := range tests {
		v, err := Negotiate(test.local, test.remote)
		assert.Equal(t, test.err, err, "test %d", i)
		assert.Equal(t, test.want, v, "test %d", i)
	}
}

func TestNegotiateSymmetric(t *testing.T) {
	a := r(0x100, 0x102)
	b := r(0x101, 0x102)
	va, err := Negotiate(a, b)
	assert.NoError(t, err)
	vb, err := Negotiate(b, a)
	assert.NoError(t, err)
	assert.Equal(t, va, vb)
}

func TestSupportedWithin(t *testing.T) {
	v, ok := SupportedWithin(r(0x100, 0x102), 1)
	assert.True(t, ok)
	assert.Equal(t, V1_2, v)
	v, ok = SupportedWithin(r(0x100, 0x101), 1)
	assert.True(t, ok)
	assert.Equal(t, V1_1, v)
	_, ok = SupportedWithin(r(0x100, 0x102), 2)
	assert.False(t, ok)
}

func TestRange(t *testing.T) {
	assert.Equal(t, DefaultRemoteRange, Range{}.OrDefault())
	assert.Equal(t, r(0x100, 0x101), r(0x100, 0x101).OrDefault())
	assert.True(t, r(0x100, 0x102).Contains(V1_1))
	assert.False(t, r(0x100, 0x101).Contains(V1_2))
	assert.Equal(t, "[1.0, 1.2]", r(0x100, 0x102).String())
}
