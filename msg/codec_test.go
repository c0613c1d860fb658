// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msg

import (
	"testing"

	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	testID  = session.ID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	testKey = [KeySize]byte{0xaa, 0xbb, 0xcc}
)

func TestEnvelopes(t *testing.T) {
	contents := []Content{
		&Init{
			EphemeralPublicKey: &testKey,
			SupportedVersion:   fsver.Range{Min: fsver.V1_0, Max: fsver.V1_2},
		},
		&Accept{
			EphemeralPublicKey: &testKey,
			SupportedVersion:   fsver.Range{Min: fsver.V1_1, Max: fsver.V1_1},
		},
		&Reject{
			MessageID: 0x0102030405060708,
			Cause:     RejectUnknownSession,
			Group:     &GroupIdentity{GroupID: 42, CreatorIdentity: "ABCDEFGH"},
		},
		&Reject{Cause: RejectStateMismatch},
		&Terminate{Cause: TerminateDisabledByRemote},
		&Terminate{Cause: TerminateUnknownSession},
		&Message{
			DHType:         session.Mode4DH,
			Counter:        7,
			Ciphertext:     []byte("ciphertext"),
			OfferedVersion: fsver.V1_2,
			AppliedVersion: fsver.V1_1,
			Group:          &GroupIdentity{GroupID: 1},
		},
		&Message{
			DHType:     session.Mode2DH,
			Counter:    1,
			Ciphertext: []byte("c"),
		},
	}
	for _, c := range contents {
		env := &Envelope{SessionID: testID, Content: c}
		b, err := Marshal(env)
		require.NoError(t, err, c.String())
		dec, err := Unmarshal(b)
		require.NoError(t, err, c.String())
		assert.Equal(t, testID, dec.SessionID)
		assert.Equal(t, c, dec.Content)
	}
}

func TestInitWireFormat(t *testing.T) {
	env := &Envelope{
		SessionID: testID,
		Content: &Init{
			EphemeralPublicKey: &testKey,
			SupportedVersion:   fsver.Range{Min: fsver.V1_0, Max: fsver.V1_1},
		},
	}
	b, err := Marshal(env)
	require.NoError(t, err)
	// session ID
	assert.Equal(t, []byte{0x0a, 16}, b[:2])
	assert.Equal(t, testID[:], b[2:18])
	// init: key + range{min=0x100, max=0x101}
	rest := b[18:]
	assert.Equal(t, byte(0x12), rest[0])
	init := rest[2:]
	assert.Equal(t, []byte{0x0a, 32}, init[:2])
	assert.Equal(t, testKey[:], init[2:34])
	assert.Equal(t, []byte{0x12, 6, 0x08, 0x80, 0x02, 0x10, 0x81, 0x02}, init[34:])
}

// field encodes a length delimited field.
func field(num protowire.Number, b []byte) []byte {
	return protowire.AppendBytes(protowire.AppendTag(nil, num, protowire.BytesType), b)
}

func TestUnmarshalFailures(t *testing.T) {
	encode := encodeFields
	badDHType := protowire.AppendVarint(protowire.AppendTag(nil, 1, protowire.VarintType), 5)

	sessionID := field(1, testID[:])
	shortID := field(1, testID[:15])
	terminate := field(5, nil)
	shortKey := field(2, field(1, testKey[:31]))
	noKey := field(3, field(2, nil))
	badDH := field(6, badDHType)
	unknown := field(9, []byte{0x08, 0x01})

	tests := []struct {
		name string
		b    []byte
		err  error
	}{
		{"missing content", encode(sessionID), ErrMissingContent},
		{"unknown content", encode(sessionID, unknown), ErrMissingContent},
		{"missing session ID", encode(terminate), ErrInvalidSessionID},
		{"short session ID", encode(shortID, terminate), ErrInvalidSessionID},
		{"short key", encode(sessionID, shortKey), ErrInvalidKeyLength},
		{"missing key", encode(sessionID, noKey), ErrInvalidKeyLength},
		{"unknown DH type", encode(sessionID, badDH), ErrUnknownDHType},
	}
	for _, test := range tests {
		_, err := Unmarshal(test.b)
		assert.Equal(t, test.err, err, test.name)
	}
	_, err := Unmarshal([]byte{0x0a, 0x20, 0x01})
	assert.Error(t, err, "truncated")
}

func TestContentOrderIndependent(t *testing.T) {
	// content before the session ID decodes the same
	b := encodeFields(field(5, protowire.AppendVarint([]byte{0x08}, 1)), field(1, testID[:]))
	env, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, testID, env.SessionID)
	assert.Equal(t, &Terminate{Cause: TerminateReset}, env.Content)

	// the last content wins
	b = encodeFields(field(1, testID[:]), field(5, nil), field(4, nil))
	env, err = Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, &Reject{}, env.Content)
}

func encodeFields(fields ...[]byte) []byte {
	var b []byte
	for _, f := range fields {
		b = append(b, f...)
	}
	return b
}

func TestSchema(t *testing.T) {
	assert.Equal(t, "mutefs.fs.Envelope", string(envelopeDesc.FullName()))
	content := envelopeDesc.Oneofs().ByName("content")
	require.NotNil(t, content)
	assert.Equal(t, 5, content.Fields().Len())
	dh := envelopeDesc.Fields().ByName("message").Message().Fields().ByName("dh_type").Enum()
	assert.Equal(t, "FOURDH", string(dh.Values().ByNumber(wireFourDH).Name()))
}

func TestUnknownFieldsIgnored(t *testing.T) {
	env := &Envelope{SessionID: testID, Content: &Terminate{Cause: TerminateReset}}
	b, err := Marshal(env)
	require.NoError(t, err)
	b = protowire.AppendTag(b, 15, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 0xdeadbeef)
	b = protowire.AppendTag(b, 16, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))
	dec, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, env.Content, dec.Content)
}

func TestUnknownVersionsDecode(t *testing.T) {
	r := fsver.Range{Min: fsver.V1_0, Max: fsver.Version{Major: 1, Minor: 0xff}}
	env := &Envelope{SessionID: testID, Content: &Accept{EphemeralPublicKey: &testKey, SupportedVersion: r}}
	b, err := Marshal(env)
	require.NoError(t, err)
	dec, err := Unmarshal(b)
	require.NoError(t, err)
	accept := dec.Content.(*Accept)
	assert.Equal(t, r, accept.SupportedVersion)
	assert.False(t, accept.SupportedVersion.Max.Known())
}

func TestMarshalFailures(t *testing.T) {
	_, err := Marshal(&Envelope{SessionID: testID})
	assert.Equal(t, ErrMissingContent, err)
	_, err = Marshal(&Envelope{SessionID: testID, Content: &Init{}})
	assert.Equal(t, ErrInvalidKeyLength, err)
	_, err = Marshal(&Envelope{SessionID: testID, Content: &Message{DHType: session.ModeNone}})
	assert.Equal(t, ErrUnknownDHType, err)
}

func TestCauses(t *testing.T) {
	assert.Equal(t, "DISABLED_BY_LOCAL", RejectDisabledByLocal.String())
	assert.Equal(t, "RejectCause(9)", RejectCause(9).String())
	assert.Equal(t, "RESET", TerminateReset.String())
	assert.Equal(t, "TerminateCause(-1)", TerminateCause(-1).String())
}
