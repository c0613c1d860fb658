// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msg

import (
	"fmt"

	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/session"
)

// Type is the type of an inner message.
type Type byte

// Inner message types.
const (
	Text            Type = 0x01
	GroupText       Type = 0x41
	DeliveryReceipt Type = 0x80
	TypingIndicator Type = 0x90
	Empty           Type = 0xfc // keeps sessions alive, never shown
)

type typeInfo struct {
	name       string
	minVersion fsver.Version
	requiresFS bool
}

var types = map[Type]typeInfo{
	Text:            {"Text", fsver.V1_0, false},
	GroupText:       {"GroupText", fsver.V1_2, false},
	DeliveryReceipt: {"DeliveryReceipt", fsver.V1_1, false},
	TypingIndicator: {"TypingIndicator", fsver.V1_1, false},
	Empty:           {"Empty", fsver.V1_1, true},
}

func (t Type) String() string {
	if info, ok := types[t]; ok {
		return info.name
	}
	return fmt.Sprintf("Type(0x%02x)", byte(t))
}

// MinVersion returns the minimum FS version required to send messages of
// type t with forward secrecy. Unknown types can be sent with any version.
func MinVersion(t Type) fsver.Version {
	if info, ok := types[t]; ok {
		return info.minVersion
	}
	return fsver.V1_0
}

// RequiresFS reports whether messages of type t must not be sent without
// forward secrecy.
func RequiresFS(t Type) bool {
	return types[t].requiresFS
}

// Inner is an application message.
type Inner struct {
	Type   Type
	Body   []byte
	ID     uint64         // ID of the outer message
	Group  *GroupIdentity // nil for direct messages
	FSMode session.Mode   // set on decapsulation
}

// NewEmpty returns a new Empty message with the given ID.
func NewEmpty(id uint64) *Inner {
	return &Inner{Type: Empty, ID: id}
}

// Plaintext returns the encoding of inner which is encrypted in a Message:
// the type byte followed by the body.
func (inner *Inner) Plaintext() []byte {
	p := make([]byte, 1+len(inner.Body))
	p[0] = byte(inner.Type)
	copy(p[1:], inner.Body)
	return p
}

// ParsePlaintext parses a decrypted Message into an inner message.
func ParsePlaintext(plaintext []byte) (*Inner, error) {
	if len(plaintext) == 0 {
		return nil, log.Error(ErrEmptyPlaintext)
	}
	body := make([]byte, len(plaintext)-1)
	copy(body, plaintext[1:])
	return &Inner{Type: Type(plaintext[0]), Body: body}, nil
}

func (inner *Inner) String() string {
	return fmt.Sprintf("%s(id=%016x, %d bytes, fs=%s)", inner.Type, inner.ID,
		len(inner.Body), inner.FSMode)
}
