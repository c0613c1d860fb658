// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package msg defines the messages of the forward secrecy layer: the inner
// messages exchanged by the application and the envelopes which carry them
// (and the session control messages) between two parties.
//
// Envelopes are encoded as protocol buffers (schema in fs.proto, encoded
// through the protobuf runtime with a dynamic message):
//
//	Envelope      { bytes session_id = 1; oneof content { Init init = 2;
//	                Accept accept = 3; Reject reject = 4;
//	                Terminate terminate = 5; Message message = 6; } }
//	Init, Accept  { bytes fssk = 1; VersionRange supported_version = 2; }
//	Reject        { fixed64 message_id = 1; Cause cause = 2;
//	                GroupIdentity group_identity = 3; }
//	Terminate     { Cause cause = 1; }
//	Message       { DHType dh_type = 1; uint64 counter = 2; bytes message = 3;
//	                uint32 offered_version = 4; GroupIdentity group_identity = 5;
//	                uint32 applied_version = 6; }
//	VersionRange  { uint32 min = 1; uint32 max = 2; }
//	GroupIdentity { uint64 group_id = 1; string creator_identity = 2; }
package msg

import (
	"fmt"

	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/session"
)

// KeySize is the size of an ephemeral public key in an Init or Accept.
const KeySize = 32

// GroupIdentity identifies a group by its ID and the identity of its
// creator.
type GroupIdentity struct {
	GroupID         uint64
	CreatorIdentity string
}

// Envelope is a forward secrecy message on the wire.
type Envelope struct {
	SessionID session.ID
	Content   Content
	// MessageID is the ID of the outer message the envelope travels in. It
	// is carried by the transport and not part of the encoding.
	MessageID uint64
}

// Content is the content of an envelope, one of *Init, *Accept, *Reject,
// *Terminate, or *Message.
type Content interface {
	content()
	fmt.Stringer
}

// Init starts a new session.
type Init struct {
	EphemeralPublicKey *[KeySize]byte
	SupportedVersion   fsver.Range
}

// Accept answers an Init.
type Accept struct {
	EphemeralPublicKey *[KeySize]byte
	SupportedVersion   fsver.Range
}

// RejectCause is the reason for a Reject.
type RejectCause int32

// Reject causes.
const (
	RejectStateMismatch RejectCause = iota
	RejectUnknownSession
	RejectDisabledByLocal
)

var rejectCauses = map[RejectCause]string{
	RejectStateMismatch:   "STATE_MISMATCH",
	RejectUnknownSession:  "UNKNOWN_SESSION",
	RejectDisabledByLocal: "DISABLED_BY_LOCAL",
}

func (c RejectCause) String() string {
	if s, ok := rejectCauses[c]; ok {
		return s
	}
	return fmt.Sprintf("RejectCause(%d)", int32(c))
}

// Reject tells the sender of a message that it could not be processed.
// The session it names must not be used anymore.
type Reject struct {
	MessageID uint64
	Cause     RejectCause
	Group     *GroupIdentity
}

// TerminateCause is the reason for a Terminate.
type TerminateCause int32

// Terminate causes.
const (
	TerminateUnknownSession TerminateCause = iota
	TerminateReset
	TerminateDisabledByLocal
	TerminateDisabledByRemote
)

var terminateCauses = map[TerminateCause]string{
	TerminateUnknownSession:   "UNKNOWN_SESSION",
	TerminateReset:            "RESET",
	TerminateDisabledByLocal:  "DISABLED_BY_LOCAL",
	TerminateDisabledByRemote: "DISABLED_BY_REMOTE",
}

func (c TerminateCause) String() string {
	if s, ok := terminateCauses[c]; ok {
		return s
	}
	return fmt.Sprintf("TerminateCause(%d)", int32(c))
}

// Terminate ends a session.
type Terminate struct {
	Cause TerminateCause
}

// Message carries an encrypted inner message.
type Message struct {
	DHType         session.Mode // Mode2DH or Mode4DH
	Counter        uint64
	Ciphertext     []byte
	OfferedVersion fsver.Version
	AppliedVersion fsver.Version
	Group          *GroupIdentity
}

func (*Init) content()      {}
func (*Accept) content()    {}
func (*Reject) content()    {}
func (*Terminate) content() {}
func (*Message) content()   {}

func (c *Init) String() string {
	return fmt.Sprintf("Init(versions=%s)", c.SupportedVersion)
}

func (c *Accept) String() string {
	return fmt.Sprintf("Accept(versions=%s)", c.SupportedVersion)
}

func (c *Reject) String() string {
	return fmt.Sprintf("Reject(message=%016x, cause=%s)", c.MessageID, c.Cause)
}

func (c *Terminate) String() string {
	return fmt.Sprintf("Terminate(cause=%s)", c.Cause)
}

func (c *Message) String() string {
	return fmt.Sprintf("Message(%s, counter=%d, offered=%s, applied=%s)",
		c.DHType, c.Counter, c.OfferedVersion, c.AppliedVersion)
}

func (env *Envelope) String() string {
	return fmt.Sprintf("%s %s", env.SessionID, env.Content)
}
