// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"fmt"
)

// State is the state of a DH session.
type State int

// Session states. The name encodes who initiated the session (L: locally,
// R: remotely, RL: either) and which DH mode is used for outgoing and
// incoming messages (0: none, 2: 2DH, 4: 4DH).
const (
	// L20 is a locally initiated session before the Accept arrived.
	// Outgoing messages use 2DH, there are no incoming messages.
	L20 State = iota + 1
	// R20 is a remotely initiated session with incoming 2DH and no
	// outgoing ratchet. No operation creates it.
	R20
	// R24 is a remotely initiated session after sending the Accept.
	// Outgoing messages use 4DH, incoming messages 2DH or 4DH.
	R24
	// RL44 is a fully established session, 4DH in both directions.
	RL44
)

var stateNames = map[State]string{
	L20:  "L20",
	R20:  "R20",
	R24:  "R24",
	RL44: "RL44",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState converts the string representation of a state.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("session: unknown state %q", name)
}

// FourDHCapable reports whether sessions in state s send 4DH messages.
func (s State) FourDHCapable() bool {
	return s == R24 || s == RL44
}

// Mode is the DH mode a message was protected with.
type Mode int

// DH modes.
const (
	// ModeNone denotes a message without forward secrecy.
	ModeNone Mode = iota
	// Mode2DH denotes a message protected by the ephemeral-static exchange.
	Mode2DH
	// Mode4DH denotes a message protected by the full exchange.
	Mode4DH
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case Mode2DH:
		return "2DH"
	case Mode4DH:
		return "4DH"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ratchets describes which ratchets are present in a state:
// my 2DH, my 4DH, peer 2DH, peer 4DH.
var ratchets = map[State][4]bool{
	L20:  {true, false, false, false},
	R20:  {false, false, true, false},
	R24:  {false, true, true, true},
	RL44: {false, true, false, true},
}
