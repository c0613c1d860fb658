// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"fmt"

	"github.com/mutecomm/mutefs/fsver"
)

// DHVersions are the versions applied to 4DH messages in each direction.
type DHVersions struct {
	Local  fsver.Version // outgoing
	Remote fsver.Version // incoming
}

func (v DHVersions) String() string {
	return fmt.Sprintf("local=%s, remote=%s", v.Local, v.Remote)
}

// Max returns the per-direction maximum of v and w.
func (v DHVersions) Max(w DHVersions) DHVersions {
	return DHVersions{Local: v.Local.Max(w.Local), Remote: v.Remote.Max(w.Remote)}
}

// ProcessedVersions are the effective versions of an incoming message.
// Pending holds the versions to commit once the message has been processed,
// nil for 2DH messages.
type ProcessedVersions struct {
	Offered fsver.Version
	Applied fsver.Version
	Pending *DHVersions
}

// UpdatedVersions is a snapshot of a version upgrade.
type UpdatedVersions struct {
	Before DHVersions
	After  DHVersions
}

func (u UpdatedVersions) String() string {
	return fmt.Sprintf("from (%s) to (%s)", u.Before, u.After)
}

// RejectError is returned when the versions of an incoming message cannot
// be accepted. The message has to be rejected and the session deleted.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return "session: reject message: " + e.Reason
}

func rejectf(format string, args ...interface{}) *RejectError {
	return &RejectError{Reason: fmt.Sprintf(format, args...)}
}

// OutgoingOfferedVersion is the version offered in outgoing messages.
func (s *Session) OutgoingOfferedVersion() fsver.Version {
	if !s.State.FourDHCapable() || s.Versions == nil {
		return s.LocalRange.Min
	}
	if v, ok := fsver.SupportedWithin(s.LocalRange, s.Versions.Local.Major); ok {
		return v.Max(s.Versions.Local)
	}
	return s.Versions.Local
}

// OutgoingAppliedVersion is the version outgoing messages are bound to.
func (s *Session) OutgoingAppliedVersion() fsver.Version {
	if !s.State.FourDHCapable() || s.Versions == nil {
		return s.LocalRange.Min
	}
	return s.Versions.Local
}

// MinimumIncomingAppliedVersion is the bottom line version of incoming
// messages.
func (s *Session) MinimumIncomingAppliedVersion() fsver.Version {
	if s.State == RL44 && s.Versions != nil {
		return s.Versions.Remote
	}
	return s.RemoteRange.OrDefault().Min
}

// ProcessIncomingVersions validates the offered and applied versions of an
// incoming message of the given mode. It returns a *RejectError if the
// message must be rejected. The session is not modified, see CommitVersions.
func (s *Session) ProcessIncomingVersions(mode Mode, offered, applied fsver.Version) (*ProcessedVersions, error) {
	if offered.IsZero() {
		offered = fsver.V1_0
	}
	if applied.IsZero() {
		applied = offered
	}
	if offered.Less(applied) {
		return nil, rejectf("invalid versions: offered=%s, applied=%s", offered, applied)
	}
	switch mode {
	case Mode2DH:
		if s.State != R20 && s.State != R24 {
			return nil, rejectf("unexpected 2DH message in state %s", s.State)
		}
		initMin := s.RemoteRange.OrDefault().Min
		if offered != initMin {
			return nil, rejectf("invalid offered version in 2DH message: offered=%s, init-min=%s",
				offered, initMin)
		}
		if applied != initMin {
			return nil, rejectf("invalid applied version in 2DH message: applied=%s, init-min=%s",
				applied, initMin)
		}
		return &ProcessedVersions{Offered: offered, Applied: applied}, nil
	case Mode4DH:
		if !s.State.FourDHCapable() {
			return nil, rejectf("unexpected 4DH message in state %s", s.State)
		}
		if s.Versions == nil {
			return nil, rejectf("missing 4DH versions in state %s", s.State)
		}
		cur := *s.Versions
		if offered.Major != cur.Local.Major || offered.Minor < cur.Local.Minor {
			return nil, rejectf("invalid offered version: offered=%s, local=%s", offered, cur.Local)
		}
		if applied.Major != cur.Remote.Major || applied.Minor < cur.Remote.Minor {
			return nil, rejectf("invalid applied version: applied=%s, remote=%s", applied, cur.Remote)
		}
		supported, ok := fsver.SupportedWithin(s.LocalRange, offered.Major)
		if !ok {
			return nil, rejectf("unsupported major version %d", offered.Major)
		}
		newLocal := offered.Min(supported)
		if !newLocal.Known() {
			return nil, rejectf("unknown common version %s", newLocal)
		}
		if supported.Less(applied) {
			return nil, rejectf("unsupported applied version: applied=%s, supported=%s", applied, supported)
		}
		return &ProcessedVersions{
			Offered: offered,
			Applied: applied,
			Pending: &DHVersions{Local: newLocal, Remote: applied},
		}, nil
	}
	return nil, rejectf("unexpected mode %s", mode)
}

// CommitVersions applies the pending versions of pv to the session and
// returns a snapshot if they changed. Versions are never downgraded.
func (s *Session) CommitVersions(pv *ProcessedVersions) *UpdatedVersions {
	if pv == nil || pv.Pending == nil || s.Versions == nil {
		return nil
	}
	before := *s.Versions
	after := before.Max(*pv.Pending)
	if after == before {
		return nil
	}
	s.Versions = &after
	return &UpdatedVersions{Before: before, After: after}
}
