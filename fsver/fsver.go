// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fsver implements the versions of the forward secrecy protocol and
// their negotiation between two peers.
//
// A version is sent on the wire as uint32(major)<<8 | minor. Both peers
// announce the range of versions they support during the key exchange and
// settle on the highest common version. Afterwards the versions used in each
// direction can be upgraded incrementally within the same major version, but
// never downgraded.
package fsver

import (
	"errors"
	"fmt"
)

// ErrInvalidVersion is raised when a version range is uninitialized or its
// minimum is larger than its maximum.
var ErrInvalidVersion = errors.New("fsver: invalid version range")

// ErrUnableToNegotiate is raised when two version ranges have no recognized
// version in common.
var ErrUnableToNegotiate = errors.New("fsver: unable to negotiate version")

// Version is a forward secrecy protocol version.
type Version struct {
	Major uint8
	Minor uint8
}

// Defined versions.
var (
	Unspecified = Version{}
	V1_0        = Version{Major: 1, Minor: 0}
	V1_1        = Version{Major: 1, Minor: 1}
	V1_2        = Version{Major: 1, Minor: 2}
)

// known lists all versions this implementation understands, in ascending
// order.
var known = []Version{V1_0, V1_1, V1_2}

// FromWire converts a wire encoded version. Unrecognized values are
// preserved, see Known.
func FromWire(v uint32) Version {
	if v > 0xffff {
		// not representable, treat as an unknown future version
		return Version{Major: 0xff, Minor: 0xff}
	}
	return Version{Major: uint8(v >> 8), Minor: uint8(v)}
}

// Wire returns the wire encoding of v.
func (v Version) Wire() uint32 {
	return uint32(v.Major)<<8 | uint32(v.Minor)
}

// IsZero reports whether v is unspecified.
func (v Version) IsZero() bool {
	return v == Unspecified
}

// Known reports whether v is a version recognized by this implementation.
func (v Version) Known() bool {
	for _, k := range known {
		if v == k {
			return true
		}
	}
	return false
}

// Less reports whether v is lower than w.
func (v Version) Less(w Version) bool {
	return v.Wire() < w.Wire()
}

// Max returns the higher of v and w.
func (v Version) Max(w Version) Version {
	if v.Less(w) {
		return w
	}
	return v
}

// Min returns the lower of v and w.
func (v Version) Min(w Version) Version {
	if w.Less(v) {
		return w
	}
	return v
}

func (v Version) String() string {
	if v.IsZero() {
		return "unspecified"
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Range is an inclusive range of versions.
type Range struct {
	Min Version
	Max Version
}

// DefaultRemoteRange is assumed for peers that do not announce a range.
var DefaultRemoteRange = Range{Min: V1_0, Max: V1_0}

// Valid reports whether r is initialized and ordered.
func (r Range) Valid() bool {
	return !r.Min.IsZero() && !r.Max.IsZero() && !r.Max.Less(r.Min)
}

// IsZero reports whether r is uninitialized.
func (r Range) IsZero() bool {
	return r.Min.IsZero() && r.Max.IsZero()
}

// OrDefault returns DefaultRemoteRange if r is uninitialized, r otherwise.
func (r Range) OrDefault() Range {
	if r.IsZero() {
		return DefaultRemoteRange
	}
	return r
}

// Contains reports whether v lies within r.
func (r Range) Contains(v Version) bool {
	return !v.Less(r.Min) && !r.Max.Less(v)
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", r.Min, r.Max)
}

// Negotiate returns the version used by two peers that support the local and
// remote version ranges: the lower of both maxima, which has to be a known
// version.
func Negotiate(local, remote Range) (Version, error) {
	if !local.Valid() || !remote.Valid() {
		return Unspecified, ErrInvalidVersion
	}
	if local.Min.Max(remote.Min).Wire() > local.Max.Min(remote.Max).Wire() {
		return Unspecified, ErrUnableToNegotiate
	}
	v := local.Max.Min(remote.Max)
	if !v.Known() {
		return Unspecified, ErrUnableToNegotiate
	}
	return v, nil
}

// SupportedWithin returns the highest known version within local that has
// the given major version. ok is false if there is none.
func SupportedWithin(local Range, major uint8) (v Version, ok bool) {
	for _, k := range known {
		if k.Major == major && local.Contains(k) {
			v, ok = k, true
		}
	}
	return
}
