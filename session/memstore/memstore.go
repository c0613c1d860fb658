// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memstore implements a session store in memory (for testing
// purposes and short-lived processes).
package memstore

import (
	"sort"
	"sync"

	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/session"
)

type pair struct {
	my   string
	peer string
}

// MemStore implements the session.Store interface in memory.
type MemStore struct {
	mutex      sync.Mutex
	localRange fsver.Range
	sessions   map[pair]map[session.ID]*session.Session
}

// New returns a new MemStore. Returned sessions are restored with the
// given local version range.
func New(localRange fsver.Range) *MemStore {
	return &MemStore{
		localRange: localRange,
		sessions:   make(map[pair]map[session.ID]*session.Session),
	}
}

func (ms *MemStore) out(s *session.Session) *session.Session {
	c := s.Clone()
	c.LocalRange = ms.localRange
	return c
}

// sorted returns the sessions of p in best session order.
func (ms *MemStore) sorted(p pair) []*session.Session {
	var list []*session.Session
	for _, s := range ms.sessions[p] {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		return session.Better(list[i], list[j])
	})
	return list
}

// ExactSession implemented in memory.
func (ms *MemStore) ExactSession(myIdentity, peerIdentity string, id session.ID) (*session.Session, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	s, ok := ms.sessions[pair{myIdentity, peerIdentity}][id]
	if !ok {
		return nil, nil
	}
	return ms.out(s), nil
}

// BestSession implemented in memory.
func (ms *MemStore) BestSession(myIdentity, peerIdentity string) (*session.Session, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	list := ms.sorted(pair{myIdentity, peerIdentity})
	if len(list) == 0 {
		return nil, nil
	}
	return ms.out(list[0]), nil
}

// ListSessions implemented in memory.
func (ms *MemStore) ListSessions(myIdentity, peerIdentity string) ([]*session.Session, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	list := ms.sorted(pair{myIdentity, peerIdentity})
	for i := range list {
		list[i] = ms.out(list[i])
	}
	return list, nil
}

// StoreSession implemented in memory.
func (ms *MemStore) StoreSession(s *session.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	p := pair{s.MyIdentity, s.PeerIdentity}
	if ms.sessions[p] == nil {
		ms.sessions[p] = make(map[session.ID]*session.Session)
	}
	if stored, ok := ms.sessions[p][s.ID]; ok {
		ms.sessions[p][s.ID] = session.MergeSession(stored, s)
	} else {
		ms.sessions[p][s.ID] = s.Clone()
	}
	return nil
}

// UpdateRatchets implemented in memory.
func (ms *MemStore) UpdateRatchets(s *session.Session, peer bool) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	p := pair{s.MyIdentity, s.PeerIdentity}
	stored, ok := ms.sessions[p][s.ID]
	if !ok {
		log.Debugf("memstore: UpdateRatchets(): session %s not found", s.ID)
		return nil
	}
	if m, changed := session.MergeRatchets(stored, s, peer); changed {
		ms.sessions[p][s.ID] = m
	}
	return nil
}

// UpdateCommitAndVersion implemented in memory.
func (ms *MemStore) UpdateCommitAndVersion(s *session.Session) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	p := pair{s.MyIdentity, s.PeerIdentity}
	stored, ok := ms.sessions[p][s.ID]
	if !ok {
		log.Debugf("memstore: UpdateCommitAndVersion(): session %s not found", s.ID)
		return nil
	}
	if m, changed := session.MergeCommitAndVersion(stored, s); changed {
		ms.sessions[p][s.ID] = m
	}
	return nil
}

// DeleteSession implemented in memory.
func (ms *MemStore) DeleteSession(myIdentity, peerIdentity string, id session.ID) (bool, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	p := pair{myIdentity, peerIdentity}
	if _, ok := ms.sessions[p][id]; !ok {
		return false, nil
	}
	delete(ms.sessions[p], id)
	return true, nil
}

// DeleteAllSessions implemented in memory.
func (ms *MemStore) DeleteAllSessions(myIdentity, peerIdentity string) (int, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	p := pair{myIdentity, peerIdentity}
	n := len(ms.sessions[p])
	delete(ms.sessions, p)
	return n, nil
}

// DeleteAllSessionsExcept implemented in memory.
func (ms *MemStore) DeleteAllSessionsExcept(
	myIdentity, peerIdentity string,
	exclude session.ID,
	fourDHOnly bool,
) (int, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	p := pair{myIdentity, peerIdentity}
	var n int
	for id, s := range ms.sessions[p] {
		if id == exclude {
			continue
		}
		if fourDHOnly && s.MyRatchet4DH == nil {
			continue
		}
		delete(ms.sessions[p], id)
		n++
	}
	return n, nil
}

// HasInvalidVersionSessions implemented in memory.
func (ms *MemStore) HasInvalidVersionSessions(
	myIdentity, peerIdentity string,
	supported fsver.Range,
) (bool, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	for _, s := range ms.sessions[pair{myIdentity, peerIdentity}] {
		if s.Versions == nil {
			continue
		}
		if !supported.Contains(s.Versions.Local) || !supported.Contains(s.Versions.Remote) {
			return true, nil
		}
	}
	return false, nil
}
