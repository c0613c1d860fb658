// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keydb

import (
	"database/sql"
	"encoding/hex"
	"sort"
	"time"

	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/ratchet"
	"github.com/mutecomm/mutefs/session"
	"github.com/pkg/errors"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

func ratchetArgs(r *ratchet.KDFRatchet) (counter, chainKey interface{}) {
	if r == nil {
		return nil, nil
	}
	return int64(r.Counter()), hex.EncodeToString(r.ChainKey()[:])
}

func decodeKey(s string) (*[32]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, log.Error(err)
	}
	if len(b) != 32 {
		return nil, log.Errorf("keydb: stored key has wrong length %d", len(b))
	}
	var key [32]byte
	copy(key[:], b)
	return &key, nil
}

func decodeRatchet(counter sql.NullInt64, chainKey sql.NullString) (*ratchet.KDFRatchet, error) {
	if !counter.Valid || !chainKey.Valid {
		return nil, nil
	}
	if counter.Int64 < 1 {
		return nil, log.Errorf("keydb: stored ratchet has invalid counter %d", counter.Int64)
	}
	key, err := decodeKey(chainKey.String)
	if err != nil {
		return nil, err
	}
	return ratchet.New(uint64(counter.Int64), key), nil
}

// sessionArgs returns the values of s in the order of sessionColumns,
// without the session ID.
func sessionArgs(s *session.Session) []interface{} {
	my2Counter, my2Key := ratchetArgs(s.MyRatchet2DH)
	my4Counter, my4Key := ratchetArgs(s.MyRatchet4DH)
	peer2Counter, peer2Key := ratchetArgs(s.PeerRatchet2DH)
	peer4Counter, peer4Key := ratchetArgs(s.PeerRatchet4DH)
	var localVersion, remoteVersion interface{}
	if s.Versions != nil {
		localVersion = int64(s.Versions.Local.Wire())
		remoteVersion = int64(s.Versions.Remote.Wire())
	}
	var committed int64
	if s.NewSessionCommitted {
		committed = 1
	}
	var lastSent int64
	if !s.LastMessageSent.IsZero() {
		lastSent = s.LastMessageSent.UnixNano()
	}
	return []interface{}{
		int64(s.State),
		hex.EncodeToString(s.MyEphemeralPublicKey[:]),
		my2Counter, my2Key,
		my4Counter, my4Key,
		peer2Counter, peer2Key,
		peer4Counter, peer4Key,
		int64(s.RemoteRange.Min.Wire()),
		int64(s.RemoteRange.Max.Wire()),
		localVersion, remoteVersion,
		committed,
		lastSent,
	}
}

func (keyDB *KeyDB) scanSession(row scanner, myIdentity, peerIdentity string) (*session.Session, error) {
	var (
		sessionID, ephemeralPublicKey    string
		state                            int64
		myCounter2DH, myCounter4DH       sql.NullInt64
		myChainKey2DH, myChainKey4DH     sql.NullString
		peerCounter2DH, peerCounter4DH   sql.NullInt64
		peerChainKey2DH, peerChainKey4DH sql.NullString
		remoteMin, remoteMax             int64
		localVersion, remoteVersion      sql.NullInt64
		committed, lastSent              int64
	)
	err := row.Scan(
		&sessionID, &state, &ephemeralPublicKey,
		&myCounter2DH, &myChainKey2DH, &myCounter4DH, &myChainKey4DH,
		&peerCounter2DH, &peerChainKey2DH, &peerCounter4DH, &peerChainKey4DH,
		&remoteMin, &remoteMax, &localVersion, &remoteVersion,
		&committed, &lastSent,
	)
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(sessionID)
	if err != nil {
		return nil, log.Error(err)
	}
	id, err := session.IDFromBytes(b)
	if err != nil {
		return nil, err
	}
	ephPub, err := decodeKey(ephemeralPublicKey)
	if err != nil {
		return nil, err
	}
	var r [4]*ratchet.KDFRatchet
	for i, c := range []struct {
		counter  sql.NullInt64
		chainKey sql.NullString
	}{
		{myCounter2DH, myChainKey2DH},
		{myCounter4DH, myChainKey4DH},
		{peerCounter2DH, peerChainKey2DH},
		{peerCounter4DH, peerChainKey4DH},
	} {
		if r[i], err = decodeRatchet(c.counter, c.chainKey); err != nil {
			return nil, err
		}
	}
	var versions *session.DHVersions
	if localVersion.Valid && remoteVersion.Valid {
		versions = &session.DHVersions{
			Local:  fsver.FromWire(uint32(localVersion.Int64)),
			Remote: fsver.FromWire(uint32(remoteVersion.Int64)),
		}
	}
	var lastMessageSent time.Time
	if lastSent != 0 {
		lastMessageSent = time.Unix(0, lastSent)
	}
	remoteRange := fsver.Range{
		Min: fsver.FromWire(uint32(remoteMin)),
		Max: fsver.FromWire(uint32(remoteMax)),
	}
	s, err := session.Restore(id, myIdentity, peerIdentity, session.State(state),
		ephPub, r[0], r[1], r[2], r[3], remoteRange, versions, committed != 0,
		lastMessageSent, keyDB.localRange)
	if err != nil {
		return nil, errors.Wrapf(err, "keydb: restore session %s", id)
	}
	return s, nil
}

// exactSession loads a single session with the given statement.
func (keyDB *KeyDB) exactSession(
	stmt *sql.Stmt,
	myIdentity, peerIdentity string,
	id session.ID,
) (*session.Session, error) {
	row := stmt.QueryRow(myIdentity, peerIdentity, id.String())
	s, err := keyDB.scanSession(row, myIdentity, peerIdentity)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, log.Error(err)
	}
	return s, nil
}

func (keyDB *KeyDB) transact(fn func(tx *sql.Tx) error) error {
	tx, err := keyDB.encDB.Begin()
	if err != nil {
		return log.Error(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return log.Error(err)
	}
	return nil
}

func (keyDB *KeyDB) updateSession(tx *sql.Tx, s *session.Session) error {
	args := append(sessionArgs(s), s.MyIdentity, s.PeerIdentity, s.ID.String())
	if _, err := tx.Stmt(keyDB.updateSessionQuery).Exec(args...); err != nil {
		return log.Error(errors.Wrapf(err, "keydb: update session %s", s.ID))
	}
	return nil
}

// ExactSession implemented for KeyDB.
func (keyDB *KeyDB) ExactSession(
	myIdentity, peerIdentity string,
	id session.ID,
) (*session.Session, error) {
	return keyDB.exactSession(keyDB.getSessionQuery, myIdentity, peerIdentity, id)
}

// ListSessions implemented for KeyDB.
func (keyDB *KeyDB) ListSessions(myIdentity, peerIdentity string) ([]*session.Session, error) {
	rows, err := keyDB.getSessionsQuery.Query(myIdentity, peerIdentity)
	if err != nil {
		return nil, log.Error(err)
	}
	defer rows.Close()
	var list []*session.Session
	for rows.Next() {
		s, err := keyDB.scanSession(rows, myIdentity, peerIdentity)
		if err != nil {
			return nil, log.Error(err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, log.Error(err)
	}
	sort.Slice(list, func(i, j int) bool {
		return session.Better(list[i], list[j])
	})
	return list, nil
}

// BestSession implemented for KeyDB.
func (keyDB *KeyDB) BestSession(myIdentity, peerIdentity string) (*session.Session, error) {
	list, err := keyDB.ListSessions(myIdentity, peerIdentity)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// StoreSession implemented for KeyDB.
func (keyDB *KeyDB) StoreSession(s *session.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return keyDB.transact(func(tx *sql.Tx) error {
		stored, err := keyDB.exactSession(tx.Stmt(keyDB.getSessionQuery),
			s.MyIdentity, s.PeerIdentity, s.ID)
		if err != nil {
			return err
		}
		if stored != nil {
			return keyDB.updateSession(tx, session.MergeSession(stored, s))
		}
		args := append([]interface{}{s.MyIdentity, s.PeerIdentity, s.ID.String()},
			sessionArgs(s)...)
		if _, err := tx.Stmt(keyDB.insertSessionQuery).Exec(args...); err != nil {
			return log.Error(errors.Wrapf(err, "keydb: insert session %s", s.ID))
		}
		return nil
	})
}

// UpdateRatchets implemented for KeyDB.
func (keyDB *KeyDB) UpdateRatchets(s *session.Session, peer bool) error {
	return keyDB.transact(func(tx *sql.Tx) error {
		stored, err := keyDB.exactSession(tx.Stmt(keyDB.getSessionQuery),
			s.MyIdentity, s.PeerIdentity, s.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			log.Debugf("keydb: UpdateRatchets(): session %s not found", s.ID)
			return nil
		}
		m, changed := session.MergeRatchets(stored, s, peer)
		if !changed {
			return nil
		}
		return keyDB.updateSession(tx, m)
	})
}

// UpdateCommitAndVersion implemented for KeyDB.
func (keyDB *KeyDB) UpdateCommitAndVersion(s *session.Session) error {
	return keyDB.transact(func(tx *sql.Tx) error {
		stored, err := keyDB.exactSession(tx.Stmt(keyDB.getSessionQuery),
			s.MyIdentity, s.PeerIdentity, s.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			log.Debugf("keydb: UpdateCommitAndVersion(): session %s not found", s.ID)
			return nil
		}
		m, changed := session.MergeCommitAndVersion(stored, s)
		if !changed {
			return nil
		}
		return keyDB.updateSession(tx, m)
	})
}

func rowsAffected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, log.Error(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, log.Error(err)
	}
	return int(n), nil
}

// DeleteSession implemented for KeyDB.
func (keyDB *KeyDB) DeleteSession(
	myIdentity, peerIdentity string,
	id session.ID,
) (bool, error) {
	n, err := rowsAffected(keyDB.delSessionQuery.Exec(myIdentity, peerIdentity, id.String()))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAllSessions implemented for KeyDB.
func (keyDB *KeyDB) DeleteAllSessions(myIdentity, peerIdentity string) (int, error) {
	return rowsAffected(keyDB.delAllSessionsQuery.Exec(myIdentity, peerIdentity))
}

// DeleteAllSessionsExcept implemented for KeyDB.
func (keyDB *KeyDB) DeleteAllSessionsExcept(
	myIdentity, peerIdentity string,
	exclude session.ID,
	fourDHOnly bool,
) (int, error) {
	stmt := keyDB.delSessionsExceptQuery
	if fourDHOnly {
		stmt = keyDB.delSessions4DHExceptQuery
	}
	return rowsAffected(stmt.Exec(myIdentity, peerIdentity, exclude.String()))
}

// HasInvalidVersionSessions implemented for KeyDB.
func (keyDB *KeyDB) HasInvalidVersionSessions(
	myIdentity, peerIdentity string,
	supported fsver.Range,
) (bool, error) {
	rows, err := keyDB.getVersionsQuery.Query(myIdentity, peerIdentity)
	if err != nil {
		return false, log.Error(err)
	}
	defer rows.Close()
	var invalid bool
	for rows.Next() {
		var local, remote int64
		if err := rows.Scan(&local, &remote); err != nil {
			return false, log.Error(err)
		}
		if !supported.Contains(fsver.FromWire(uint32(local))) ||
			!supported.Contains(fsver.FromWire(uint32(remote))) {
			invalid = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, log.Error(err)
	}
	return invalid, nil
}

// GetPeers returns the identities of all peers myIdentity has sessions
// with.
func (keyDB *KeyDB) GetPeers(myIdentity string) ([]string, error) {
	rows, err := keyDB.getPeersQuery.Query(myIdentity)
	if err != nil {
		return nil, log.Error(err)
	}
	defer rows.Close()
	var peers []string
	for rows.Next() {
		var peer string
		if err := rows.Scan(&peer); err != nil {
			return nil, log.Error(err)
		}
		peers = append(peers, peer)
	}
	if err := rows.Err(); err != nil {
		return nil, log.Error(err)
	}
	return peers, nil
}
