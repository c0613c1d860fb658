// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package keydb defines an encrypted database used to store forward secrecy
// sessions together with the local identities and the public keys of
// contacts.
package keydb

import (
	"database/sql"

	"github.com/mutecomm/mutefs/encdb"
	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/log"
)

// Version is the current keydb version.
const Version = "1"

// Entries in KeyValueTable.
const (
	DBVersion = "Version" // version string of keydb
)

const (
	createQueryKeyValue = `
CREATE TABLE KeyValueStore (
  KeyEntry   TEXT NOT NULL UNIQUE,
  ValueEntry TEXT NOT NULL
);`
	createQueryIdentities = `
CREATE TABLE Identities (
  ID         INTEGER PRIMARY KEY,
  Identity   TEXT    NOT NULL UNIQUE,
  PrivateKey TEXT    NOT NULL  -- base64
);`
	createQueryContacts = `
CREATE TABLE Contacts (
  ID        INTEGER PRIMARY KEY,
  Identity  TEXT    NOT NULL UNIQUE,
  PublicKey TEXT    NOT NULL  -- base64
);`
	createQuerySessions = `
CREATE TABLE Sessions (
  ID                   INTEGER PRIMARY KEY,
  MyIdentity           TEXT    NOT NULL,
  PeerIdentity         TEXT    NOT NULL,
  SessionID            TEXT    NOT NULL, -- hex
  State                INTEGER NOT NULL,
  MyEphemeralPublicKey TEXT    NOT NULL, -- hex
  MyCounter2DH         INTEGER,
  MyChainKey2DH        TEXT,
  MyCounter4DH         INTEGER,
  MyChainKey4DH        TEXT,
  PeerCounter2DH       INTEGER,
  PeerChainKey2DH      TEXT,
  PeerCounter4DH       INTEGER,
  PeerChainKey4DH      TEXT,
  RemoteMin            INTEGER NOT NULL, -- wire encoding of versions
  RemoteMax            INTEGER NOT NULL,
  LocalVersion         INTEGER,          -- NULL for states without 4DH
  RemoteVersion        INTEGER,
  Committed            INTEGER NOT NULL, -- 1: new session committed
  LastMessageSent      INTEGER NOT NULL, -- unix nanoseconds, 0: never
  UNIQUE(MyIdentity, PeerIdentity, SessionID)
);`
	sessionColumns = "SessionID, State, MyEphemeralPublicKey, " +
		"MyCounter2DH, MyChainKey2DH, MyCounter4DH, MyChainKey4DH, " +
		"PeerCounter2DH, PeerChainKey2DH, PeerCounter4DH, PeerChainKey4DH, " +
		"RemoteMin, RemoteMax, LocalVersion, RemoteVersion, Committed, LastMessageSent"
	updateValueQuery   = "UPDATE KeyValueStore SET ValueEntry=? WHERE KeyEntry=?;"
	insertValueQuery   = "INSERT INTO KeyValueStore (KeyEntry, ValueEntry) VALUES (?, ?);"
	getValueQuery      = "SELECT ValueEntry FROM KeyValueStore WHERE KeyEntry=?;"
	addIdentityQuery   = "INSERT INTO Identities (Identity, PrivateKey) VALUES (?, ?);"
	getIdentityQuery   = "SELECT PrivateKey FROM Identities WHERE Identity=?;"
	getIdentitiesQuery = "SELECT Identity FROM Identities ORDER BY Identity;"
	addContactQuery    = "INSERT OR REPLACE INTO Contacts (Identity, PublicKey) VALUES (?, ?);"
	getContactQuery    = "SELECT PublicKey FROM Contacts WHERE Identity=?;"
	getContactsQuery   = "SELECT Identity FROM Contacts ORDER BY Identity;"
	delContactQuery    = "DELETE FROM Contacts WHERE Identity=?;"
	getSessionQuery    = "SELECT " + sessionColumns + " FROM Sessions WHERE MyIdentity=? AND PeerIdentity=? AND SessionID=?;"
	getSessionsQuery   = "SELECT " + sessionColumns + " FROM Sessions WHERE MyIdentity=? AND PeerIdentity=?;"
	getPeersQuery      = "SELECT DISTINCT PeerIdentity FROM Sessions WHERE MyIdentity=? ORDER BY PeerIdentity;"
	insertSessionQuery = "INSERT INTO Sessions (MyIdentity, PeerIdentity, " + sessionColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);"
	updateSessionQuery = "UPDATE Sessions SET State=?, MyEphemeralPublicKey=?, " +
		"MyCounter2DH=?, MyChainKey2DH=?, MyCounter4DH=?, MyChainKey4DH=?, " +
		"PeerCounter2DH=?, PeerChainKey2DH=?, PeerCounter4DH=?, PeerChainKey4DH=?, " +
		"RemoteMin=?, RemoteMax=?, LocalVersion=?, RemoteVersion=?, Committed=?, LastMessageSent=? " +
		"WHERE MyIdentity=? AND PeerIdentity=? AND SessionID=?;"
	delSessionQuery           = "DELETE FROM Sessions WHERE MyIdentity=? AND PeerIdentity=? AND SessionID=?;"
	delAllSessionsQuery       = "DELETE FROM Sessions WHERE MyIdentity=? AND PeerIdentity=?;"
	delSessionsExceptQuery    = "DELETE FROM Sessions WHERE MyIdentity=? AND PeerIdentity=? AND SessionID<>?;"
	delSessions4DHExceptQuery = "DELETE FROM Sessions WHERE MyIdentity=? AND PeerIdentity=? AND SessionID<>? " +
		"AND MyCounter4DH IS NOT NULL;"
	getVersionsQuery = "SELECT LocalVersion, RemoteVersion FROM Sessions " +
		"WHERE MyIdentity=? AND PeerIdentity=? AND LocalVersion IS NOT NULL;"
)

// KeyDB is a handle for an encrypted database used to store forward secrecy
// sessions. It implements the session.Store interface.
type KeyDB struct {
	encDB                     *sql.DB // handle for encDB
	localRange                fsver.Range
	updateValueQuery          *sql.Stmt
	insertValueQuery          *sql.Stmt
	getValueQuery             *sql.Stmt
	addIdentityQuery          *sql.Stmt
	getIdentityQuery          *sql.Stmt
	getIdentitiesQuery        *sql.Stmt
	addContactQuery           *sql.Stmt
	getContactQuery           *sql.Stmt
	getContactsQuery          *sql.Stmt
	delContactQuery           *sql.Stmt
	getSessionQuery           *sql.Stmt
	getSessionsQuery          *sql.Stmt
	getPeersQuery             *sql.Stmt
	insertSessionQuery        *sql.Stmt
	updateSessionQuery        *sql.Stmt
	delSessionQuery           *sql.Stmt
	delAllSessionsQuery       *sql.Stmt
	delSessionsExceptQuery    *sql.Stmt
	delSessions4DHExceptQuery *sql.Stmt
	getVersionsQuery          *sql.Stmt
}

// Create returns a new key database with the given dbname.
// It is encrypted by passphrase (processed by a KDF with iter many iterations).
func Create(dbname string, passphrase []byte, iter int) error {
	err := encdb.Create(dbname, passphrase, iter, []string{
		createQueryKeyValue,
		createQueryIdentities,
		createQueryContacts,
		createQuerySessions,
	})
	if err != nil {
		return err
	}
	keyDB, err := Open(dbname, passphrase, fsver.Range{})
	if err != nil {
		return err
	}
	defer keyDB.Close()
	if err := keyDB.AddValue(DBVersion, Version); err != nil {
		return err
	}
	return nil
}

// Version returns the current version of keyDB.
func (keyDB *KeyDB) Version() (string, error) {
	version, err := keyDB.GetValue(DBVersion)
	if err != nil {
		return "", err
	}
	return version, nil
}

// Open opens the key database with dbname and passphrase. Sessions loaded
// from the database are restored with the given local version range.
func Open(dbname string, passphrase []byte, localRange fsver.Range) (*KeyDB, error) {
	var keyDB KeyDB
	var err error
	keyDB.encDB, err = encdb.Open(dbname, passphrase)
	if err != nil {
		return nil, err
	}
	// sessions are updated read-merge-write, serialize all access
	keyDB.encDB.SetMaxOpenConns(1)
	keyDB.localRange = localRange
	stmts := []struct {
		stmt  **sql.Stmt
		query string
	}{
		{&keyDB.updateValueQuery, updateValueQuery},
		{&keyDB.insertValueQuery, insertValueQuery},
		{&keyDB.getValueQuery, getValueQuery},
		{&keyDB.addIdentityQuery, addIdentityQuery},
		{&keyDB.getIdentityQuery, getIdentityQuery},
		{&keyDB.getIdentitiesQuery, getIdentitiesQuery},
		{&keyDB.addContactQuery, addContactQuery},
		{&keyDB.getContactQuery, getContactQuery},
		{&keyDB.getContactsQuery, getContactsQuery},
		{&keyDB.delContactQuery, delContactQuery},
		{&keyDB.getSessionQuery, getSessionQuery},
		{&keyDB.getSessionsQuery, getSessionsQuery},
		{&keyDB.getPeersQuery, getPeersQuery},
		{&keyDB.insertSessionQuery, insertSessionQuery},
		{&keyDB.updateSessionQuery, updateSessionQuery},
		{&keyDB.delSessionQuery, delSessionQuery},
		{&keyDB.delAllSessionsQuery, delAllSessionsQuery},
		{&keyDB.delSessionsExceptQuery, delSessionsExceptQuery},
		{&keyDB.delSessions4DHExceptQuery, delSessions4DHExceptQuery},
		{&keyDB.getVersionsQuery, getVersionsQuery},
	}
	for _, s := range stmts {
		if *s.stmt, err = keyDB.encDB.Prepare(s.query); err != nil {
			keyDB.encDB.Close()
			return nil, log.Errorf("keydb: %s: %s", err, s.query)
		}
	}
	return &keyDB, nil
}

// Close the key database.
func (keyDB *KeyDB) Close() error {
	return keyDB.encDB.Close()
}

// Rekey tries to rekey the key database dbname with the newPassphrase
// (processed by a KDF with iter many iterations). The supplied oldPassphrase
// must be correct, otherwise an error is returned.
func Rekey(dbname string, oldPassphrase, newPassphrase []byte, newIter int) error {
	return encdb.Rekey(dbname, oldPassphrase, newPassphrase, newIter)
}

// Status returns the autoVacuum mode and freelistCount of keyDB.
func (keyDB *KeyDB) Status() (
	autoVacuum string,
	freelistCount int64,
	err error,
) {
	return encdb.Status(keyDB.encDB)
}

// Vacuum executes VACUUM command in keyDB. If autoVacuumMode is not nil and
// different from the current one, the auto_vacuum mode is changed before
// VACUUM is executed.
func (keyDB *KeyDB) Vacuum(autoVacuumMode string) error {
	return encdb.Vacuum(keyDB.encDB, autoVacuumMode)
}
