// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keydb

import (
	"database/sql"
	"encoding/base64"

	"github.com/mutecomm/mutefs/identity"
	"github.com/mutecomm/mutefs/log"
)

// AddIdentity adds the local identity kp to keyDB.
func (keyDB *KeyDB) AddIdentity(kp *identity.KeyPair) error {
	_, err := keyDB.addIdentityQuery.Exec(
		kp.Identity(),
		base64.StdEncoding.EncodeToString(kp.PrivateKey()[:]),
	)
	if err != nil {
		return log.Error(err)
	}
	return nil
}

// GetIdentity returns the key pair of the local identity id from keyDB or
// nil, if it does not exist.
func (keyDB *KeyDB) GetIdentity(id string) (*identity.KeyPair, error) {
	var secret string
	err := keyDB.getIdentityQuery.QueryRow(id).Scan(&secret)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, log.Error(err)
	}
	return identity.FromBase64(id, secret)
}

// GetIdentities returns all local identities from keyDB.
func (keyDB *KeyDB) GetIdentities() ([]string, error) {
	return keyDB.identities(keyDB.getIdentitiesQuery)
}

// AddContact adds the contact id with the long-term publicKey to keyDB.
// An existing contact with the same identity is replaced.
func (keyDB *KeyDB) AddContact(id string, publicKey *[32]byte) error {
	if err := identity.Check(id); err != nil {
		return log.Error(err)
	}
	_, err := keyDB.addContactQuery.Exec(id,
		base64.StdEncoding.EncodeToString(publicKey[:]))
	if err != nil {
		return log.Error(err)
	}
	return nil
}

// GetContact returns the long-term public key of contact id or nil, if the
// contact does not exist.
func (keyDB *KeyDB) GetContact(id string) (*[32]byte, error) {
	var pub string
	err := keyDB.getContactQuery.QueryRow(id).Scan(&pub)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, log.Error(err)
	}
	b, err := base64.StdEncoding.DecodeString(pub)
	if err != nil {
		return nil, log.Error(err)
	}
	if len(b) != 32 {
		return nil, log.Errorf("keydb: public key of contact %s has wrong length", id)
	}
	var publicKey [32]byte
	copy(publicKey[:], b)
	return &publicKey, nil
}

// GetContacts returns all contacts from keyDB.
func (keyDB *KeyDB) GetContacts() ([]string, error) {
	return keyDB.identities(keyDB.getContactsQuery)
}

// DelContact deletes the contact id from keyDB.
func (keyDB *KeyDB) DelContact(id string) error {
	if _, err := keyDB.delContactQuery.Exec(id); err != nil {
		return log.Error(err)
	}
	return nil
}

func (keyDB *KeyDB) identities(stmt *sql.Stmt) ([]string, error) {
	rows, err := stmt.Query()
	if err != nil {
		return nil, log.Error(err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, log.Error(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, log.Error(err)
	}
	return ids, nil
}
