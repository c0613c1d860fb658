// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package encdb defines the encrypted database used to store forward secrecy
sessions. Such an encrypted database consists of two files for a given
database with name "dbname":

	dbname.db
	dbname.key

The file "dbname.db" is an AES-256 encrypted sqlite3 file managed by the
package "github.com/mutecomm/go-sqlcipher". The file "dbname.key" contains
the randomly generated raw encryption key for "dbname.db", encrypted with
AES-256 under a key derived from a passphrase with PBKDF2.

A rekey only replaces the key file, the database file stays untouched.
*/
package encdb

import (
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/frankbraun/codechain/util/file"
	"github.com/mutecomm/go-sqlcipher"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/util"
)

// DBSuffix defines the suffix for database files.
const DBSuffix = ".db"

// KeySuffix defines the suffix for key files.
const KeySuffix = ".key"

func dsn(dbfile string, key []byte) string {
	return dbfile + fmt.Sprintf("?_pragma_key=x'%s'&_pragma_cipher_page_size=4096",
		hex.EncodeToString(key))
}

// Create creates an encrypted database with the given passphrase and iter
// many KDF iterations. The files dbname.db and dbname.key must not exist.
// The database is initialized with the statements given in createStmts.
func Create(dbname string, passphrase []byte, iter int, createStmts []string) error {
	dbfile := dbname + DBSuffix
	keyfile := dbname + KeySuffix
	if err := util.MustNotExist(dbfile, keyfile); err != nil {
		return err
	}
	key, err := generateKeyfile(keyfile, passphrase, iter)
	if err != nil {
		return err
	}
	db, err := sql.Open("sqlite3", dsn(dbfile, key))
	if err != nil {
		return log.Error(err)
	}
	if _, err := db.Exec("PRAGMA auto_vacuum = full;"); err != nil {
		db.Close()
		return log.Error(err)
	}
	for _, stmt := range createStmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return log.Errorf("encdb: %q: %s", err, stmt)
		}
	}
	if err := db.Close(); err != nil {
		return log.Error(err)
	}
	encrypted, err := sqlite3.IsEncrypted(dbfile)
	if err != nil {
		return log.Error(err)
	}
	if !encrypted {
		return log.Errorf("encdb: created dbfile '%s' is not encrypted", dbfile)
	}
	return nil
}

// Open opens the encrypted database dbname with the given passphrase.
func Open(dbname string, passphrase []byte) (*sql.DB, error) {
	dbfile := dbname + DBSuffix
	keyfile := dbname + KeySuffix
	for _, filename := range []string{dbfile, keyfile} {
		exists, err := file.Exists(filename)
		if err != nil {
			return nil, log.Error(err)
		}
		if !exists {
			return nil, log.Errorf("encdb: file '%s' does not exist", filename)
		}
	}
	encrypted, err := sqlite3.IsEncrypted(dbfile)
	if err != nil {
		return nil, log.Error(err)
	}
	if !encrypted {
		return nil, log.Errorf("encdb: dbfile '%s' is not encrypted", dbfile)
	}
	key, err := readKeyfile(keyfile, passphrase)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn(dbfile, key)+"&_foreign_keys=1")
	if err != nil {
		return nil, log.Error(err)
	}
	// test key
	if _, err := db.Exec("SELECT count(*) FROM sqlite_master;"); err != nil {
		db.Close()
		return nil, log.Error(err)
	}
	return db, nil
}

// Rekey replaces the key file of dbname with one protected by newPassphrase
// and newIter many KDF iterations. The correct oldPassphrase must be given.
func Rekey(dbname string, oldPassphrase, newPassphrase []byte, newIter int) error {
	db, err := Open(dbname, oldPassphrase)
	if err != nil {
		return err
	}
	defer db.Close()
	return replaceKeyfile(dbname+KeySuffix, oldPassphrase, newPassphrase, newIter)
}

var autoVacuumModes = []string{
	"NONE",
	"FULL",
	"INCREMENTAL",
}

// Status returns the auto_vacuum mode and the freelist count of db.
func Status(db *sql.DB) (autoVacuum string, freelistCount int64, err error) {
	var av int64
	if err = db.QueryRow("PRAGMA auto_vacuum;").Scan(&av); err != nil {
		return "", 0, log.Error(err)
	}
	if av < 0 || av >= int64(len(autoVacuumModes)) {
		return "", 0, log.Errorf("encdb: unknown auto_vacuum mode %d", av)
	}
	autoVacuum = autoVacuumModes[av]
	if err = db.QueryRow("PRAGMA freelist_count;").Scan(&freelistCount); err != nil {
		return "", 0, log.Error(err)
	}
	return
}

// Vacuum executes VACUUM in db. If autoVacuumMode is not empty and differs
// from the current one, the auto_vacuum mode is changed first.
func Vacuum(db *sql.DB, autoVacuumMode string) error {
	if autoVacuumMode != "" {
		if !util.ContainsString(autoVacuumModes, autoVacuumMode) {
			return log.Errorf("encdb: unknown auto_vacuum mode: %s", autoVacuumMode)
		}
		current, _, err := Status(db)
		if err != nil {
			return err
		}
		if current != autoVacuumMode {
			_, err = db.Exec(fmt.Sprintf("PRAGMA auto_vacuum = %s;", autoVacuumMode))
			if err != nil {
				return log.Error(err)
			}
		}
	}
	if _, err := db.Exec("VACUUM;"); err != nil {
		return log.Error(err)
	}
	return nil
}
