// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keydb

import (
	"database/sql"

	"github.com/mutecomm/mutefs/log"
)

// AddValue adds a key-value pair to keyDB. An existing value for key is
// replaced.
func (keyDB *KeyDB) AddValue(key, value string) error {
	if key == "" {
		return log.Error("keydb: key must be defined")
	}
	if value == "" {
		return log.Error("keydb: value must be defined")
	}
	n, err := rowsAffected(keyDB.updateValueQuery.Exec(value, key))
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := keyDB.insertValueQuery.Exec(key, value); err != nil {
		return log.Error(err)
	}
	return nil
}

// GetValue gets the value for the given key from keyDB. If key is not
// defined, an empty string is returned.
func (keyDB *KeyDB) GetValue(key string) (string, error) {
	if key == "" {
		return "", log.Error("keydb: key must be defined")
	}
	var value string
	err := keyDB.getValueQuery.QueryRow(key).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return "", nil
	case err != nil:
		return "", log.Error(err)
	}
	return value, nil
}
