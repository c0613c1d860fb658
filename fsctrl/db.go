// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fsctrl

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mutecomm/mutefs/encdb"
	"github.com/mutecomm/mutefs/keydb"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/util"
	"github.com/mutecomm/mutefs/util/bzero"
	"github.com/urfave/cli"
	"golang.org/x/crypto/ssh/terminal"
)

// ErrPassphrasesDiffer is raised when the supplied passphrases during a DB
// creation or rekey operation differ.
var ErrPassphrasesDiffer = errors.New("fsctrl: passphrases differ")

// readPassphrases reads the given prompts from the passphrase file
// descriptor, one line each.
func (ctrl *FSCtrl) readPassphrases(c *cli.Context, prompts ...string) ([][]byte, error) {
	passphraseFD := c.GlobalInt("passphrase-fd")
	fp := os.NewFile(uintptr(passphraseFD), "passphrase-fd")
	defer fp.Close()
	var passphrases [][]byte
	if terminal.IsTerminal(passphraseFD) {
		for _, prompt := range prompts {
			fmt.Fprintf(ctrl.statusfp, "%s: ", prompt)
			passphrase, err := terminal.ReadPassword(passphraseFD)
			fmt.Fprintln(ctrl.statusfp)
			if err != nil {
				return nil, log.Error(err)
			}
			passphrases = append(passphrases, passphrase)
		}
		return passphrases, nil
	}
	scanner := bufio.NewScanner(fp)
	for _, prompt := range prompts {
		log.Infof("read %s from fd %d", prompt, passphraseFD)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, log.Error(err)
			}
			return nil, log.Errorf("fsctrl: %s missing on fd %d", prompt, passphraseFD)
		}
		// the scanner reuses its buffer
		passphrase := append([]byte(nil), scanner.Bytes()...)
		passphrases = append(passphrases, passphrase)
	}
	return passphrases, nil
}

func wipe(passphrases [][]byte) {
	for _, passphrase := range passphrases {
		bzero.Bytes(passphrase)
	}
}

// create a new KeyDB.
func (ctrl *FSCtrl) dbCreate(c *cli.Context) error {
	dbname := dbName(c)
	if err := util.MustNotExist(dbname+encdb.DBSuffix, dbname+encdb.KeySuffix); err != nil {
		return err
	}
	passphrases, err := ctrl.readPassphrases(c, "passphrase", "passphrase again")
	if err != nil {
		return err
	}
	defer wipe(passphrases)
	if !bytes.Equal(passphrases[0], passphrases[1]) {
		return log.Error(ErrPassphrasesDiffer)
	}
	log.Infof("create keyDB '%s'", dbname)
	if err := keydb.Create(dbname, passphrases[0], c.Int("iterations")); err != nil {
		return err
	}
	fmt.Fprintf(ctrl.statusfp, "database files created\n")
	log.Info("database files created")
	return nil
}

// rekey KeyDB.
func (ctrl *FSCtrl) dbRekey(c *cli.Context) error {
	passphrases, err := ctrl.readPassphrases(c, "old passphrase",
		"new passphrase", "new passphrase again")
	if err != nil {
		return err
	}
	defer wipe(passphrases)
	if !bytes.Equal(passphrases[1], passphrases[2]) {
		return log.Error(ErrPassphrasesDiffer)
	}
	if err := keydb.Rekey(dbName(c), passphrases[0], passphrases[1], c.Int("iterations")); err != nil {
		return err
	}
	fmt.Fprintf(ctrl.statusfp, "database rekeyed\n")
	log.Info("database rekeyed")
	return nil
}

func (ctrl *FSCtrl) dbStatus(w io.Writer) error {
	version, err := ctrl.keyDB.Version()
	if err != nil {
		return err
	}
	autoVacuum, freelistCount, err := ctrl.keyDB.Status()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "keydb:\n")
	fmt.Fprintf(w, "version:\t%s\n", version)
	fmt.Fprintf(w, "auto_vacuum:\t%s\n", autoVacuum)
	fmt.Fprintf(w, "freelist_count:\t%d\n", freelistCount)
	return nil
}
