// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fsctrl implements the command engine for mutefs.
package fsctrl

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mutecomm/mutefs/def"
	"github.com/mutecomm/mutefs/keydb"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/release"
	"github.com/mutecomm/mutefs/util"
	"github.com/urfave/cli"
)

// Version is the version of mutefs.
const Version = "0.1.0"

var (
	defaultHomeDir = homeDir()
	defaultLogDir  = filepath.Join(defaultHomeDir, "log")
)

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mutefs"
	}
	return filepath.Join(home, ".mutefs")
}

// FSCtrl abstracts a mutefs command engine.
type FSCtrl struct {
	prepared bool
	keyDB    *keydb.KeyDB
	app      *cli.App
	statusfp io.Writer
}

func (ctrl *FSCtrl) prepare(c *cli.Context) error {
	if ctrl.prepared {
		return nil
	}
	// create the necessary directories if they don't already exist
	homedir := c.GlobalString("homedir")
	err := util.CreateDirs(homedir, filepath.Join(homedir, "db"),
		filepath.Join(homedir, "config"), c.GlobalString("logdir"))
	if err != nil {
		return err
	}
	err = log.Init(c.GlobalString("loglevel"), "fs   ",
		c.GlobalString("logdir"), c.GlobalBool("logconsole"))
	if err != nil {
		return err
	}
	// read config file, if it exists
	if err := def.InitFromFile(homedir); err != nil {
		return err
	}
	ctrl.prepared = true
	return nil
}

func dbName(c *cli.Context) string {
	return filepath.Join(c.GlobalString("homedir"), "db", def.KeyDBName)
}

// openKeyDB opens the key database, if it is not open already. The
// passphrase is read from the passphrase file descriptor.
func (ctrl *FSCtrl) openKeyDB(c *cli.Context) error {
	if ctrl.keyDB != nil {
		return nil
	}
	fp := os.NewFile(uintptr(c.GlobalInt("passphrase-fd")), "passphrase-fd")
	log.Infof("read passphrase from fd %d", c.GlobalInt("passphrase-fd"))
	passphrase, err := util.Readline(fp)
	if err != nil {
		return err
	}
	keyDB, err := keydb.Open(dbName(c), passphrase, def.FSVersionRange)
	if err != nil {
		return err
	}
	ctrl.keyDB = keyDB
	return nil
}

func noArgs(c *cli.Context) error {
	if len(c.Args()) > 0 {
		return log.Errorf("superfluous argument(s): %s", strings.Join(c.Args(), " "))
	}
	return nil
}

func checkID(c *cli.Context) error {
	if err := noArgs(c); err != nil {
		return err
	}
	if c.String("id") == "" {
		return log.Error("option --id is mandatory")
	}
	return nil
}

func checkIDAndContact(c *cli.Context) error {
	if err := checkID(c); err != nil {
		return err
	}
	if c.String("contact") == "" {
		return log.Error("option --contact is mandatory")
	}
	return nil
}

// New returns a new FSCtrl.
func New() *FSCtrl {
	var ctrl FSCtrl
	ctrl.statusfp = os.Stderr
	ctrl.app = cli.NewApp()
	ctrl.app.Name = "mutefs"
	ctrl.app.Usage = "tool to manage forward secrecy sessions."
	ctrl.app.Version = Version
	ctrl.app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "homedir",
			Value: defaultHomeDir,
			Usage: "set home directory",
		},
		cli.IntFlag{
			Name:  "passphrase-fd",
			Value: 0,
			Usage: "passphrase file descriptor",
		},
		cli.StringFlag{
			Name:  "loglevel",
			Value: "info",
			Usage: "logging level {trace, debug, info, warn, error, critical}",
		},
		cli.StringFlag{
			Name:  "logdir",
			Value: defaultLogDir,
			Usage: "directory to log output",
		},
		cli.BoolFlag{
			Name:  "logconsole",
			Usage: "enable logging to console",
		},
	}
	ctrl.app.Before = func(c *cli.Context) error {
		return ctrl.prepare(c)
	}
	idFlag := cli.StringFlag{
		Name:  "id",
		Usage: "local identity",
	}
	contactFlag := cli.StringFlag{
		Name:  "contact",
		Usage: "identity of contact (peer)",
	}
	iterationsFlag := cli.IntFlag{
		Name:  "iterations",
		Value: def.KDFIterations,
		Usage: "number of KDF iterations used for DB creation",
	}
	ctrl.app.Commands = []cli.Command{
		{
			Name:  "db",
			Usage: "Commands for the local key database",
			Subcommands: []cli.Command{
				{
					Name:   "create",
					Usage:  "Create key database",
					Flags:  []cli.Flag{iterationsFlag},
					Before: noArgs,
					Action: func(c *cli.Context) error {
						return ctrl.dbCreate(c)
					},
				},
				{
					Name:   "rekey",
					Usage:  "Rekey key database",
					Flags:  []cli.Flag{iterationsFlag},
					Before: noArgs,
					Action: func(c *cli.Context) error {
						return ctrl.dbRekey(c)
					},
				},
				{
					Name:   "status",
					Usage:  "Show status of key database",
					Before: noArgs,
					Action: func(c *cli.Context) error {
						if err := ctrl.openKeyDB(c); err != nil {
							return err
						}
						return ctrl.dbStatus(c.App.Writer)
					},
				},
				{
					Name:  "vacuum",
					Usage: "Do full VACUUM on key database",
					Flags: []cli.Flag{
						cli.StringFlag{
							Name:  "auto-vacuum",
							Usage: "set auto_vacuum mode {NONE, FULL, INCREMENTAL}",
						},
					},
					Before: noArgs,
					Action: func(c *cli.Context) error {
						if err := ctrl.openKeyDB(c); err != nil {
							return err
						}
						return ctrl.keyDB.Vacuum(c.String("auto-vacuum"))
					},
				},
			},
		},
		{
			Name:  "id",
			Usage: "Commands for local identities",
			Subcommands: []cli.Command{
				{
					Name:   "generate",
					Usage:  "Generate new local identity",
					Flags:  []cli.Flag{idFlag},
					Before: checkID,
					Action: func(c *cli.Context) error {
						if err := ctrl.openKeyDB(c); err != nil {
							return err
						}
						return ctrl.idGenerate(c.App.Writer, c.String("id"))
					},
				},
				{
					Name:   "list",
					Usage:  "List local identities",
					Before: noArgs,
					Action: func(c *cli.Context) error {
						if err := ctrl.openKeyDB(c); err != nil {
							return err
						}
						return ctrl.idList(c.App.Writer)
					},
				},
			},
		},
		{
			Name:  "contact",
			Usage: "Commands for contacts",
			Subcommands: []cli.Command{
				{
					Name:  "add",
					Usage: "Add contact with long-term public key",
					Flags: []cli.Flag{
						contactFlag,
						cli.StringFlag{
							Name:  "pubkey",
							Usage: "base64 encoded long-term public key of contact",
						},
					},
					Before: func(c *cli.Context) error {
						if err := noArgs(c); err != nil {
							return err
						}
						if c.String("contact") == "" || c.String("pubkey") == "" {
							return log.Error("options --contact and --pubkey are mandatory")
						}
						return nil
					},
					Action: func(c *cli.Context) error {
						if err := ctrl.openKeyDB(c); err != nil {
							return err
						}
						return ctrl.contactAdd(c.String("contact"), c.String("pubkey"))
					},
				},
				{
					Name:   "list",
					Usage:  "List contacts",
					Before: noArgs,
					Action: func(c *cli.Context) error {
						if err := ctrl.openKeyDB(c); err != nil {
							return err
						}
						return ctrl.contactList(c.App.Writer)
					},
				},
				{
					Name:  "delete",
					Usage: "Delete contact",
					Flags: []cli.Flag{contactFlag},
					Before: func(c *cli.Context) error {
						if err := noArgs(c); err != nil {
							return err
						}
						if c.String("contact") == "" {
							return log.Error("option --contact is mandatory")
						}
						return nil
					},
					Action: func(c *cli.Context) error {
						if err := ctrl.openKeyDB(c); err != nil {
							return err
						}
						return ctrl.keyDB.DelContact(c.String("contact"))
					},
				},
			},
		},
		{
			Name:  "session",
			Usage: "Commands for forward secrecy sessions",
			Subcommands: []cli.Command{
				{
					Name:  "list",
					Usage: "List sessions between local identity and contact",
					Flags: []cli.Flag{
						idFlag,
						contactFlag,
						cli.BoolFlag{
							Name:  "json",
							Usage: "print sessions as JSON",
						},
						cli.BoolFlag{
							Name:  "dump",
							Usage: "dump sessions in detail (without key material)",
						},
					},
					Before: checkID,
					Action: func(c *cli.Context) error {
						if err := ctrl.openKeyDB(c); err != nil {
							return err
						}
						return ctrl.sessionList(c.App.Writer, c.String("id"),
							c.String("contact"), c.Bool("json"), c.Bool("dump"))
					},
				},
				{
					Name:  "delete",
					Usage: "Delete sessions between local identity and contact",
					Flags: []cli.Flag{
						idFlag,
						contactFlag,
						cli.StringFlag{
							Name:  "session",
							Usage: "hex encoded ID of a single session to delete",
						},
					},
					Before: checkIDAndContact,
					Action: func(c *cli.Context) error {
						if err := ctrl.openKeyDB(c); err != nil {
							return err
						}
						return ctrl.sessionDelete(c.App.Writer, c.String("id"),
							c.String("contact"), c.String("session"))
					},
				},
			},
		},
		{
			Name:  "demo",
			Usage: "Run a session between two in-memory parties",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "messages",
					Value: 3,
					Usage: "number of messages sent in each direction",
				},
				cli.BoolFlag{
					Name:  "drop-accept",
					Usage: "lose the first Accept",
				},
				cli.StringFlag{
					Name:  "store",
					Value: "memory",
					Usage: "session store {memory, keydb}",
				},
			},
			Before: noArgs,
			Action: func(c *cli.Context) error {
				if c.String("store") == "keydb" {
					if err := ctrl.openKeyDB(c); err != nil {
						return err
					}
				}
				return ctrl.demo(c.App.Writer, &demoConfig{
					messages:   c.Int("messages"),
					dropAccept: c.Bool("drop-accept"),
					keyDB:      ctrl.keyDB,
				})
			},
		},
	}
	return &ctrl
}

// Start starts the FSCtrl with the given command-line arguments.
func (ctrl *FSCtrl) Start(args []string) error {
	return ctrl.app.Run(args)
}

// Close the underlying database of the FSCtrl.
func (ctrl *FSCtrl) Close() error {
	if ctrl.keyDB != nil {
		err := ctrl.keyDB.Close()
		ctrl.keyDB = nil
		return err
	}
	return nil
}

func init() {
	cli.VersionPrinter = release.PrintVersion
}
