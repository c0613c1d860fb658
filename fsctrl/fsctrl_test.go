// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !windows

package fsctrl

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCtrl struct {
	t       *testing.T
	ctrl    *FSCtrl
	homedir string
	out     bytes.Buffer
}

func newTestCtrl(t *testing.T) *testCtrl {
	homedir, err := ioutil.TempDir("", "fsctrl_test")
	require.NoError(t, err)
	tc := &testCtrl{t: t, ctrl: New(), homedir: homedir}
	tc.ctrl.app.Writer = &tc.out
	tc.ctrl.statusfp = ioutil.Discard
	return tc
}

func (tc *testCtrl) close() {
	tc.ctrl.Close()
	os.RemoveAll(tc.homedir)
}

// passphraseFD returns a file descriptor from which lines can be read. The
// descriptor is owned by whoever reads it.
func (tc *testCtrl) passphraseFD(lines ...string) string {
	r, w, err := os.Pipe()
	require.NoError(tc.t, err)
	_, err = w.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(tc.t, err)
	require.NoError(tc.t, w.Close())
	fd, err := syscall.Dup(int(r.Fd()))
	require.NoError(tc.t, err)
	require.NoError(tc.t, r.Close())
	return strconv.Itoa(fd)
}

// run executes the given command and returns its output.
func (tc *testCtrl) run(fd string, args ...string) (string, error) {
	tc.out.Reset()
	all := []string{
		"mutefs",
		"--homedir", tc.homedir,
		"--logdir", filepath.Join(tc.homedir, "log"),
	}
	if fd != "" {
		all = append(all, "--passphrase-fd", fd)
	}
	err := tc.ctrl.Start(append(all, args...))
	return tc.out.String(), err
}

func TestVersion(t *testing.T) {
	tc := newTestCtrl(t)
	defer tc.close()
	out, err := tc.run("", "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "mutefs version "+Version)
	assert.Contains(t, out, "commit ")
}

func TestDemoMemory(t *testing.T) {
	tc := newTestCtrl(t)
	defer tc.close()
	out, err := tc.run("", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, `ALICE001 -> BOB*0002: "message 1 from ALICE001" (2DH)`)
	assert.Contains(t, out, `BOB*0002 <- ALICE001: "message 3 from ALICE001" (4DH)`)
	assert.Contains(t, out, "(ALICE001 -> BOB*0002, RL44)")
	assert.Contains(t, out, "(BOB*0002 -> ALICE001, RL44)")
	assert.NotContains(t, out, "rejected")
}

func TestDemoDropAccept(t *testing.T) {
	tc := newTestCtrl(t)
	defer tc.close()
	out, err := tc.run("", "demo", "--drop-accept", "--messages", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "transport: dropped 1 packets for ALICE001")
	assert.Contains(t, out, "cannot decrypt this DH mode")
	assert.Contains(t, out, "rejected message")
	// the parties recover with a session initiated by BOB*0002
	assert.Contains(t, out, "BOB*0002: initiated session")
	assert.Contains(t, out, "(ALICE001 -> BOB*0002, RL44)")
	assert.Contains(t, out, "(BOB*0002 -> ALICE001, RL44)")
}

func TestSuperfluousArgs(t *testing.T) {
	tc := newTestCtrl(t)
	defer tc.close()
	_, err := tc.run("", "demo", "foo")
	assert.Error(t, err)
}

func TestCreatePassphrasesDiffer(t *testing.T) {
	tc := newTestCtrl(t)
	defer tc.close()
	_, err := tc.run(tc.passphraseFD("secret", "terces"), "db", "create", "--iterations", "4096")
	assert.Equal(t, ErrPassphrasesDiffer, err)
}

func TestKeyDBCommands(t *testing.T) {
	tc := newTestCtrl(t)
	defer tc.close()

	_, err := tc.run(tc.passphraseFD("secret", "secret"), "db", "create", "--iterations", "4096")
	require.NoError(t, err)
	// creating it twice fails
	_, err = tc.run("", "db", "create", "--iterations", "4096")
	require.Error(t, err)

	// the first command which needs the database opens it
	out, err := tc.run(tc.passphraseFD("secret"), "id", "generate", "--id", "ALICE001")
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.Len(t, fields, 2)
	assert.Equal(t, "ALICE001", fields[0])

	out, err = tc.run("", "id", "list")
	require.NoError(t, err)
	assert.Equal(t, "ALICE001 "+fields[1]+"\n", out)

	_, err = tc.run("", "contact", "add", "--contact", "BOB*0002", "--pubkey", fields[1])
	require.NoError(t, err)
	_, err = tc.run("", "contact", "add", "--contact", "CAROL003", "--pubkey", "AAAA")
	require.Error(t, err)
	out, err = tc.run("", "contact", "list")
	require.NoError(t, err)
	assert.Equal(t, "BOB*0002 "+fields[1]+"\n", out)
	_, err = tc.run("", "contact", "delete", "--contact", "BOB*0002")
	require.NoError(t, err)
	out, err = tc.run("", "contact", "list")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = tc.run("", "demo", "--store", "keydb", "--messages", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "(ALICE001 -> BOB*0002, RL44)")

	out, err = tc.run("", "session", "list", "--id", "ALICE001", "--json")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &info))
	assert.Equal(t, "BOB*0002", info["Peer"])
	assert.Equal(t, "RL44", info["State"])
	assert.Equal(t, true, info["FourDHActive"])
	sid := info["Session"].(string)

	out, err = tc.run("", "session", "list", "--id", "ALICE001", "--contact", "BOB*0002")
	require.NoError(t, err)
	assert.Contains(t, out, "State:        RL44\n")

	out, err = tc.run("", "session", "list", "--id", "ALICE001", "--dump")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "(fsctrl.sessionDump) {\n"), out)
	assert.Contains(t, out, `  Session: (string) (len=32) "`+sid+`",`)
	assert.Contains(t, out, `  State: (string) (len=4) "RL44",`)
	assert.Contains(t, out, `  PeerIdentity: (string) (len=8) "BOB*0002",`)
	assert.Contains(t, out, "  MyCounter2DH: (uint64) 0,")
	assert.Contains(t, out, "  PeerCounter2DH: (uint64) 0,")
	assert.NotContains(t, out, "chainKey")
	assert.NotContains(t, out, "Ratchet")

	_, err = tc.run("", "session", "delete", "--id", "ALICE001")
	require.Error(t, err) // --contact missing
	_, err = tc.run("", "session", "delete", "--id", "ALICE001",
		"--contact", "BOB*0002", "--session", "zz")
	require.Error(t, err)
	out, err = tc.run("", "session", "delete", "--id", "ALICE001",
		"--contact", "BOB*0002", "--session", sid)
	require.NoError(t, err)
	assert.Equal(t, "session "+sid+" deleted\n", out)
	out, err = tc.run("", "session", "delete", "--id", "BOB*0002", "--contact", "ALICE001")
	require.NoError(t, err)
	assert.Equal(t, "1 sessions deleted\n", out)
	out, err = tc.run("", "session", "list", "--id", "ALICE001")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = tc.run("", "db", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "version:\t1\n")
	_, err = tc.run("", "db", "vacuum", "--auto-vacuum", "INCREMENTAL")
	require.NoError(t, err)
	out, err = tc.run("", "db", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "auto_vacuum:\tINCREMENTAL\n")
}
