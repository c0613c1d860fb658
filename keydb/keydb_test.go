// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keydb

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/mutecomm/mutefs/cipher"
	"github.com/mutecomm/mutefs/identity"
	"github.com/mutecomm/mutefs/session"
	"github.com/mutecomm/mutefs/session/storetest"
	"github.com/mutecomm/mutefs/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const iter = 4096

func createDB() (tmpdir string, keyDB *KeyDB, err error) {
	tmpdir, err = ioutil.TempDir("", "keydb_test")
	if err != nil {
		return "", nil, err
	}
	dbname := filepath.Join(tmpdir, "keydb")
	passphrase := []byte(cipher.RandPass(cipher.RandReader))
	if err := Create(dbname, passphrase, iter); err != nil {
		return "", nil, err
	}
	keyDB, err = Open(dbname, passphrase, storetest.LocalRange)
	if err != nil {
		return "", nil, err
	}
	return
}

func TestHelper(t *testing.T) {
	tmpdir, keyDB, err := createDB()
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpdir)
	defer keyDB.Close()
	version, err := keyDB.Version()
	if err != nil {
		t.Fatal(err)
	}
	if version != Version {
		t.Errorf("keyDB.version() != %s", Version)
	}
}

func TestRekey(t *testing.T) {
	tmpdir, err := ioutil.TempDir("", "keydb_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpdir)
	dbname := filepath.Join(tmpdir, "keydb")
	passphrase := []byte(cipher.RandPass(cipher.RandReader))
	if err := Create(dbname, passphrase, iter); err != nil {
		t.Fatal(err)
	}
	newPassphrase := []byte(cipher.RandPass(cipher.RandReader))
	if err := Rekey(dbname, passphrase, newPassphrase, iter); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(dbname, passphrase, storetest.LocalRange); err == nil {
		t.Error("open with old passphrase should fail")
	}
	keyDB, err := Open(dbname, newPassphrase, storetest.LocalRange)
	if err != nil {
		t.Fatal(err)
	}
	if err := keyDB.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestKeyValue(t *testing.T) {
	tmpdir, keyDB, err := createDB()
	require.NoError(t, err)
	defer os.RemoveAll(tmpdir)
	defer keyDB.Close()
	assert.Error(t, keyDB.AddValue("", "value"))
	assert.Error(t, keyDB.AddValue("key", ""))
	require.NoError(t, keyDB.AddValue("key", "one"))
	require.NoError(t, keyDB.AddValue("key", "two"))
	value, err := keyDB.GetValue("key")
	require.NoError(t, err)
	assert.Equal(t, "two", value)
	value, err = keyDB.GetValue("missing")
	require.NoError(t, err)
	assert.Equal(t, "", value)
	_, err = keyDB.GetValue("")
	assert.Error(t, err)
}

func TestIdentities(t *testing.T) {
	tmpdir, keyDB, err := createDB()
	require.NoError(t, err)
	defer os.RemoveAll(tmpdir)
	defer keyDB.Close()

	alice, err := identity.Generate("ALICE001", cipher.RandReader)
	require.NoError(t, err)
	bob, err := identity.Generate("BOB*0002", cipher.RandReader)
	require.NoError(t, err)
	require.NoError(t, keyDB.AddIdentity(alice))
	require.NoError(t, keyDB.AddIdentity(bob))
	assert.Error(t, keyDB.AddIdentity(alice), "identities are unique")

	ids, err := keyDB.GetIdentities()
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.True(t, util.ContainsString(ids, "ALICE001"))
	assert.True(t, util.ContainsString(ids, "BOB*0002"))

	kp, err := keyDB.GetIdentity("ALICE001")
	require.NoError(t, err)
	require.NotNil(t, kp)
	assert.Equal(t, alice.PublicKey(), kp.PublicKey())
	kp, err = keyDB.GetIdentity("MISSING1")
	require.NoError(t, err)
	assert.Nil(t, kp)
}

func TestContacts(t *testing.T) {
	tmpdir, keyDB, err := createDB()
	require.NoError(t, err)
	defer os.RemoveAll(tmpdir)
	defer keyDB.Close()

	bob, err := identity.Generate("BOB*0002", cipher.RandReader)
	require.NoError(t, err)
	other, err := identity.Generate("BOB*0002", cipher.RandReader)
	require.NoError(t, err)
	assert.Error(t, keyDB.AddContact("bob", bob.PublicKey()))
	require.NoError(t, keyDB.AddContact(bob.Identity(), bob.PublicKey()))
	pub, err := keyDB.GetContact(bob.Identity())
	require.NoError(t, err)
	assert.Equal(t, bob.PublicKey(), pub)

	// replace
	require.NoError(t, keyDB.AddContact(other.Identity(), other.PublicKey()))
	pub, err = keyDB.GetContact(bob.Identity())
	require.NoError(t, err)
	assert.Equal(t, other.PublicKey(), pub)
	contacts, err := keyDB.GetContacts()
	require.NoError(t, err)
	assert.Equal(t, []string{"BOB*0002"}, contacts)

	require.NoError(t, keyDB.DelContact(bob.Identity()))
	pub, err = keyDB.GetContact(bob.Identity())
	require.NoError(t, err)
	assert.Nil(t, pub)
}

func TestKeyDBIsStore(t *testing.T) {
	var _ session.Store = &KeyDB{}
}

func TestSessionStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (session.Store, func()) {
		tmpdir, keyDB, err := createDB()
		require.NoError(t, err)
		return keyDB, func() {
			keyDB.Close()
			os.RemoveAll(tmpdir)
		}
	})
}

func TestSessionsSurviveReopen(t *testing.T) {
	tmpdir, err := ioutil.TempDir("", "keydb_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpdir)
	dbname := filepath.Join(tmpdir, "keydb")
	passphrase := []byte(cipher.RandPass(cipher.RandReader))
	require.NoError(t, Create(dbname, passphrase, iter))
	keyDB, err := Open(dbname, passphrase, storetest.LocalRange)
	require.NoError(t, err)

	alice, err := identity.Generate("ALICE001", cipher.RandReader)
	require.NoError(t, err)
	bob, err := identity.Generate("BOB*0002", cipher.RandReader)
	require.NoError(t, err)
	s, err := session.NewInitiator(alice, bob.Identity(), bob.PublicKey(), storetest.LocalRange)
	require.NoError(t, err)
	require.NoError(t, keyDB.StoreSession(s))
	require.NoError(t, keyDB.Close())

	keyDB, err = Open(dbname, passphrase, storetest.LocalRange)
	require.NoError(t, err)
	defer keyDB.Close()
	loaded, err := keyDB.ExactSession(alice.Identity(), bob.Identity(), s.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, session.L20, loaded.State)
	assert.True(t, s.MyRatchet2DH.Equal(loaded.MyRatchet2DH))
	peers, err := keyDB.GetPeers(alice.Identity())
	require.NoError(t, err)
	assert.Equal(t, []string{bob.Identity()}, peers)
}
