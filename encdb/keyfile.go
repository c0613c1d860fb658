// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package encdb

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/mutecomm/mutefs/cipher"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/util"
	"golang.org/x/crypto/pbkdf2"
)

/*
Format of keyfile:

  8 bytes   number of PBKDF2 iterations (big-endian)
  32 bytes  PBKDF2 salt
  16 bytes  IV for AES-256-CBC
  32 bytes  AES-256-CBC encrypted database key
*/

const (
	iterLen   = 8
	saltLen   = 32
	encKeyLen = 16 + 32
)

func checkIter(iter uint64) error {
	if iter == 0 || iter > math.MaxInt32 {
		return log.Errorf("encdb: invalid iter value %d", iter)
	}
	return nil
}

// writeKeyfile writes a key file with the given filename that contains key
// in encrypted form.
func writeKeyfile(filename string, passphrase []byte, iter int, key []byte) error {
	if err := util.MustNotExist(filename); err != nil {
		return err
	}
	if iter < 0 {
		return log.Errorf("encdb: invalid iter value %d", iter)
	}
	if err := checkIter(uint64(iter)); err != nil {
		return err
	}
	if len(key) != 32 {
		return log.Error("encdb: writeKeyfile: len(key) != 32")
	}
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(cipher.RandReader, salt); err != nil {
		return log.Error(err)
	}
	dk := pbkdf2.Key(passphrase, salt, iter, 32, sha256.New)
	buf := make([]byte, iterLen, iterLen+saltLen+encKeyLen)
	binary.BigEndian.PutUint64(buf, uint64(iter))
	buf = append(buf, salt...)
	buf = append(buf, cipher.AES256CBCEncrypt(dk, key, cipher.RandReader)...)
	fp, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return log.Error(err)
	}
	if _, err := fp.Write(buf); err != nil {
		fp.Close()
		return log.Error(err)
	}
	if err := fp.Close(); err != nil {
		return log.Error(err)
	}
	return nil
}

// generateKeyfile writes a key file for a freshly generated key and returns
// the key in unencrypted form.
func generateKeyfile(filename string, passphrase []byte, iter int) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(cipher.RandReader, key); err != nil {
		return nil, log.Error(err)
	}
	if err := writeKeyfile(filename, passphrase, iter, key); err != nil {
		return nil, err
	}
	return key, nil
}

// readKeyfile reads the key stored in the key file filename.
func readKeyfile(filename string, passphrase []byte) ([]byte, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, log.Error(err)
	}
	defer fp.Close()
	buf := make([]byte, iterLen+saltLen+encKeyLen)
	if _, err := io.ReadFull(fp, buf); err != nil {
		return nil, log.Error(err)
	}
	iter := binary.BigEndian.Uint64(buf[:iterLen])
	if err := checkIter(iter); err != nil {
		return nil, err
	}
	salt := buf[iterLen : iterLen+saltLen]
	encKey := buf[iterLen+saltLen:]
	dk := pbkdf2.Key(passphrase, salt, int(iter), 32, sha256.New)
	return cipher.AES256CBCDecrypt(dk, encKey), nil
}

func replaceKeyfile(filename string, oldPassphrase, newPassphrase []byte, newIter int) error {
	key, err := readKeyfile(filename, oldPassphrase)
	if err != nil {
		return err
	}
	tmpfile := filename + ".new"
	os.Remove(tmpfile) // ignore error
	if err := writeKeyfile(tmpfile, newPassphrase, newIter, key); err != nil {
		return err
	}
	if err := os.Rename(tmpfile, filename); err != nil {
		return log.Error(err)
	}
	return nil
}
