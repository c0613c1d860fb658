// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cipher

import (
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/mutecomm/mutefs/log"
)

// RandReader defines the CSPRNG used in mutefs.
var RandReader = rand.Reader

// RandFail is a Reader that doesn't deliver any data.
var RandFail = eofReader{}

// RandZero is a Reader that delivers an endless stream of zero bytes.
var RandZero = zeroReader{}

type eofReader struct{}

func (e eofReader) Read(p []byte) (n int, err error) {
	return 0, io.EOF
}

type zeroReader struct{}

func (z zeroReader) Read(p []byte) (n int, err error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// RandPass returns a random 256-bit password in base64 encoding.
func RandPass(rand io.Reader) string {
	var pass = make([]byte, 32)
	if _, err := io.ReadFull(rand, pass); err != nil {
		panic(log.Critical(err))
	}
	return base64.StdEncoding.EncodeToString(pass)
}
