// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msg

import (
	"errors"
)

// ErrMissingContent is raised when an envelope has no (known) content.
var ErrMissingContent = errors.New("msg: envelope has no content")

// ErrInvalidSessionID is raised when a session ID has the wrong length.
var ErrInvalidSessionID = errors.New("msg: session ID has the wrong length")

// ErrInvalidKeyLength is raised when an ephemeral public key has the wrong
// length.
var ErrInvalidKeyLength = errors.New("msg: ephemeral public key has the wrong length")

// ErrUnknownDHType is raised when a message has an unknown DH type.
var ErrUnknownDHType = errors.New("msg: unknown DH type")

// ErrEmptyPlaintext is raised when a decrypted message has no type byte.
var ErrEmptyPlaintext = errors.New("msg: plaintext is empty")
