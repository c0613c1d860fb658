// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/cihub/seelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	_, err := Config("verbose", "fsctl", "", true)
	assert.Error(t, err)
	_, err = Config("info", "fs", "", true)
	assert.Error(t, err)
	config, err := Config("debug", "fsctl", "", true)
	require.NoError(t, err)
	assert.Contains(t, config, `minlevel="debug"`)
	assert.Contains(t, config, "<console />")
	assert.Contains(t, config, "[fsctl]")
	assert.NotContains(t, config, "rollingfile")
	config, err = Config("info", "fsctl", "/tmp/logs", false)
	require.NoError(t, err)
	assert.NotContains(t, config, "<console />")
	assert.Contains(t, config, "rollingfile")
}

func TestErrorReturnsError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetLogWriter(&buf))
	defer UseLogger(seelog.Disabled)

	orig := errors.New("fsengine: something failed")
	err := Error(orig)
	assert.Equal(t, orig, err)
	err = Errorf("keydb: %d sessions", 3)
	assert.EqualError(t, err, "keydb: 3 sessions")
	err = Warn("session: stale")
	assert.EqualError(t, err, "session: stale")
	logger.Flush()
	assert.True(t, strings.Contains(buf.String(), "something failed"))
}

func TestSetLogWriterNil(t *testing.T) {
	assert.Error(t, SetLogWriter(nil))
}
