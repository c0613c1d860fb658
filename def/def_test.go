// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package def

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mutecomm/mutefs/fsver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset() {
	FSVersionRange = fsver.Range{Min: fsver.V1_0, Max: fsver.V1_2}
	KeepAlive = KeepAliveInterval
}

func TestApply(t *testing.T) {
	defer reset()
	require.NoError(t, Apply(&Config{MaxVersion: "1.1", KeepAlive: "12h"}))
	assert.Equal(t, fsver.Range{Min: fsver.V1_0, Max: fsver.V1_1}, FSVersionRange)
	assert.Equal(t, 12*time.Hour, KeepAlive)

	assert.Error(t, Apply(&Config{MaxVersion: "2.0"}))
	assert.Error(t, Apply(&Config{MinVersion: "1.2", MaxVersion: "1.0"}))
	assert.Error(t, Apply(&Config{KeepAlive: "-1h"}))
	assert.Error(t, Apply(&Config{KeepAlive: "forever"}))
	// failed calls leave the configuration untouched
	assert.Equal(t, fsver.Range{Min: fsver.V1_0, Max: fsver.V1_1}, FSVersionRange)
}

func TestInitFromFile(t *testing.T) {
	defer reset()
	homedir, err := ioutil.TempDir("", "def_test")
	require.NoError(t, err)
	defer os.RemoveAll(homedir)

	// missing file is fine
	require.NoError(t, InitFromFile(homedir))

	configdir := filepath.Join(homedir, "config")
	require.NoError(t, os.MkdirAll(configdir, 0700))
	err = ioutil.WriteFile(filepath.Join(configdir, ConfigFile),
		[]byte(`{"minVersion": "1.1", "keepAlive": "1h"}`), 0600)
	require.NoError(t, err)
	require.NoError(t, InitFromFile(homedir))
	assert.Equal(t, fsver.V1_1, FSVersionRange.Min)
	assert.Equal(t, time.Hour, KeepAlive)

	err = ioutil.WriteFile(filepath.Join(configdir, ConfigFile), []byte(`{`), 0600)
	require.NoError(t, err)
	assert.Error(t, InitFromFile(homedir))
}
