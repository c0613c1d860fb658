// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package def defines all default values used in mutefs.
package def

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/log"
)

const (
	// MaxCounterIncrement is the maximum number of ratchet turns a single
	// incoming message may cause.
	MaxCounterIncrement = 25000

	// KeepAliveInterval is the default duration after which an idle 4DH
	// session is refreshed with an empty message.
	KeepAliveInterval = 24 * time.Hour

	// KDFIterations defines the default number of KDF iterations used to
	// derive the key for the key database.
	KDFIterations = 64000

	// ConfigFile is the name of the configuration file in homedir/config.
	ConfigFile = "mutefs.json"

	// KeyDBName is the prefix of the key database files in homedir/db.
	KeyDBName = "keys"
)

// FSVersionRange is the range of forward secrecy versions supported locally.
var FSVersionRange = fsver.Range{Min: fsver.V1_0, Max: fsver.V1_2}

// KeepAlive is the configured keep-alive interval.
var KeepAlive = KeepAliveInterval

// Config is the JSON configuration file format.
type Config struct {
	// MinVersion and MaxVersion are versions like "1.1".
	MinVersion string `json:"minVersion,omitempty"`
	MaxVersion string `json:"maxVersion,omitempty"`
	// KeepAlive is a duration string like "12h".
	KeepAlive string `json:"keepAlive,omitempty"`
}

// Apply sets the package defaults from config.
func Apply(config *Config) error {
	rng := FSVersionRange
	if config.MinVersion != "" {
		v, err := parseVersion(config.MinVersion)
		if err != nil {
			return err
		}
		rng.Min = v
	}
	if config.MaxVersion != "" {
		v, err := parseVersion(config.MaxVersion)
		if err != nil {
			return err
		}
		rng.Max = v
	}
	if !rng.Valid() {
		return log.Errorf("def: invalid version range %s", rng)
	}
	keepAlive := KeepAlive
	if config.KeepAlive != "" {
		d, err := time.ParseDuration(config.KeepAlive)
		if err != nil {
			return log.Error(err)
		}
		if d <= 0 {
			return log.Errorf("def: keep-alive must be positive: %s", d)
		}
		keepAlive = d
	}
	FSVersionRange = rng
	KeepAlive = keepAlive
	log.Infof("def: supported versions %s, keep-alive %s", FSVersionRange, KeepAlive)
	return nil
}

// InitFromFile initializes mutefs with the config file from homedir/config/.
// A missing config file is not an error.
func InitFromFile(homedir string) error {
	filename := filepath.Join(homedir, "config", ConfigFile)
	jsn, err := ioutil.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return log.Error(err)
	}
	var config Config
	if err := json.Unmarshal(jsn, &config); err != nil {
		return log.Error(err)
	}
	return Apply(&config)
}

func parseVersion(s string) (fsver.Version, error) {
	for _, v := range []fsver.Version{fsver.V1_0, fsver.V1_1, fsver.V1_2} {
		if v.String() == s {
			return v, nil
		}
	}
	return fsver.Unspecified, log.Errorf("def: unknown version %q", s)
}
