// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package release

import (
	"bytes"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli"
)

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	app := cli.NewApp()
	app.Name = "mutefs"
	app.Version = "0.1.0"
	app.Writer = &buf
	PrintVersion(cli.NewContext(app, flag.NewFlagSet("test", flag.ContinueOnError), nil))
	assert.Equal(t, "mutefs version 0.1.0\ncommit unknown\nDate:   unknown\n"+
		"fs versions: [1.0, 1.2]\n", buf.String())
}
