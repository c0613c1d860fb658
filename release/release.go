// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package release implements release specific constants and methods.
package release

import (
	"fmt"

	"github.com/mutecomm/mutefs/def"
	"github.com/urfave/cli"
)

// PrintVersion prints version information, including the range of forward
// secrecy versions this build supports.
func PrintVersion(c *cli.Context) {
	fmt.Fprintf(c.App.Writer, "%v version %v\n", c.App.Name, c.App.Version)
	fmt.Fprintf(c.App.Writer, "commit %s\n", Commit)
	fmt.Fprintf(c.App.Writer, "Date:   %s\n", Date)
	fmt.Fprintf(c.App.Writer, "fs versions: %s\n", def.FSVersionRange)
}
