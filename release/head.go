// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package release

// Set with -ldflags "-X github.com/mutecomm/mutefs/release.Commit=..." during
// release builds.
var (
	// Commit is the git commit the binary was built from.
	Commit = "unknown"
	// Date is the date of Commit.
	Date = "unknown"
)
