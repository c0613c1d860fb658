// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package log implements the logging framework of mutefs on top of seelog.

See https://github.com/cihub/seelog/wiki/Log-levels for an introduction to the
different logging levels.

Every error condition is logged exactly once, as early as possible. Errors
returned by external packages are wrapped in a log.Error() call, errors we
create ourselves are created with log.Error[f](). Conditions that lead to a
panic are created with log.Critical[f]().

Protocol anomalies of the forward secrecy engine (a peer rejected a message,
a session could not be found, messages were skipped) are not errors of the
local node. They are logged with log.Warn[f]() and reported to the registered
status listeners instead.

The logger is disabled until Init, UseLogger, or SetLogWriter is called, so
library users of mutefs do not get any output by default.
*/
package log
