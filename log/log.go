// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cihub/seelog"
)

// PrefixLen is the mandatory length of the command prefix given to Init.
const PrefixLen = 5

var logger seelog.LoggerInterface = seelog.Disabled

const configTemplate = `
<seelog type="adaptive" mininterval="2000000" maxinterval="100000000"
	critmsgcount="500" minlevel="%s">
	<outputs formatid="all">
		%s
		%s
	</outputs>
	<formats>
		<format id="all" format="%%UTCDate %%UTCTime [%s] [%%LEV] %%Msg%%n" />
	</formats>
</seelog>`

// Config returns the seelog XML configuration used by Init.
func Config(logLevel, cmdPrefix, logDir string, logToConsole bool) (string, error) {
	if _, found := seelog.LogLevelFromString(logLevel); !found {
		return "", fmt.Errorf("log: level '%s' is invalid", logLevel)
	}
	if len(cmdPrefix) != PrefixLen {
		return "", fmt.Errorf("log: len(cmdPrefix) must be %d: \"%s\"",
			PrefixLen, cmdPrefix)
	}
	var console, file string
	if logToConsole {
		console = "<console />"
	}
	if logDir != "" {
		logfile := filepath.Join(logDir, filepath.Base(os.Args[0])+".log")
		file = fmt.Sprintf("<rollingfile type=\"size\" filename=\"%s\" maxsize=\"10485760\" maxrolls=\"3\" />",
			logfile)
	}
	return fmt.Sprintf(configTemplate, logLevel, console, file, cmdPrefix), nil
}

// Init initializes the logging framework to the given logging level.
// If logDir is not empty logging is done to a rolling logfile in that
// directory. If logToConsole is true the console logging is activated.
// cmdPrefix must be a 5 character long command prefix.
func Init(logLevel, cmdPrefix, logDir string, logToConsole bool) error {
	config, err := Config(logLevel, cmdPrefix, logDir, logToConsole)
	if err != nil {
		return err
	}
	newLogger, err := seelog.LoggerFromConfigAsString(config)
	if err != nil {
		return err
	}
	newLogger.SetAdditionalStackDepth(1)
	UseLogger(newLogger)
	Infof("%s started (built with %s %s for %s/%s)", os.Args[0],
		runtime.Compiler, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}

// Flush flushes all the messages in the logger.
func Flush() {
	Infof("%s stopping", os.Args[0])
	logger.Flush()
}

// Critical logs v with log level Critical and returns it as an error.
// If v is a single error, that error is returned unchanged.
func Critical(v ...interface{}) error {
	if err, ok := single(v); ok {
		logger.Critical(err)
		return err
	}
	return logger.Critical(v...)
}

// Criticalf is the formatting version of Critical.
func Criticalf(format string, params ...interface{}) error {
	return logger.Criticalf(format, params...)
}

// Error logs v with log level Error and returns it as an error.
// If v is a single error, that error is returned unchanged.
func Error(v ...interface{}) error {
	if err, ok := single(v); ok {
		logger.Error(err)
		return err
	}
	return logger.Error(v...)
}

// Errorf is the formatting version of Error.
func Errorf(format string, params ...interface{}) error {
	return logger.Errorf(format, params...)
}

// Warn logs v with log level Warn and returns it as an error.
// If v is a single error, that error is returned unchanged.
func Warn(v ...interface{}) error {
	if err, ok := single(v); ok {
		logger.Warn(err)
		return err
	}
	return logger.Warn(v...)
}

// Warnf is the formatting version of Warn.
func Warnf(format string, params ...interface{}) error {
	return logger.Warnf(format, params...)
}

// Info logs v with log level Info.
func Info(v ...interface{}) { logger.Info(v...) }

// Infof is the formatting version of Info.
func Infof(format string, params ...interface{}) { logger.Infof(format, params...) }

// Debug logs v with log level Debug.
func Debug(v ...interface{}) { logger.Debug(v...) }

// Debugf is the formatting version of Debug.
func Debugf(format string, params ...interface{}) { logger.Debugf(format, params...) }

// Trace logs v with log level Trace.
func Trace(v ...interface{}) { logger.Trace(v...) }

// Tracef is the formatting version of Trace.
func Tracef(format string, params ...interface{}) { logger.Tracef(format, params...) }

// UseLogger replaces the package logger with newLogger.
func UseLogger(newLogger seelog.LoggerInterface) {
	logger = newLogger
}

// SetLogWriter logs everything (trace level and above) to writer.
func SetLogWriter(writer io.Writer) error {
	if writer == nil {
		return errors.New("log: nil writer")
	}
	newLogger, err := seelog.LoggerFromWriterWithMinLevel(writer, seelog.TraceLvl)
	if err != nil {
		return err
	}
	UseLogger(newLogger)
	return nil
}

func single(v []interface{}) (error, bool) {
	if len(v) != 1 {
		return nil, false
	}
	err, ok := v[0].(error)
	return err, ok
}
