// Package logging provides the shared logger used by all internal packages.
package logging

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// L is the shared logger. Packages should use the helper functions below, or
// L directly when they need structured fields.
var L = zerolog.New(zerolog.ConsoleWriter{
	Out:         os.Stderr,
	NoColor:     !isTerminal(),
	FormatLevel: consoleFormatLevel,
	TimeFormat:  time.RFC3339,
}).With().Timestamp().Logger()

func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// UseServerLogger switches the logger to write JSON to stdout, appropriate
// for a long-running server process. On a terminal the console writer is kept.
func UseServerLogger() {
	if isTerminal() {
		return
	}
	L = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// SetLevel parses levelName and applies it to the shared logger.
func SetLevel(levelName string) error {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		// zerolog doesn't parse numeric levels from strings
		num, numErr := strconv.Atoi(levelName)
		if numErr != nil {
			return err
		}
		level = zerolog.Level(num)
	}
	L = L.Level(level)
	return nil
}

// Writer returns an io.Writer that writes to the shared logger at the error
// level, for use with libraries that accept a log writer.
func Writer() io.Writer {
	return L
}

func Debugf(format string, v ...interface{}) {
	L.Debug().CallerSkipFrame(1).Msgf(format, v...)
}

func Infof(format string, v ...interface{}) {
	L.Info().CallerSkipFrame(1).Msgf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	L.Warn().CallerSkipFrame(1).Msgf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	L.Error().CallerSkipFrame(1).Msgf(format, v...)
}
