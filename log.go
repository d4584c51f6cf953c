// Copyright (c) 2025 Mohamed Yasser
//
// Licensed under the MIT License.

package nabd

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds a zerolog.Logger writing structured JSON to w, suitable
// for OpenOptions.Logger. Callers who want human-readable output during
// development can wrap w in zerolog.ConsoleWriter themselves.
func NewLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// NewStderrLogger is a convenience wrapper around NewLogger(os.Stderr).
func NewStderrLogger() zerolog.Logger {
	return NewLogger(os.Stderr)
}
