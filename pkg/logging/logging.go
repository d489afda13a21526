// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/go-core-stack/coi-devserver/pkg/config"
)

// Setup configures the global zerolog logger. With format "auto" a console
// writer is used when out is a terminal, JSON otherwise.
func Setup(out *os.File, level, format string) error {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	w, err := writerFor(out, format)
	if err != nil {
		return err
	}

	log.Logger = zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	return nil
}

func writerFor(out *os.File, format string) (io.Writer, error) {
	switch format {
	case config.LogFormatJSON:
		return out, nil
	case config.LogFormatConsole:
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}, nil
	case config.LogFormatAuto, "":
		if term.IsTerminal(int(out.Fd())) {
			return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}, nil
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
