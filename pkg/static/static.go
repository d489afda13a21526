// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package static serves files from a directory with the standard library file
// server, forcing the Content-Type of selected extensions.
package static

import (
	"net/http"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Responder answers GET and HEAD requests from a directory tree.
type Responder struct {
	// root is the served directory.
	root http.FileSystem
	// files does path resolution, index files, listings and ranges.
	files http.Handler
	// mimeTypes maps lowercase extensions (".wasm") to forced content types.
	mimeTypes map[string]string
	logger    zerolog.Logger
}

// New returns a Responder for dir. mimeTypes keys are file extensions
// including the leading dot.
func New(dir string, mimeTypes map[string]string) *Responder {
	root := http.Dir(dir)
	overrides := make(map[string]string, len(mimeTypes))
	for ext, ctype := range mimeTypes {
		overrides[strings.ToLower(ext)] = ctype
	}
	return &Responder{
		root:      root,
		files:     http.FileServer(root),
		mimeTypes: overrides,
		logger:    log.With().Str("component", "static").Logger(),
	}
}

// ServeHTTP serves the file named by the request path.
func (s *Responder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("unsupported method")
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}

	if ctype, ok := s.overrideFor(r.URL.Path); ok {
		// The file server keeps a Content-Type that is already set.
		w.Header().Set("Content-Type", ctype)
	}

	s.files.ServeHTTP(w, r)
}

// overrideFor returns the forced content type for a regular file at name.
func (s *Responder) overrideFor(name string) (string, bool) {
	ctype, ok := s.mimeTypes[strings.ToLower(path.Ext(name))]
	if !ok {
		return "", false
	}

	f, err := s.root.Open(path.Clean("/" + name))
	if err != nil {
		return "", false
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.logger.Error().Err(closeErr).Str("path", name).Msg("close file failed")
		}
	}()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return "", false
	}
	return ctype, true
}
