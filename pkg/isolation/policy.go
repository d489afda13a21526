// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package isolation holds the response header policy that makes served pages
// cross-origin isolated: the headers injected into every response and the
// upstream headers a proxied response must not carry.
package isolation

import (
	"net/http"
	"strings"

	"github.com/samber/lo"
)

// Policy is immutable once built and safe for concurrent use.
type Policy struct {
	// inject maps header-cased names to the value set on every response.
	inject map[string]string
	// excluded is keyed by header-cased name.
	excluded map[string]struct{}
}

// New builds a policy from the injected header table and the names of
// upstream headers to drop. Names are normalized with HeaderCase.
func New(inject map[string]string, excluded []string) *Policy {
	return &Policy{
		inject: lo.MapKeys(inject, func(_ string, name string) string {
			return HeaderCase(name)
		}),
		excluded: lo.SliceToMap(excluded, func(name string) (string, struct{}) {
			return HeaderCase(name), struct{}{}
		}),
	}
}

// Apply sets the injected headers on h, replacing any existing values.
func (p *Policy) Apply(h http.Header) {
	for name, value := range p.inject {
		h[name] = []string{value}
	}
}

// Excluded reports whether an upstream header must be dropped. The check is
// made on the header-cased form of name.
func (p *Policy) Excluded(name string) bool {
	_, ok := p.excluded[HeaderCase(name)]
	return ok
}

// Injected returns a copy of the injected header table.
func (p *Policy) Injected() map[string]string {
	return lo.Assign(p.inject)
}

// Middleware applies the injected headers before next writes anything, so
// they are present on every response regardless of status.
func (p *Policy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.Apply(w.Header())
		next.ServeHTTP(w, r)
	})
}

// HeaderCase capitalizes each hyphen-delimited segment of name and lowercases
// the rest, e.g. "content-TYPE" becomes "Content-Type".
func HeaderCase(name string) string {
	segments := strings.Split(name, "-")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		segments[i] = strings.ToUpper(seg[:1]) + strings.ToLower(seg[1:])
	}
	return strings.Join(segments, "-")
}
