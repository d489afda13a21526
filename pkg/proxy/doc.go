// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package proxy relays bundler requests to a second local HTTP server so that
// worker scripts load from the same origin as the page. Upstream headers are
// renamed to header-case and filtered through the isolation policy before
// the body is streamed back unchanged. By default the client always sees a
// 200 and an unreachable upstream aborts the connection; both behaviors can
// be relaxed through configuration.
package proxy
