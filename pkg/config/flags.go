// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"fmt"
	"strings"

	"github.com/akamensky/argparse"
)

// cliFlags holds command line overrides. Empty strings mean "not given".
type cliFlags struct {
	port       string
	host       string
	root       string
	upstream   string
	configFile string
	logLevel   string
	noProxy    bool
}

func parseArgs(args []string) (cliFlags, error) {
	if len(args) == 0 {
		return cliFlags{}, nil
	}

	parser := argparse.NewParser("coi-devserver",
		"Serves static files with cross-origin isolation headers and proxies bundler requests")

	port := parser.String("p", "port", &argparse.Options{Help: "listen port (overrides PORT)"})
	host := parser.String("b", "host", &argparse.Options{Help: "listen host"})
	root := parser.String("r", "root", &argparse.Options{Help: "directory to serve"})
	upstream := parser.String("u", "upstream", &argparse.Options{Help: "upstream origin for proxied requests"})
	configFile := parser.String("c", "config", &argparse.Options{Help: "path to a .toml or .yaml config file"})
	logLevel := parser.String("l", "log-level", &argparse.Options{Help: "log level"})
	noProxy := parser.Flag("n", "no-proxy", &argparse.Options{Help: "serve static files only"})

	if err := parser.Parse(args); err != nil {
		return cliFlags{}, fmt.Errorf("parse arguments: %w", err)
	}

	return cliFlags{
		port:       strings.TrimSpace(*port),
		host:       strings.TrimSpace(*host),
		root:       strings.TrimSpace(*root),
		upstream:   strings.TrimSpace(*upstream),
		configFile: strings.TrimSpace(*configFile),
		logLevel:   strings.TrimSpace(*logLevel),
		noProxy:    *noProxy,
	}, nil
}

func (f cliFlags) apply(cfg *Config) error {
	if f.port != "" {
		port, err := parsePort("--port", f.port)
		if err != nil {
			return err
		}
		cfg.Port = port
	}
	if f.host != "" {
		cfg.Host = f.host
	}
	if f.root != "" {
		cfg.Root = f.root
	}
	if f.upstream != "" {
		cfg.upstreamRaw = f.upstream
	}
	if f.logLevel != "" {
		cfg.LogLevel = strings.ToLower(f.logLevel)
	}
	if f.noProxy {
		cfg.ProxyPrefix = ""
	}
	return nil
}
