// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the on-disk layout. Pointer fields distinguish "unset"
// from zero values so the file only overrides what it names.
type fileConfig struct {
	Host           *string           `toml:"host" yaml:"host"`
	Port           *int              `toml:"port" yaml:"port"`
	Root           *string           `toml:"root" yaml:"root"`
	Upstream       *string           `toml:"upstream" yaml:"upstream"`
	ProxyPrefix    *string           `toml:"proxy_prefix" yaml:"proxy_prefix"`
	ProxyTimeout   *string           `toml:"proxy_timeout" yaml:"proxy_timeout"`
	ProxyOnError   *string           `toml:"proxy_on_error" yaml:"proxy_on_error"`
	ProxyStatus    *string           `toml:"proxy_status" yaml:"proxy_status"`
	Headers        map[string]string `toml:"headers" yaml:"headers"`
	ExcludeHeaders []string          `toml:"exclude_headers" yaml:"exclude_headers"`
	MIMETypes      map[string]string `toml:"mime_types" yaml:"mime_types"`
	TLS            fileTLS           `toml:"tls" yaml:"tls"`
	Log            fileLog           `toml:"log" yaml:"log"`
}

type fileTLS struct {
	Cert string `toml:"cert" yaml:"cert"`
	Key  string `toml:"key" yaml:"key"`
}

type fileLog struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// applyFile overlays the config file at path onto cfg. The format follows the
// file extension.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return fc.apply(cfg, filepath.Dir(path))
}

func (fc fileConfig) apply(cfg *Config, baseDir string) error {
	if fc.Host != nil {
		cfg.Host = *fc.Host
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.Root != nil {
		cfg.Root = resolvePath(baseDir, *fc.Root)
	}
	if fc.Upstream != nil {
		cfg.upstreamRaw = *fc.Upstream
	}
	if fc.ProxyPrefix != nil {
		cfg.ProxyPrefix = *fc.ProxyPrefix
	}
	if fc.ProxyTimeout != nil {
		timeout, err := time.ParseDuration(*fc.ProxyTimeout)
		if err != nil {
			return fmt.Errorf("invalid proxy_timeout %q: %w", *fc.ProxyTimeout, err)
		}
		cfg.ProxyTimeout = timeout
	}
	if fc.ProxyOnError != nil {
		cfg.ProxyOnError = strings.ToLower(*fc.ProxyOnError)
	}
	if fc.ProxyStatus != nil {
		cfg.ProxyStatus = strings.ToLower(*fc.ProxyStatus)
	}

	// Header sets replace the defaults; MIME types extend them.
	if fc.Headers != nil {
		cfg.Headers = fc.Headers
	}
	if fc.ExcludeHeaders != nil {
		cfg.ExcludedHeaders = fc.ExcludeHeaders
	}
	for ext, ctype := range fc.MIMETypes {
		cfg.MIMETypes[ext] = ctype
	}

	if fc.TLS.Cert != "" {
		cfg.TLSCertFile = resolvePath(baseDir, fc.TLS.Cert)
	}
	if fc.TLS.Key != "" {
		cfg.TLSKeyFile = resolvePath(baseDir, fc.TLS.Key)
	}
	if fc.Log.Level != "" {
		cfg.LogLevel = strings.ToLower(fc.Log.Level)
	}
	if fc.Log.Format != "" {
		cfg.LogFormat = strings.ToLower(fc.Log.Format)
	}

	return nil
}

// resolvePath interprets relative paths against the config file directory.
func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
