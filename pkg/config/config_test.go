// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEnv = []string{
	envPort, envHost, envRoot, envUpstreamURL, envProxyPrefix, envProxyTimeout,
	envProxyOnError, envProxyStatus, envTLSCert, envTLSKey, envLogLevel,
	envLogFormat, envConfigFile, envGracefulShutdown,
}

// isolateEnv unsets every variable Load reads and restores them afterwards.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnv {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	prev := dotEnvFile
	dotEnvFile = filepath.Join(t.TempDir(), "missing.env")
	t.Cleanup(func() { dotEnvFile = prev })
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "0.0.0.0:3000", cfg.Addr())
	assert.Equal(t, wd, cfg.Root)
	require.NotNil(t, cfg.Upstream)
	assert.Equal(t, "http://localhost:3001", cfg.Upstream.String())
	assert.Equal(t, "/dist", cfg.ProxyPrefix)
	assert.True(t, cfg.ProxyEnabled())
	assert.Equal(t, OnErrorAbort, cfg.ProxyOnError)
	assert.Equal(t, StatusFixed, cfg.ProxyStatus)
	assert.Zero(t, cfg.ProxyTimeout)
	assert.Equal(t, DefaultHeaders(), cfg.Headers)
	assert.ElementsMatch(t, DefaultExcludedHeaders(), cfg.ExcludedHeaders)
	assert.Equal(t, map[string]string{".wasm": "application/wasm"}, cfg.MIMETypes)
	assert.False(t, cfg.TLSEnabled())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, LogFormatAuto, cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.GracefulShutdownTimeout)
}

func TestLoadPortFromEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv(envPort, "8123")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 8123, cfg.Port)
	assert.Equal(t, "0.0.0.0:8123", cfg.Addr())
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	for _, val := range []string{"abc", "-1", "70000", "3000.5"} {
		t.Run(val, func(t *testing.T) {
			isolateEnv(t)
			t.Setenv(envPort, val)

			_, err := Load(nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadEmptyHostBindsAllInterfaces(t *testing.T) {
	isolateEnv(t)
	t.Setenv(envHost, "")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Host)
	assert.Equal(t, ":3000", cfg.Addr())
}

func TestLoadEnvOverrides(t *testing.T) {
	isolateEnv(t)
	root := t.TempDir()
	t.Setenv(envRoot, root)
	t.Setenv(envUpstreamURL, "http://127.0.0.1:9000")
	t.Setenv(envProxyPrefix, "/build")
	t.Setenv(envProxyTimeout, "5s")
	t.Setenv(envProxyOnError, "BAD_GATEWAY")
	t.Setenv(envProxyStatus, "upstream")
	t.Setenv(envLogLevel, "DEBUG")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, "127.0.0.1:9000", cfg.Upstream.Host)
	assert.Equal(t, "/build", cfg.ProxyPrefix)
	assert.Equal(t, 5*time.Second, cfg.ProxyTimeout)
	assert.Equal(t, OnErrorBadGateway, cfg.ProxyOnError)
	assert.Equal(t, StatusUpstream, cfg.ProxyStatus)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEmptyPrefixDisablesProxy(t *testing.T) {
	isolateEnv(t)
	t.Setenv(envProxyPrefix, "")
	t.Setenv(envUpstreamURL, "not a url")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.False(t, cfg.ProxyEnabled())
	assert.Nil(t, cfg.Upstream)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string][2]string{
		"unknown failure mode": {envProxyOnError, "retry"},
		"unknown status mode":  {envProxyStatus, "mirror"},
		"unknown log level":    {envLogLevel, "verbose"},
		"unknown log format":   {envLogFormat, "xml"},
		"missing root":         {envRoot, "/does/not/exist/anywhere"},
		"relative upstream":    {envUpstreamURL, "localhost"},
		"prefix without slash": {envProxyPrefix, "dist"},
		"cert without key":     {envTLSCert, "cert.pem"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			isolateEnv(t)
			t.Setenv(kv[0], kv[1])

			_, err := Load(nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	isolateEnv(t)
	root := t.TempDir()
	t.Setenv(envPort, "4000")
	t.Setenv(envUpstreamURL, "http://localhost:5000")

	cfg, err := Load([]string{"coi-devserver", "--port", "4500", "--root", root,
		"--upstream", "http://localhost:6000", "--host", "127.0.0.1", "--log-level", "warn"})
	require.NoError(t, err)
	assert.Equal(t, 4500, cfg.Port)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, "localhost:6000", cfg.Upstream.Host)
	assert.Equal(t, "127.0.0.1:4500", cfg.Addr())
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadNoProxyFlag(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load([]string{"coi-devserver", "--no-proxy"})
	require.NoError(t, err)
	assert.False(t, cfg.ProxyEnabled())
}

func TestLoadRejectsBadFlags(t *testing.T) {
	isolateEnv(t)

	_, err := Load([]string{"coi-devserver", "--port", "http"})
	assert.Error(t, err)

	_, err = Load([]string{"coi-devserver", "--bogus"})
	assert.Error(t, err)
}

func TestLoadTOMLFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "public"), 0o755))

	path := filepath.Join(dir, "devserver.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = 4100
root = "public"
upstream = "http://localhost:4101"
proxy_timeout = "2s"
exclude_headers = ["Date", "Server"]

[mime_types]
".MJS" = "text/javascript"

[log]
level = "debug"
format = "json"
`), 0o600))
	t.Setenv(envConfigFile, path)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Port)
	assert.Equal(t, filepath.Join(dir, "public"), cfg.Root)
	assert.Equal(t, "localhost:4101", cfg.Upstream.Host)
	assert.Equal(t, 2*time.Second, cfg.ProxyTimeout)
	assert.Equal(t, []string{"Date", "Server"}, cfg.ExcludedHeaders)
	assert.Equal(t, "application/wasm", cfg.MIMETypes[".wasm"])
	assert.Equal(t, "text/javascript", cfg.MIMETypes[".mjs"])
	assert.Equal(t, DefaultHeaders(), cfg.Headers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
}

func TestLoadYAMLFileIsOverriddenByEnv(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "devserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 4200
proxy_status: upstream
headers:
  Cross-Origin-Opener-Policy: same-origin
  Cross-Origin-Embedder-Policy: credentialless
`), 0o600))
	t.Setenv(envPort, "4300")

	cfg, err := Load([]string{"coi-devserver", "--config", path})
	require.NoError(t, err)
	assert.Equal(t, 4300, cfg.Port)
	assert.Equal(t, StatusUpstream, cfg.ProxyStatus)
	assert.Equal(t, map[string]string{
		"Cross-Origin-Opener-Policy":   "same-origin",
		"Cross-Origin-Embedder-Policy": "credentialless",
	}, cfg.Headers)
}

func TestLoadRejectsUnknownFileExtension(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "devserver.ini")
	require.NoError(t, os.WriteFile(path, []byte("port=1"), 0o600))
	t.Setenv(envConfigFile, path)

	_, err := Load(nil)
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=3555\n"), 0o600))
	dotEnvFile = path
	t.Cleanup(func() { _ = os.Unsetenv(envPort) })

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 3555, cfg.Port)
}
