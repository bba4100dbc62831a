package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	cmd := &cobra.Command{Use: "installd"}
	RegisterFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return Load(cmd)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := parse(t)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_dir: /srv/app
data_dir: /srv/data
verification_enabled: true
verification_timeout: 30s
log_level: debug
`), 0o644))

	t.Setenv("INSTALLD_DATA_DIR", "/env/data")
	t.Setenv("INSTALLD_BIND_RETRY_DELAY", "2s")
	t.Setenv("INSTALLD_LOG_LEVEL", "warn")

	cfg, err := parse(t, "--config", path, "--log-level", "error", "--low-storage-threshold", "0")
	require.NoError(t, err)

	require.Equal(t, "/srv/app", cfg.AppDir)
	require.Equal(t, "/env/data", cfg.DataDir)
	require.True(t, cfg.VerificationEnabled)
	require.Equal(t, 30*time.Second, cfg.VerificationTimeout)
	require.Equal(t, 2*time.Second, cfg.BindRetryDelay)
	require.Equal(t, "error", cfg.LogLevel)
	require.Zero(t, cfg.LowStorageThreshold)
	require.Equal(t, Default().DaemonSocket, cfg.DaemonSocket)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := parse(t, "--app-dir", "")
	require.ErrorContains(t, err, "app_dir")

	_, err = parse(t, "--verification-timeout", "0s")
	require.ErrorContains(t, err, "verification_timeout")

	_, err = parse(t, "--log-level", "loud")
	require.Error(t, err)

	_, err = parse(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "installd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Verifiers(t *testing.T) {
	path := writeConfig(t, `
verification_enabled: true
verification_addr: 127.0.0.1:7402
verifiers:
  - package: com.example.verifier
    uid: 10100
    cert_digest: abc
    required: true
    endpoint: http://127.0.0.1:7500/verify
  - package: com.example.scanner
    uid: 10101
    endpoint: http://127.0.0.1:7501/verify
`)
	cfg, err := parse(t, "--config", path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7402", cfg.VerificationAddr)
	require.Equal(t, []Verifier{
		{Package: "com.example.verifier", UID: 10100, CertDigest: "abc", Required: true, Endpoint: "http://127.0.0.1:7500/verify"},
		{Package: "com.example.scanner", UID: 10101, Endpoint: "http://127.0.0.1:7501/verify"},
	}, cfg.Verifiers)
}

func TestLoad_InvalidVerifiers(t *testing.T) {
	for name, tc := range map[string]struct {
		body string
		err  string
	}{
		"no vote address": {
			body: "verifiers:\n  - {package: a, uid: 1, endpoint: http://a}\n",
			err:  "verification_addr",
		},
		"missing package": {
			body: "verification_addr: :7402\nverifiers:\n  - {uid: 1, endpoint: http://a}\n",
			err:  "package must be set",
		},
		"duplicate": {
			body: "verification_addr: :7402\nverifiers:\n  - {package: a, uid: 1, endpoint: http://a}\n  - {package: a, uid: 2, endpoint: http://b}\n",
			err:  "listed twice",
		},
		"bad uid": {
			body: "verification_addr: :7402\nverifiers:\n  - {package: a, uid: 0, endpoint: http://a}\n",
			err:  "uid must be positive",
		},
		"missing endpoint": {
			body: "verification_addr: :7402\nverifiers:\n  - {package: a, uid: 1}\n",
			err:  "endpoint must be set",
		},
		"two required": {
			body: "verification_addr: :7402\nverifiers:\n  - {package: a, uid: 1, required: true, endpoint: http://a}\n  - {package: b, uid: 2, required: true, endpoint: http://b}\n",
			err:  "at most one required",
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parse(t, "--config", writeConfig(t, tc.body))
			require.ErrorContains(t, err, tc.err)
		})
	}
}
