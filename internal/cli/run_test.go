package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyConfigFileFillsUnsetFlagsOnly(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sandboxctl.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
profile: LEARNING
log_dir: /var/log/sandboxctl
log_level: debug
cgroup:
  cpu_quota_pct: 50
  pids_max: 32
  memory_max: 256MiB
`), 0o644))

	cmd := newRunCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--config", configPath, "--profile", "STRICT"}))

	opts := &runOptions{configPath: configPath, profile: "STRICT"}
	applyConfigFile(cmd, opts)

	// --profile was set explicitly, so the config file's LEARNING is ignored.
	require.Equal(t, "STRICT", opts.profile)
	// Everything else was left at its flag default, so the config fills it in.
	require.Equal(t, "/var/log/sandboxctl", opts.logDir)
	require.Equal(t, "debug", opts.logLevel)
	require.Equal(t, 50, opts.cpuQuotaPct)
	require.Equal(t, 32, opts.pidsMax)
	require.Equal(t, 256, opts.memoryMaxMB)
}

func TestApplyConfigFileMissingFileIsNotFatal(t *testing.T) {
	cmd := newRunCmd()
	require.NoError(t, cmd.Flags().Parse(nil))

	opts := &runOptions{configPath: filepath.Join(t.TempDir(), "missing.yaml"), profile: "STRICT", logDir: "logs"}
	applyConfigFile(cmd, opts)

	require.Equal(t, "STRICT", opts.profile)
	require.Equal(t, "logs", opts.logDir)
}
