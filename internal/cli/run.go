package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agentsh/agentsh/internal/cgroup"
	"github.com/agentsh/agentsh/internal/config"
	"github.com/agentsh/agentsh/internal/policy"
	"github.com/agentsh/agentsh/internal/supervisor"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type runOptions struct {
	configPath    string
	profile       string
	cpuQuotaPct   int
	memoryMaxMB   int
	pidsMax       int
	logDir        string
	logLevel      string
	childInitPath string
	writablePaths []string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [flags] <executable> [args...]",
		Short: "Run an executable inside the sandbox and record its resource usage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigFile(cmd, opts)
			return runRun(cmd.Context(), opts, args[0], args[1:])
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", getenvDefault("SANDBOXCTL_CONFIG", "/etc/sandboxctl/config.yaml"), "path to sandboxctl.yaml (flags below take precedence over anything it sets)")
	cmd.Flags().StringVar(&opts.profile, "profile", string(policy.ProfileStrict), "isolation profile: STRICT|RESOURCE-AWARE|LEARNING")
	cmd.Flags().IntVar(&opts.cpuQuotaPct, "cpu-quota-pct", 0, "cgroup v2 CPU quota as a percentage of one core (0 disables the quota)")
	cmd.Flags().IntVar(&opts.memoryMaxMB, "memory-max-mb", 0, "cgroup v2 memory.max in MiB (0 disables the ceiling)")
	cmd.Flags().IntVar(&opts.pidsMax, "pids-max", 0, "cgroup v2 pids.max (0 disables the ceiling)")
	cmd.Flags().StringVar(&opts.logDir, "log-dir", getenvDefault("SANDBOXCTL_LOG_DIR", "logs"), "directory telemetry logs are written to")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", getenvDefault("SANDBOXCTL_LOG_LEVEL", "info"), "log level: debug|info|warn|error")
	cmd.Flags().StringVar(&opts.childInitPath, "childinit-path", getenvDefault("SANDBOXCTL_CHILDINIT_PATH", ""), "path to the sandbox-childinit binary (defaults to the sibling of this executable)")
	cmd.Flags().StringArrayVar(&opts.writablePaths, "writable-path", nil, "path to bind-remount read-write after the sandbox's rootfs goes read-only (repeatable; denied if the profile doesn't allow it)")

	return cmd
}

// applyConfigFile loads sandboxctl.yaml, if present, and fills in any
// option the caller didn't set explicitly on the command line. A missing
// or unreadable config file is not fatal — sandboxctl runs fine on flags
// and defaults alone.
func applyConfigFile(cmd *cobra.Command, opts *runOptions) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if !cmd.Flags().Changed("config") && errors.Is(err, fs.ErrNotExist) {
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not load config from %s: %v (using flags/defaults)\n", opts.configPath, err)
		return
	}

	flags := cmd.Flags()
	if !flags.Changed("profile") && cfg.Profile != "" {
		opts.profile = cfg.Profile
	}
	if !flags.Changed("log-dir") && cfg.LogDir != "" {
		opts.logDir = cfg.LogDir
	}
	if !flags.Changed("log-level") && cfg.LogLevel != "" {
		opts.logLevel = cfg.LogLevel
	}
	if !flags.Changed("childinit-path") && cfg.Paths.ChildInitPath != "" {
		opts.childInitPath = cfg.Paths.ChildInitPath
	}
	if !flags.Changed("cpu-quota-pct") && cfg.Cgroup.CPUQuotaPct != 0 {
		opts.cpuQuotaPct = cfg.Cgroup.CPUQuotaPct
	}
	if !flags.Changed("pids-max") && cfg.Cgroup.PidsMax != 0 {
		opts.pidsMax = cfg.Cgroup.PidsMax
	}
	if !flags.Changed("memory-max-mb") && cfg.Cgroup.MemoryMax != "" {
		if bytes, convErr := config.ParseByteSize(cfg.Cgroup.MemoryMax); convErr == nil {
			opts.memoryMaxMB = int(bytes / (1024 * 1024))
		}
	}
}

func runRun(ctx context.Context, opts *runOptions, executable string, args []string) error {
	logger, err := newLogger(opts.logLevel)
	if err != nil {
		return err
	}

	profile, err := policy.ParseProfile(opts.profile)
	if err != nil {
		logger.Warn("unknown profile, defaulting to STRICT", "requested", opts.profile)
		profile = policy.ProfileStrict
	}
	table, err := policy.Lookup(profile)
	if err != nil {
		return fmt.Errorf("resolve policy table: %w", err)
	}

	childInitPath := opts.childInitPath
	if childInitPath == "" {
		childInitPath, err = defaultChildInitPath()
		if err != nil {
			return fmt.Errorf("locate sandbox-childinit: %w", err)
		}
	}

	limits := cgroup.Limits{
		CPUQuotaPct: opts.cpuQuotaPct,
		PidsMax:     opts.pidsMax,
	}
	if opts.memoryMaxMB > 0 {
		mb, convErr := config.ParseByteSize(fmt.Sprintf("%dMiB", opts.memoryMaxMB))
		if convErr != nil {
			return fmt.Errorf("invalid --memory-max-mb: %w", convErr)
		}
		limits.MaxMemoryBytes = mb
		logger.Debug("memory ceiling configured", "memory_max", config.FormatByteSize(mb))
	}

	runID := uuid.NewString()[:8]
	cfg := supervisor.RunConfig{
		Profile:       table,
		ChildInitPath: childInitPath,
		Executable:    executable,
		Args:          args,
		CgroupLimits:  limits,
		RunName:       "sandboxctl-" + runID,
		WritablePaths: opts.writablePaths,
		Logger:        logger.With("run_id", runID),
	}

	result, err := supervisor.Run(ctx, opts.logDir, cfg)
	if err != nil {
		return fmt.Errorf("run %s: %w", executable, err)
	}

	fmt.Fprintln(os.Stdout, result.String())
	if result.ExitReason != supervisor.ReasonExited {
		return &ExitError{code: 1, message: result.String()}
	}
	return &ExitError{code: result.ExitCode}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(h), nil
}

func defaultChildInitPath() (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	candidate := filepath.Join(filepath.Dir(self), "sandbox-childinit")
	if _, statErr := os.Stat(candidate); statErr != nil {
		return "", fmt.Errorf("%s not found next to %s: %w", candidate, self, statErr)
	}
	return candidate, nil
}
