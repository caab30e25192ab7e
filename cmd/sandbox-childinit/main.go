//go:build linux && cgo

// sandbox-childinit is cloned by sandboxctl with the target profile's
// namespace flags already set in its SysProcAttr. Once running inside
// the new namespaces it finishes isolation setup — mount privatization,
// a read-only rootfs remount, rlimits, and the seccomp allow-list — and
// then execs the real target, never returning on success.
//
// Usage: sandbox-childinit -- <command> [args...]
// Requires the SANDBOX_POLICY environment variable to hold the JSON
// encoding of the policy.Table the parent selected.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/agentsh/agentsh/internal/isolate"
	"github.com/agentsh/agentsh/internal/policy"
	"github.com/agentsh/agentsh/internal/seccomp"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 3 || os.Args[1] != "--" {
		log.Fatalf("usage: %s -- <command> [args...]", os.Args[0])
	}

	table, err := loadPolicy()
	if err != nil {
		log.Fatalf("load policy: %v", err)
	}

	// Mount privatization and the read-only remount are best-effort: an
	// unprivileged user namespace without the right mount permissions can
	// fail either step, and the original launcher only logs and presses
	// on rather than refusing to run at all.
	if err := isolate.PrivatizeMounts(); err != nil {
		log.Printf("warning: privatize mounts: %v", err)
	}
	if err := isolate.RemountRootReadOnly(); err != nil {
		log.Printf("warning: remount root read-only: %v", err)
	}
	if writable := writablePaths(); len(writable) > 0 {
		denied, err := isolate.MakePathsWritable(writable, table.WritablePathGlobs)
		if err != nil {
			log.Fatalf("make paths writable: %v", err)
		}
		if len(denied) > 0 {
			log.Printf("warning: profile %s denies write access to %v", table.Profile, denied)
		}
	}
	if err := isolate.ApplyRLimits(table.RLimits); err != nil {
		log.Fatalf("apply rlimits: %v", err)
	}

	filt, skipped, err := seccomp.Install(seccomp.FilterConfig{AllowedSyscalls: table.AllowedSyscalls})
	if err != nil {
		log.Fatalf("install seccomp filter: %v", err)
	}
	if len(skipped) > 0 {
		log.Printf("warning: skipped unknown syscalls: %v", skipped)
	}
	// The filter is live in the kernel once Load succeeds; Release only
	// frees the Go-side handle and is safe to call before exec.
	filt.Release()

	cmd := os.Args[2]
	args := os.Args[2:]
	if err := syscall.Exec(cmd, args, os.Environ()); err != nil {
		log.Fatalf("exec %s failed: %v", cmd, err)
	}
}

func writablePaths() []string {
	raw := os.Getenv("SANDBOX_WRITABLE_PATHS")
	if raw == "" {
		return nil
	}
	var paths []string
	for _, p := range strings.Split(raw, ":") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func loadPolicy() (policy.Table, error) {
	raw := os.Getenv("SANDBOX_POLICY")
	if raw == "" {
		return policy.Table{}, fmt.Errorf("SANDBOX_POLICY not set")
	}
	var table policy.Table
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return policy.Table{}, fmt.Errorf("unmarshal SANDBOX_POLICY: %w", err)
	}
	return table, nil
}
