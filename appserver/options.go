package appserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/zhubert/agentmux/transport"
)

// DefaultExecutable is the app-server CLI binary resolved from PATH when
// Options.Executable is empty.
const DefaultExecutable = "codex"

// installCheckTimeout bounds the version probe in CheckInstallation.
const installCheckTimeout = 5 * time.Second

// Options configures an app-server session.
type Options struct {
	// Executable is the app-server CLI binary. Defaults to DefaultExecutable.
	Executable string

	// ConfigOverrides are passed as -c key=value pairs before the
	// app-server subcommand. Merged over the full-auto defaults; an
	// explicit entry here wins.
	ConfigOverrides map[string]string

	// CWD is the working directory for the spawned process.
	CWD string

	// Env holds extra environment variables for the spawned process. PATH
	// is always set to an augmented search path (see BuildPathEnv) unless
	// overridden here.
	Env map[string]string

	// Transport overrides the spawned process. Tests inject a scripted
	// transport here.
	Transport transport.Transport

	Logger *slog.Logger
}

// defaultConfigOverrides puts the app-server in full-auto mode: approvals
// answered automatically and the sandbox wide open.
func defaultConfigOverrides() map[string]string {
	return map[string]string{
		"approval_policy": "never",
		"sandbox_mode":    "danger-full-access",
		"model_verbosity": "medium",
	}
}

// BuildArgs builds the CLI argument list: the -c overrides in sorted order
// followed by the app-server subcommand. Exported for testing argument
// construction.
func (o *Options) BuildArgs() []string {
	overrides := defaultConfigOverrides()
	for k, v := range o.ConfigOverrides {
		overrides[k] = v
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var args []string
	for _, k := range keys {
		args = append(args, "-c", k+"="+overrides[k])
	}
	return append(args, "app-server")
}

// BuildPathEnv returns a PATH with the common CLI install locations
// appended, so the app-server binary and its node/cargo tooling resolve
// even when the host process inherited a minimal environment.
func BuildPathEnv() string {
	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}

	for _, p := range strings.Split(os.Getenv("PATH"), ":") {
		add(p)
	}
	for _, p := range []string{"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin", "/bin", "/usr/sbin", "/sbin"} {
		add(p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, ".local", "bin"))
		add(filepath.Join(home, ".local", "share", "mise", "shims"))
		add(filepath.Join(home, ".cargo", "bin"))
		add(filepath.Join(home, ".bun", "bin"))
		if entries, err := os.ReadDir(filepath.Join(home, ".nvm", "versions", "node")); err == nil {
			for _, entry := range entries {
				bin := filepath.Join(home, ".nvm", "versions", "node", entry.Name(), "bin")
				if info, err := os.Stat(bin); err == nil && info.IsDir() {
					add(bin)
				}
			}
		}
	}
	return strings.Join(paths, ":")
}

// CheckInstallation verifies the app-server CLI is installed and runnable
// by probing `<executable> --version` with a short timeout.
func CheckInstallation(executable string) error {
	if executable == "" {
		executable = DefaultExecutable
	}

	ctx, cancel := context.WithTimeout(context.Background(), installCheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, executable, "--version")
	cmd.Env = append(os.Environ(), "PATH="+BuildPathEnv())
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("timed out checking %s: make sure `%s --version` runs in a terminal", executable, executable)
		}
		return fmt.Errorf("%s is not installed or failed to start: try running `%s --version` in a terminal: %w", executable, executable, err)
	}
	return nil
}
