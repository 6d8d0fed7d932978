package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/m000z0rz/rocmtest/debugger"
	"github.com/m000z0rz/rocmtest/gpulock"
	"github.com/m000z0rz/rocmtest/internal"
	"github.com/m000z0rz/rocmtest/internal/ui"
	"github.com/m000z0rz/rocmtest/rocm"
	"github.com/m000z0rz/rocmtest/runner"
)

const usage = `Usage: rocmtest <command> [flags]

Commands:
  doctor    Check whether this host can run HIP debugging tests
  targets   Print the discovered amdgpu targets, one per line
  run       Run a command while holding the shared GPU lock
  version   Print the rocmtest version

Doctor exits 0 when HIP tests are available, 1 when they are not, and
2 when a check aborted on a tool failure.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "doctor":
		runDoctor(os.Args[2:])
	case "targets":
		runTargets(os.Args[2:])
	case "run":
		runLocked(os.Args[2:])
	case "version":
		fmt.Println(internal.FullVersion())
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

type options struct {
	gdb      string
	hipcc    string
	lockDir  string
	remote   string
	protocol string
	envFile  string
	debugLog string
	plain    bool
}

func registerFlags(fs *flag.FlagSet) *options {
	o := &options{}
	fs.StringVar(&o.gdb, "gdb", "", "Path to the gdb under test (default: gdb, or ROCMTEST_GDB env var)")
	fs.StringVar(&o.hipcc, "hipcc", "", "Path to hipcc (default: located via ROCM_PATH/PATH, or ROCMTEST_HIPCC env var)")
	fs.StringVar(&o.lockDir, "lock-dir", "", "Directory holding the shared GPU lock file (default: temp dir, or ROCMTEST_LOCK_DIR env var)")
	fs.StringVar(&o.remote, "remote", "", "SSH host to probe instead of the local machine")
	fs.StringVar(&o.protocol, "protocol", "", "Debug target protocol of the test session (default: native)")
	fs.StringVar(&o.envFile, "env-file", "", "Load environment variables from this file before anything else")
	fs.StringVar(&o.debugLog, "debug", "", "Write debug logs to this file")
	fs.BoolVar(&o.plain, "plain", false, "One-shot report without the interactive display")
	return o
}

// Flag > env var > default, same for every knob.
func (o *options) resolve() {
	if o.gdb == "" {
		o.gdb = os.Getenv("ROCMTEST_GDB")
	}
	if o.hipcc == "" {
		o.hipcc = os.Getenv("ROCMTEST_HIPCC")
	}
	if o.lockDir == "" {
		o.lockDir = os.Getenv("ROCMTEST_LOCK_DIR")
	}
}

func (o *options) lockPath() string {
	if o.lockDir == "" {
		return gpulock.DefaultPath()
	}
	return filepath.Join(o.lockDir, gpulock.DefaultName)
}

func newLogger(o *options) (*zap.Logger, func()) {
	if o.debugLog == "" {
		return zap.NewNop(), func() {}
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{o.debugLog}
	cfg.ErrorOutputPaths = []string{o.debugLog}
	log, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening debug log: %v\n", err)
		os.Exit(2)
	}
	return log, func() { _ = log.Sync() }
}

func buildHarness(o *options) (*rocm.Harness, func()) {
	// env file first: the flag fallbacks and the library both read the
	// environment
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", o.envFile, err)
			os.Exit(2)
		}
	}
	o.resolve()

	log, closeLog := newLogger(o)

	var run runner.Runner = runner.Local{}
	cleanup := closeLog
	if o.remote != "" {
		host, err := runner.FindSSHHost("", o.remote)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading SSH config: %v\n", err)
			os.Exit(2)
		}
		sshRun, err := runner.DialSSH(host)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to %s: %v\n", o.remote, err)
			os.Exit(2)
		}
		run = sshRun
		cleanup = func() {
			_ = sshRun.Close()
			closeLog()
		}
	}

	hostname, _ := os.Hostname()
	harness := rocm.New(rocm.Config{
		Protocol: o.protocol,
		LockPath: o.lockPath(),
		Worker:   "rocmtest@" + hostname,
		Runner:   run,
		Compiler: &rocm.HIPCC{Path: o.hipcc, Runner: run},
		GDB:      &debugger.GDB{Path: o.gdb, Runner: run},
		Logger:   log,
	})
	return harness, cleanup
}

func runDoctor(args []string) {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	o := registerFlags(fs)
	_ = fs.Parse(args)

	harness, cleanup := buildHarness(o)
	defer cleanup()

	var verdict rocm.Capability
	var err error

	if o.plain {
		verdict, err = ui.Plain(context.Background(), harness, os.Stdout)
	} else {
		p := tea.NewProgram(ui.NewModel(harness))
		final, runErr := p.Run()
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error running program: %v\n", runErr)
			os.Exit(2)
		}
		verdict, err = final.(ui.Model).Verdict()
	}

	switch {
	case err != nil:
		os.Exit(2)
	case verdict.OK:
		os.Exit(0)
	default:
		os.Exit(1)
	}
}

func runTargets(args []string) {
	fs := flag.NewFlagSet("targets", flag.ExitOnError)
	o := registerFlags(fs)
	_ = fs.Parse(args)

	harness, cleanup := buildHarness(o)
	defer cleanup()

	targets, err := harness.Targets(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	for _, t := range targets {
		fmt.Println(t)
	}
}

// runLocked executes a command while holding the shared GPU lock, for
// shell-driven harnesses that cannot link this library.
func runLocked(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	o := registerFlags(fs)
	_ = fs.Parse(args)

	cmdArgs := fs.Args()
	if len(cmdArgs) > 0 && cmdArgs[0] == "--" {
		cmdArgs = cmdArgs[1:]
	}
	if len(cmdArgs) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: rocmtest run [flags] -- command [args...]")
		os.Exit(2)
	}

	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", o.envFile, err)
			os.Exit(2)
		}
	}
	o.resolve()

	hostname, _ := os.Hostname()
	lock := gpulock.New(o.lockPath(), "rocmtest@"+hostname)
	release, err := lock.Acquire()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error acquiring GPU lock: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = release() }()

	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			_ = release()
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		_ = release()
		os.Exit(2)
	}
}
