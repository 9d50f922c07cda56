// Package app wires configuration, logging, the language table, the script
// library and the document registry together and exposes them as the
// goscribe command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/sigterm-de/goscribe/assets"
	"codeberg.org/sigterm-de/goscribe/internal/config"
	"codeberg.org/sigterm-de/goscribe/internal/document"
	"codeberg.org/sigterm-de/goscribe/internal/lang"
	"codeberg.org/sigterm-de/goscribe/internal/logging"
	"codeberg.org/sigterm-de/goscribe/internal/scripts"
)

const appName = "goscribe"

// ExitInterrupted is returned when a run was stopped by the user.
const ExitInterrupted = 130

// Options are the global flags shared by every command.
type Options struct {
	ConfigFile string
	LogFile    string
	Debug      bool
}

// App holds what every command needs. It is built once per invocation.
type App struct {
	Version string
	User    config.UserConfiguration
	Config  config.Config
	LogPath string
	Langs   *lang.Table
	Docs    *document.Registry
	Library *scripts.Library

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	lines  <-chan string
}

// Run executes the command line and returns the exit code that main()
// should pass to os.Exit.
func Run(appVersion string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, appVersion, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, appVersion string, args []string, in io.Reader, out, errOut io.Writer) int {
	root := newRootCommand(appVersion, in, out, errOut)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	defer logging.Close()
	err := root.ExecuteContext(ctx)

	var exit *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.code
	default:
		fmt.Fprintln(errOut, appName+": error:", err)
		return 1
	}
}

// exitError carries a non-zero exit status that has already been reported
// to the user.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func exitCode(code int) error {
	if code == 0 {
		return nil
	}
	return &exitError{code: code}
}

// New initialises configuration, logging and the script library.
func New(appVersion string, opts Options, in io.Reader, out, errOut io.Writer) (*App, error) {
	a := &App{Version: appVersion, in: in, out: out, errOut: errOut}

	// ── Configuration paths ───────────────────────────────────────────────────
	user, err := config.NewUserConfiguration()
	if err != nil {
		return nil, fmt.Errorf("initialise configuration: %w", err)
	}
	if opts.ConfigFile != "" {
		user.ConfigFile = opts.ConfigFile
	}
	a.User = user

	// ── Logging ───────────────────────────────────────────────────────────────
	if opts.LogFile != "" {
		err = logging.InitFile(opts.LogFile, opts.Debug)
		a.LogPath = opts.LogFile
	} else {
		a.LogPath, err = logging.InitLogger(appName, opts.Debug)
	}
	if err != nil {
		fmt.Fprintf(errOut, "%s: warning: cannot initialise logger: %v\n", appName, err)
		a.LogPath = ""
	}
	logging.Log(logging.INFO, "", fmt.Sprintf("%s %s starting", appName, appVersion))

	// ── Configuration file ────────────────────────────────────────────────────
	a.Config, err = config.Load(user.ConfigFile)
	if err != nil {
		logging.Log(logging.WARN, "config", "using defaults", "error", err)
		fmt.Fprintf(errOut, "%s: warning: %v (using defaults)\n", appName, err)
	}

	// ── Language table ────────────────────────────────────────────────────────
	a.Langs, err = lang.Default()
	if err != nil {
		return nil, fmt.Errorf("load language table: %w", err)
	}
	a.Docs = document.NewRegistry(a.Config, a.Langs)

	// ── Script loading ────────────────────────────────────────────────────────
	loader := scripts.NewLoader(assets.Scripts(), a.Config.Run.MaxScriptSize)
	result, err := loader.Load(user.ScriptsDir)
	if err != nil {
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	for _, skipped := range result.Skipped {
		logging.Log(logging.WARN, skipped, "script was skipped during load")
	}
	logging.Log(logging.INFO, "", "scripts loaded",
		"bundled", result.Bundled, "user", result.User, "skipped", len(result.Skipped))
	a.Library = scripts.NewLibrary(result)
	return a, nil
}

// Lines returns the standard input split into lines. The channel is
// closed at end of input.
func (a *App) Lines() <-chan string {
	if a.lines == nil {
		a.lines = scanLines(a.in)
	}
	return a.lines
}
