// Package cmd implements the cdpproxy command line.
//
// Unlike the teacher's cdp CLI, where the root command is a bare router
// over independent subcommands, this binary's root command IS the
// Chromium-wrapper behavior of original_source/remote_debugging_path_chromium's
// main(): invoked with no recognized subcommand, argv is scanned for
// --remote-debugging-path/--remote-debugging-allow[-expression] and either
// execs Chromium unchanged or starts the proxy supervisor. The developer
// subcommands (targets, new-target, close, send, watch, chromium) are
// dispatched the ordinary cobra way when argv[0] names one of them.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cdpproxy/internal"
	"cdpproxy/internal/install"
	"cdpproxy/internal/supervisor"
	"cdpproxy/internal/utility"
	"cdpproxy/internal/wrapper"
)

var rootCmd = &cobra.Command{
	Use:           "cdpproxy",
	Short:         "A Chromium wrapper exposing CDP over a UNIX socket",
	Long:          "cdpproxy wraps a Chromium binary, speaking its --remote-debugging-pipe transport internally and re-exposing DevTools' HTTP+WebSocket surface on a UNIX domain socket.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&internal.Verbose, "verbose", "v", false, "Enable debug output")
}

// Execute is the binary's single entrypoint. Argv decides whether this
// runs as the Chromium wrapper or as one of the developer subcommands.
func Execute() {
	args := os.Args[1:]
	if len(args) > 0 && isKnownSubcommand(args[0]) {
		if err := rootCmd.Execute(); err != nil {
			reportAndExit(err)
		}
		return
	}
	if err := runWrapper(args); err != nil {
		reportAndExit(err)
	}
}

func isKnownSubcommand(name string) bool {
	switch name {
	case "help", "completion", "-h", "--help":
		return true
	}
	for _, c := range rootCmd.Commands() {
		if c.Name() == name {
			return true
		}
	}
	return false
}

func reportAndExit(err error) {
	_, _ = fmt.Fprintln(os.Stderr, "error:", err)
	switch {
	case utility.IsUserError(err):
		os.Exit(1)
	case utility.IsRuntimeError(err):
		os.Exit(2)
	default:
		os.Exit(1)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// runWrapper implements spec §6's "invoked as Chromium": parse the
// wrapper-only flags out of argv, then either hand off to Chromium
// unchanged or run the supervisor.
func runWrapper(args []string) error {
	parsed, err := wrapper.Parse(args)
	if err != nil {
		return utility.ErrUser("%v", err)
	}

	binary := parsed.ChromiumBinary
	if binary == "" {
		binary, err = defaultChromiumBinary()
		if err != nil {
			return err
		}
	}

	if !parsed.ProxyEnabled {
		return execChromium(binary, parsed.PassthroughArgs)
	}

	// parsed.Verbose comes from wrapper.Parse, not cobra: in wrapper mode
	// argv never reaches rootCmd's persistent flags (see Execute), so
	// internal.Verbose (set by the subcommand-only -v/--verbose binding
	// above) would stay false here regardless of what the user passed.
	log := newLogger(internal.Verbose || parsed.Verbose)
	sup := supervisor.New(supervisor.Options{
		SocketPath:     parsed.SocketPath,
		ChromiumBinary: binary,
		ChromiumArgs:   parsed.PassthroughArgs,
		Allow:          parsed.Allow,
		Log:            log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Run returns non-nil only for bring-up failures (spec §6 "Exit code":
	// execvp's own return code propagates when not proxying; in proxy mode
	// normal completion is always exit 0, regardless of Chromium's own
	// exit status — only early failures are non-zero here).
	if err := sup.Run(ctx); err != nil {
		return utility.ErrRuntime("%v", err)
	}
	return nil
}

// defaultChromiumBinary resolves a binary the way the supervisor needs
// one when --chromium-path is absent: an installed "current" build first,
// then whatever "chromium"/"chromium-browser"/"google-chrome" is on $PATH.
func defaultChromiumBinary() (string, error) {
	if path, err := install.CurrentBinary(internal.ChromiumDir); err == nil {
		return path, nil
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", utility.ErrUser("no chromium binary found; pass --chromium-path or run 'cdpproxy chromium install'")
}

// execChromium replaces the current process image with binary, the way
// the original Python wrapper's os.execvp(chromium_path, args) does when
// no --remote-debugging-path was given.
func execChromium(binary string, args []string) error {
	resolved, err := exec.LookPath(binary)
	if err != nil {
		resolved = binary
	}
	argv := append([]string{resolved}, args...)
	if err := syscall.Exec(resolved, argv, os.Environ()); err != nil {
		return utility.ErrRuntime("exec %s: %v", resolved, err)
	}
	return nil // unreachable on success
}
