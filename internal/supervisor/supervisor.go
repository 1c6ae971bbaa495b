// Package supervisor implements spec §4.7: it creates the socketpair,
// starts the HTTP listener, spawns Chromium with the pair's fds inherited
// at 3 and 4, starts the bridge's dispatcher, and tears everything down in
// order once Chromium exits.
//
// Grounded on the original Python proxy's main()/start_with_unix_path
// (socket.socketpair, os.dup2 onto 3/4, pass_fds=(3,4)) and on
// other_examples' rod launcher_pipe.go, which inherits fds into a child via
// *os.File plumbing the same way — adapted here from two unidirectional
// os.Pipe()s to the single duplex AF_UNIX socketpair spec §4.1 explicitly
// allows ("both may refer to a socketpair end in this proxy").
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"syscall"

	"cdpproxy/internal/allowlist"
	"cdpproxy/internal/cdpbridge"
	"cdpproxy/internal/cdppipe"
	"cdpproxy/internal/httpapi"
)

// Options configures one proxy run.
type Options struct {
	// SocketPath is the UNIX path the DevTools HTTP surface listens on.
	SocketPath string
	// ChromiumBinary is the executable to launch; defaults to "chromium".
	ChromiumBinary string
	// ChromiumArgs are the already-filtered Chromium args (wrapper flags
	// removed, --remote-debugging-pipe not yet appended — Run appends it).
	ChromiumArgs []string
	// Allow is the optional allow-list; nil means every method is permitted.
	Allow *allowlist.List
	Log   *slog.Logger
}

// Supervisor owns the lifetime of one proxy run.
type Supervisor struct {
	opts Options
	log  *slog.Logger
}

// New constructs a Supervisor from opts.
func New(opts Options) *Supervisor {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{opts: opts, log: log}
}

// Run executes spec §4.7's six steps and blocks until Chromium exits or ctx
// is canceled. It returns a non-nil error only when bring-up fails
// (socketpair, listen, or starting Chromium); once Chromium has started, its
// exit status is logged and Run returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	pairFd, ourEnd, err := newSocketpair()
	if err != nil {
		return fmt.Errorf("supervisor: creating socketpair: %w", err)
	}

	listener, err := net.Listen("unix", s.opts.SocketPath)
	if err != nil {
		_ = ourEnd.Close()
		_ = pairFd.Close()
		return fmt.Errorf("supervisor: listening on %s: %w", s.opts.SocketPath, err)
	}
	defer func() { _ = os.Remove(s.opts.SocketPath) }()

	bridge := cdpbridge.New(cdppipe.New(ourEnd), s.log)
	server := httpapi.New(bridge, s.opts.Allow, s.log)
	httpSrv := &http.Server{Handler: server.Handler()}

	binary := s.opts.ChromiumBinary
	if binary == "" {
		binary = "chromium"
	}
	args := append(append([]string{}, s.opts.ChromiumArgs...), "--remote-debugging-pipe")
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{pairFd, pairFd} // inherited as fd 3 and fd 4

	if err := cmd.Start(); err != nil {
		_ = listener.Close()
		_ = ourEnd.Close()
		_ = pairFd.Close()
		return fmt.Errorf("supervisor: starting chromium: %w", err)
	}
	_ = pairFd.Close() // parent no longer needs its copy once inherited

	go func() {
		if err := bridge.Run(); err != nil {
			s.log.Error("dispatcher exited", slog.String("err", err.Error()))
		}
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpSrv.Serve(listener) }()

	exitErr := make(chan error, 1)
	go func() { exitErr <- cmd.Wait() }()

	terminated := false
	var waitErr error
	select {
	case waitErr = <-exitErr:
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		waitErr = <-exitErr
		terminated = true
	}

	_ = httpSrv.Close()
	<-serveErr
	if terminated {
		s.log.Warn("chromium terminated before reaching teardown on its own")
	}
	// Chromium exiting — on its own or killed via ctx — is normal completion
	// of a proxy session regardless of its exit status (spec "Exit code":
	// "otherwise 0 on normal completion"); only the bring-up failures above
	// (socketpair/listen/start) surface a non-nil error here.
	if waitErr != nil {
		s.log.Info("chromium exited", slog.String("err", waitErr.Error()))
	}
	return nil
}

// newSocketpair creates an AF_UNIX SOCK_STREAM pair and returns one end as
// an *os.File suitable for exec.Cmd.ExtraFiles (the Chromium-facing end)
// and the other as a net.Conn the dispatcher's codec reads/writes (the
// proxy-facing end).
func newSocketpair() (childEnd *os.File, parentEnd net.Conn, err error) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, err
	}
	childFile := os.NewFile(uintptr(fds[0]), "chromium-cdp-pipe")
	parentFile := os.NewFile(uintptr(fds[1]), "proxy-cdp-pipe")
	parentConn, err := net.FileConn(parentFile)
	if err != nil {
		_ = childFile.Close()
		_ = parentFile.Close()
		return nil, nil, err
	}
	_ = parentFile.Close() // net.FileConn dup'd the fd; close our copy
	return childFile, parentConn, nil
}
