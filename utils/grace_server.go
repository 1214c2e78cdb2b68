package utils

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	gracefulEnvKey   = "IS_GRACEFUL"
	gracefulEnvPair  = gracefulEnvKey + "=1"
	inheritedFd      = 3
	shutdownDeadline = 30 * time.Second

	defaultReadTimeout = 60 * time.Second
	// Publish requests block on the generation backend, which can take
	// minutes. The write timeout must outlast the generator timeout or the
	// server kills the response mid-wait.
	defaultWriteTimeout = 7 * time.Minute
)

// GracefulServer restarts without dropping connections: on SIGUSR2 it forks a
// replacement that inherits the listening socket via fd 3, then drains itself.
// SIGTERM drains and exits.
type GracefulServer struct {
	*http.Server

	listener     net.Listener
	inherited    bool
	signalChan   chan os.Signal
	shutdownDone chan struct{}
}

// NewGracefulServer wraps handler in a restart-capable HTTP server.
func NewGracefulServer(addr string, handler http.Handler) *GracefulServer {
	return &GracefulServer{
		Server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
		},
		inherited:    os.Getenv(gracefulEnvKey) != "",
		signalChan:   make(chan os.Signal, 1),
		shutdownDone: make(chan struct{}),
	}
}

// ListenAndServe binds (or inherits) the listener and serves until drained.
func (srv *GracefulServer) ListenAndServe() error {
	ln, err := srv.acquireListener()
	if err != nil {
		return err
	}
	srv.listener = ln

	go srv.handleSignals()
	err = srv.Serve(srv.listener)
	<-srv.shutdownDone
	return err
}

func (srv *GracefulServer) acquireListener() (net.Listener, error) {
	if srv.inherited {
		f := os.NewFile(inheritedFd, "")
		ln, err := net.FileListener(f)
		if err != nil {
			return nil, fmt.Errorf("inherit listener: %w", err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	return ln, nil
}

func (srv *GracefulServer) handleSignals() {
	signal.Notify(srv.signalChan, syscall.SIGTERM, syscall.SIGUSR2)

	for sig := range srv.signalChan {
		switch sig {
		case syscall.SIGTERM:
			Sugar.Info("SIGTERM received, draining HTTP server")
			srv.drain()
		case syscall.SIGUSR2:
			Sugar.Info("SIGUSR2 received, forking replacement process")
			pid, err := srv.forkReplacement()
			if err != nil {
				Sugar.Errorf("replacement process failed to start, continuing to serve: %v", err)
				continue
			}
			Sugar.Infof("replacement process started, pid=%d; draining old server", pid)
			srv.drain()
		}
	}
}

func (srv *GracefulServer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Sugar.Errorf("shutdown: %v", err)
	} else {
		Sugar.Info("HTTP server drained")
	}
	close(srv.shutdownDone)
}

func (srv *GracefulServer) forkReplacement() (int, error) {
	tcpLn, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener is %T, cannot pass fd", srv.listener)
	}
	f, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("listener file: %w", err)
	}

	env := make([]string, 0, len(os.Environ())+1)
	for _, e := range os.Environ() {
		if e != gracefulEnvPair {
			env = append(env, e)
		}
	}
	env = append(env, gracefulEnvPair)

	pid, err := syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), f.Fd()},
	})
	if err != nil {
		return 0, fmt.Errorf("forkexec: %w", err)
	}
	return pid, nil
}

// GraceServer serves handler on addr with graceful restart support.
func GraceServer(addr string, handler http.Handler) error {
	return NewGracefulServer(addr, handler).ListenAndServe()
}
