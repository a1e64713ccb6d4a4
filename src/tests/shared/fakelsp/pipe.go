package fakelsp

import (
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"go.lsp.dev/jsonrpc2"
)

// EnvServerMode makes a test binary act as the fake server when set to "1"
const EnvServerMode = "LSP_TESTER_FAKE_SERVER"

// Environment knobs read by OptionsFromEnv
const (
	EnvSilent       = "FAKELSP_SILENT"
	EnvInitError    = "FAKELSP_INIT_ERROR"
	EnvOmitVersion  = "FAKELSP_OMIT_VERSION"
	EnvDelay        = "FAKELSP_DIAGNOSTICS_DELAY"
	EnvRequestCfg   = "FAKELSP_REQUEST_CONFIGURATION"
	EnvCrashOnStart = "FAKELSP_CRASH_ON_START"
)

// Pipe starts a server on one end of an in-memory pipe and returns the other end.
// The server stops when the returned conn is closed or exit is received.
func Pipe(opts Options) (io.ReadWriteCloser, *Server) {
	client, server := net.Pipe()
	srv := New(server, opts)
	go func() {
		_ = srv.Serve(context.Background())
	}()
	return client, srv
}

// OptionsFromEnv builds Options from the FAKELSP_* environment variables
func OptionsFromEnv() Options {
	var opts Options
	opts.Silent = os.Getenv(EnvSilent) == "1"
	opts.OmitVersion = os.Getenv(EnvOmitVersion) == "1"
	opts.RequestConfiguration = os.Getenv(EnvRequestCfg) == "1"
	if msg := os.Getenv(EnvInitError); msg != "" {
		opts.InitializeError = jsonrpc2.NewError(jsonrpc2.InternalError, msg)
	}
	if d, err := time.ParseDuration(os.Getenv(EnvDelay)); err == nil {
		opts.DiagnosticsDelay = d
	}
	return opts
}

type stdio struct {
	io.Reader
	io.Writer
}

func (s stdio) Close() error {
	return os.Stdout.Close()
}

// RunStdio serves on the process's stdin/stdout and returns an exit code
func RunStdio() int {
	if code := os.Getenv(EnvCrashOnStart); code != "" {
		n, err := strconv.Atoi(code)
		if err != nil {
			n = 1
		}
		return n
	}
	srv := New(stdio{Reader: os.Stdin, Writer: os.Stdout}, OptionsFromEnv())
	if err := srv.Serve(context.Background()); err != nil {
		srv.logger.Error("serve: %v", err)
		return 1
	}
	return 0
}
