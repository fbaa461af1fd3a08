// Package cgi runs CGI/1.1 scripts (RFC 3875) and relays their output to
// the client untouched.
package cgi

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/cooperbraun13/sws/internal/request"
	"github.com/cooperbraun13/sws/internal/response"
	"github.com/cooperbraun13/sws/internal/status"
)

const defaultPath = "/usr/local/bin:/usr/bin:/bin"

// Invocation describes one script run.
type Invocation struct {
	Method request.Method
	// Script is the absolute path of the program to execute.
	Script string
	// ScriptName is the request path that selected the script.
	ScriptName    string
	Query         string
	ContentLength int // -1 when the request had none
	ContentType   string
	RemoteAddr    string
	// Preamble is written to the client once the script has started and
	// before any of its output.
	Preamble []byte
}

// Executor spawns scripts. The zero value is usable.
type Executor struct {
	Log zerolog.Logger
	// Timeout kills a script that runs longer. Zero means no limit.
	Timeout time.Duration
}

// Environ returns the complete environment handed to the script.
func (e *Executor) Environ(inv *Invocation) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = defaultPath
	}
	env := []string{
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_PROTOCOL=" + response.Version,
		"SERVER_SOFTWARE=" + response.ServerID,
		"REQUEST_METHOD=" + inv.Method.String(),
	}
	if inv.Method == request.MethodGet || inv.Method == request.MethodHead {
		env = append(env, "QUERY_STRING="+inv.Query)
	}
	return append(env,
		"CONTENT_LENGTH="+strconv.Itoa(inv.ContentLength),
		"CONTENT_TYPE="+inv.ContentType,
		"SCRIPT_NAME="+inv.ScriptName,
		"SCRIPT_FILENAME="+inv.Script,
		"REMOTE_ADDR="+inv.RemoteAddr,
		"PATH="+path,
	)
}

// Execute runs the script, feeding it Content-Length bytes of client for
// POST, and copies everything it prints to conn. It returns the number of
// script bytes relayed. Any code other than status.OK means nothing was
// written to conn.
func (e *Executor) Execute(ctx context.Context, inv *Invocation, client io.Reader, conn io.Writer) (int64, status.Code) {
	switch inv.Method {
	case request.MethodGet, request.MethodHead:
	case request.MethodPost:
		if inv.ContentLength <= 0 {
			return 0, status.BadRequest
		}
	default:
		return 0, status.InternalServerError
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	log := e.Log.With().Str("script", inv.Script).Logger()

	cmd := exec.CommandContext(ctx, inv.Script)
	cmd.Dir = filepath.Dir(inv.Script)
	cmd.Env = e.Environ(inv)
	cmd.Stderr = log.With().Str("stream", "stderr").Logger()
	// own process group, so a timeout also reaps whatever the script forked
	// and nothing is left holding stdout open
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killGroup(cmd) }
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Error().Err(err).Msg("stdin pipe")
		return 0, status.InternalServerError
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		log.Error().Err(err).Msg("stdout pipe")
		return 0, status.InternalServerError
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		log.Error().Err(err).Msg("spawn failed")
		return 0, status.InternalServerError
	}

	if len(inv.Preamble) > 0 {
		if _, err := conn.Write(inv.Preamble); err != nil {
			log.Debug().Err(err).Msg("client went away")
			killGroup(cmd)
			stdin.Close()
			cmd.Wait()
			return 0, status.OK
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stdin.Close()
		if inv.Method != request.MethodPost {
			return
		}
		if _, err := io.CopyN(stdin, client, int64(inv.ContentLength)); err != nil {
			log.Debug().Err(err).Msg("relay request body")
		}
	}()

	n, err := io.Copy(conn, stdout)
	if err != nil {
		log.Debug().Err(err).Msg("relay script output")
		killGroup(cmd)
	}
	wg.Wait()
	if err := cmd.Wait(); err != nil {
		log.Warn().Err(err).Int64("bytes", n).Msg("script exited abnormally")
	}
	return n, status.OK
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}
