package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cooperbraun13/sws/internal/accesslog"
	"github.com/cooperbraun13/sws/internal/cgi"
	"github.com/cooperbraun13/sws/internal/httpdate"
	"github.com/cooperbraun13/sws/internal/magic"
	"github.com/cooperbraun13/sws/internal/request"
	"github.com/cooperbraun13/sws/internal/resolve"
	"github.com/cooperbraun13/sws/internal/response"
	"github.com/cooperbraun13/sws/internal/status"
)

const (
	htmlType  = "text/html"
	unknownIP = "X.X.X.X"
)

// Handler runs the request/response exchange for single connections. It
// holds no per-connection state and is safe for concurrent use.
type Handler struct {
	cfg      Config
	resolver *resolve.Resolver
	cgi      *cgi.Executor
	mime     magic.Func
	access   accesslog.Sink
	log      zerolog.Logger
	now      func() time.Time
}

// NewHandler builds a Handler for a validated cfg. A nil access sink
// discards records.
func NewHandler(cfg Config, access accesslog.Sink, log zerolog.Logger) *Handler {
	if access == nil {
		access = accesslog.Discard
	}
	return &Handler{
		cfg:      cfg,
		resolver: resolve.New(resolve.Config{DocRoot: cfg.DocRoot, CGIDir: cfg.CGIDir}),
		cgi:      &cgi.Executor{Log: log, Timeout: cfg.CGITimeout},
		mime:     magic.Lookup,
		access:   access,
		log:      log,
		now:      time.Now,
	}
}

// Exchange is one connection's trip through the state machine.
type Exchange struct {
	h    *Handler
	conn net.Conn
	br   *bufio.Reader
	w    io.Writer // conn, with the write deadline pushed forward per write
	log  zerolog.Logger

	req     *request.Request
	rawPath string
	target  resolve.Target
	info    fs.FileInfo
	resp    *response.Response
	code    status.Code // error page to send
	detail  string
	sent    int64
	record  accesslog.Record

	// ready is set once the exchange has nothing left to read or resolve
	// and next holds the state that produces the response.
	ready bool
	next  stateFunc
}

// Size estimates the response body length, for shortest-first scheduling.
func (ex *Exchange) Size() int64 {
	if ex.resp == nil || ex.resp.ContentLength < 0 {
		return 0
	}
	return ex.resp.ContentLength
}

type stateFunc func(*Exchange) stateFunc

// ServeConn handles conn from the first byte to close.
func (h *Handler) ServeConn(conn net.Conn) {
	h.Finish(h.Prepare(conn))
}

// Prepare reads, parses and resolves the request on conn.
func (h *Handler) Prepare(conn net.Conn) *Exchange {
	ex := h.newExchange(conn)
	state := stateFunc(awaitHead)
	for !ex.ready {
		state = state(ex)
	}
	ex.next = state
	return ex
}

// Finish sends the response for a prepared exchange, logs it and closes the
// connection. A client that stops reading holds the worker for at most one
// timeout.
func (h *Handler) Finish(ex *Exchange) {
	for state := ex.next; state != nil; {
		state = state(ex)
	}
}

func (h *Handler) newExchange(conn net.Conn) *Exchange {
	ip := remoteIP(conn)
	return &Exchange{
		h:    h,
		conn: conn,
		br:   bufio.NewReader(conn),
		w:    deadlineWriter{conn: conn, timeout: h.cfg.Timeout},
		log:  h.log.With().Str("remote", ip).Logger(),
		record: accesslog.Record{
			RemoteIP: ip,
			Time:     h.now(),
		},
	}
}

// deadlineWriter fails a write once the peer has accepted nothing for
// timeout. Slow but live clients keep going.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w deadlineWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.Write(p)
}

func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return unknownIP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil || host == "" {
		return unknownIP
	}
	return host
}

func (ex *Exchange) simple() bool {
	return ex.req != nil && ex.req.Simple
}

// respond marks the end of the preparation phase.
func (ex *Exchange) respond(next stateFunc) stateFunc {
	ex.ready = true
	return next
}

func (ex *Exchange) fail(code status.Code, detail string) stateFunc {
	ex.code, ex.detail = code, detail
	return ex.respond(errorPage)
}

func (ex *Exchange) writeHead() error {
	err := response.Write(ex.w, ex.resp, ex.simple(), ex.h.now())
	if err != nil {
		ex.log.Debug().Err(err).Msg("write head")
	}
	return err
}

func (ex *Exchange) writeBody(body []byte) {
	n, err := ex.w.Write(body)
	ex.sent += int64(n)
	if err != nil {
		ex.log.Debug().Err(err).Msg("write body")
	}
}

func (ex *Exchange) setReadDeadline() {
	if t := ex.h.cfg.Timeout; t > 0 {
		ex.conn.SetReadDeadline(time.Now().Add(t))
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// notModified reports whether a GET may skip the body because the client's
// copy is current. The caller has set resp.LastModified.
func (ex *Exchange) notModified() bool {
	req := ex.req
	return req.Method == request.MethodGet && !req.IfModifiedSince.IsZero() &&
		httpdate.NotModifiedSince(ex.resp.LastModified, req.IfModifiedSince)
}

// sendNotModified answers with headers only: no type, zero length.
func (ex *Exchange) sendNotModified() stateFunc {
	ex.resp.ContentType = ""
	ex.resp.ContentLength = 0
	ex.writeHead()
	return logged
}

// state funcs

func awaitHead(ex *Exchange) stateFunc {
	// read: request line and headers, bounded by the read deadline
	ex.setReadDeadline()
	req, err := request.NewReader(ex.br).ReadRequest()
	ex.req = req
	// log: keep whatever request line we got, even for a bad request
	if req != nil {
		ex.record.RequestLine = req.Line
	}
	// classify: the parser already settled which error wins
	switch {
	case err == nil:
		return route
	case isTimeout(err):
		return ex.respond(timedOut)
	case errors.Is(err, request.ErrUnsupportedVersion):
		return ex.fail(status.VersionNotSupported, "")
	case errors.Is(err, request.ErrNotImplemented):
		return ex.fail(status.NotImplemented, "")
	default:
		ex.log.Debug().Err(err).Msg("bad request")
		return ex.fail(status.BadRequest, "")
	}
}

func route(ex *Exchange) stateFunc {
	req := ex.req
	// POST only ever reaches a script, so it needs CGI turned on
	if req.Method == request.MethodPost && ex.h.cfg.CGIDir == "" {
		return ex.fail(status.BadRequest, "CGI is not enabled in the server")
	}

	// resolve: map the URI onto the file system
	target, code := ex.h.resolver.Resolve(req.Path, req.Method)
	if code != status.OK {
		return ex.fail(code, "")
	}
	ex.rawPath = req.Path
	ex.target = target
	req.Path, req.Query = target.Path, target.Query

	if target.CGI {
		return ex.respond(runCGI)
	}
	if req.Method == request.MethodPost {
		return ex.fail(status.BadRequest, "The URI supplied with a POST request must point to a CGI script")
	}

	// stat: size and mtime for the headers (and for SFF)
	info, err := os.Stat(target.Path)
	if err != nil {
		ex.log.Error().Err(err).Str("path", target.Path).Msg("stat")
		return ex.fail(status.InternalServerError, "")
	}
	ex.info = info
	ex.resp = response.New(status.OK)
	if target.Dir {
		return ex.respond(listDirectory)
	}
	ex.resp.SetEntity(info, ex.h.mime(target.Path))
	return ex.respond(serveFile)
}

func serveFile(ex *Exchange) stateFunc {
	// conditional GET: client copy is current, skip the body
	if ex.notModified() {
		return ex.sendNotModified()
	}
	// HEAD: same headers as GET, no body
	if ex.req.Method == request.MethodHead {
		ex.writeHead()
		return logged
	}

	f, err := os.Open(ex.target.Path)
	if err != nil {
		ex.log.Error().Err(err).Str("path", ex.target.Path).Msg("open")
		ex.code = status.InternalServerError
		return errorPage
	}
	defer f.Close()

	// send: headers first, then the file contents
	if ex.writeHead() != nil {
		return logged
	}
	n, err := io.Copy(ex.w, f)
	ex.sent = n
	if err != nil {
		// headers are out; all we can do is drop the connection
		ex.log.Warn().Err(err).Str("path", ex.target.Path).Int64("sent", n).Msg("transfer aborted")
	}
	return logged
}

func listDirectory(ex *Exchange) stateFunc {
	// conditional GET applies to listings too; the directory's mtime stands
	// in for the page's
	ex.resp.LastModified = ex.info.ModTime()
	if ex.notModified() {
		return ex.sendNotModified()
	}

	dirents, err := os.ReadDir(ex.target.Path)
	if err != nil {
		ex.log.Error().Err(err).Str("path", ex.target.Path).Msg("read dir")
		ex.code = status.InternalServerError
		return errorPage
	}
	// ReadDir returns entries sorted by name.
	entries := make([]response.Entry, 0, len(dirents))
	for _, d := range dirents {
		if strings.HasPrefix(d.Name(), ".") {
			continue
		}
		entries = append(entries, response.Entry{Name: d.Name(), Dir: d.IsDir()})
	}
	body := response.DirectoryListing(filepath.Base(ex.target.Path), ex.rawPath, entries)

	ex.resp.ContentType = htmlType
	ex.resp.ContentLength = int64(len(body))
	if ex.writeHead() != nil {
		return logged
	}
	if ex.req.Method == request.MethodGet {
		ex.writeBody(body)
	}
	return logged
}

func runCGI(ex *Exchange) stateFunc {
	req := ex.req
	scriptName, _, _ := strings.Cut(ex.rawPath, "?")
	inv := &cgi.Invocation{
		Method:        req.Method,
		Script:        ex.target.Path,
		ScriptName:    scriptName,
		Query:         req.Query,
		ContentLength: req.ContentLength,
		ContentType:   req.ContentType,
		RemoteAddr:    ex.record.RemoteIP,
	}
	if !ex.simple() {
		inv.Preamble = response.Preamble(ex.h.now())
	}
	// the body is read straight from the client, so it gets a fresh deadline
	if req.Method == request.MethodPost {
		ex.setReadDeadline()
	}
	n, code := ex.h.cgi.Execute(context.Background(), inv, ex.br, ex.w)
	if code != status.OK {
		ex.code = code
		return errorPage
	}
	ex.resp = response.New(status.OK)
	ex.sent = n
	return logged
}

func errorPage(ex *Exchange) stateFunc {
	body := response.ErrorPage(ex.code, ex.detail)
	ex.resp = response.New(ex.code)
	ex.resp.ContentType = htmlType
	ex.resp.ContentLength = int64(len(body))
	if ex.writeHead() != nil {
		return logged
	}
	if ex.req == nil || ex.req.Method != request.MethodHead {
		ex.writeBody(body)
	}
	return logged
}

// timedOut sends headers only; the connection is closed right after.
func timedOut(ex *Exchange) stateFunc {
	ex.resp = response.New(status.ConnectionTimedOut)
	ex.log.Debug().Msg("connection timed out")
	response.Write(ex.w, ex.resp, false, ex.h.now())
	return logged
}

func logged(ex *Exchange) stateFunc {
	// one access record per connection, whatever happened
	ex.record.Status = int(ex.resp.Status)
	ex.record.Bytes = ex.sent
	if err := ex.h.access.Log(ex.record); err != nil {
		ex.log.Error().Err(err).Msg("access log")
	}
	ex.log.Debug().
		Str("request", ex.record.RequestLine).
		Int("status", ex.record.Status).
		Int64("bytes", ex.sent).
		Msg("exchange done")
	return closed
}

func closed(ex *Exchange) stateFunc {
	ex.conn.Close()
	return nil
}
