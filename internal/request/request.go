// Package request reads and parses the head of an HTTP/1.0 or HTTP/0.9
// request from a connection.
package request

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cooperbraun13/sws/internal/httpdate"
)

const (
	// MaxHeadSize bounds the request line plus all header lines.
	MaxHeadSize = 16 << 10
	// MaxContentType bounds the stored Content-Type value.
	MaxContentType = 63
)

var (
	ErrIncomplete         = errors.New("incomplete request")
	ErrMalformed          = errors.New("malformed request")
	ErrUnsupportedVersion = errors.New("unsupported HTTP version")
	ErrNotImplemented     = errors.New("method not implemented")
)

type Method int

const (
	MethodUnknown Method = iota
	MethodGet
	MethodHead
	MethodPost
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodHead:
		return "HEAD"
	case MethodPost:
		return "POST"
	default:
		return "UNKNOWN"
	}
}

// ParseMethod matches s case-insensitively against the supported methods.
func ParseMethod(s string) Method {
	switch {
	case strings.EqualFold(s, "GET"):
		return MethodGet
	case strings.EqualFold(s, "HEAD"):
		return MethodHead
	case strings.EqualFold(s, "POST"):
		return MethodPost
	default:
		return MethodUnknown
	}
}

// Request is the parsed head of one request.
type Request struct {
	Method Method
	Major  int
	Minor  int
	// Simple is set for a two-token HTTP/0.9 request line.
	Simple bool
	// Line is the request line as received, for the access log.
	Line string
	// Path is the request URI as received until resolution replaces it with
	// the absolute filesystem path.
	Path string
	// Query is filled in by resolution for CGI targets.
	Query           string
	IfModifiedSince time.Time // zero when absent
	ContentLength   int       // -1 when absent
	ContentType     string
}

// Reader parses requests from a byte source.
type Reader struct {
	lr *LineReader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{lr: NewLineReader(r)}
}

// ReadRequest reads one request head. Whenever the request line was read the
// returned Request is non-nil, even alongside an error, so callers can still
// log it. Read errors from the source are wrapped together with ErrIncomplete.
func (r *Reader) ReadRequest() (*Request, error) {
	var line string
	for line == "" {
		var err error
		if line, err = r.readLine(); err != nil {
			return nil, err
		}
	}

	req := &Request{Line: line, ContentLength: -1}
	fields := strings.Fields(line)
	if len(fields) == 2 {
		// HTTP/0.9 has no headers and no version token.
		req.Simple = true
		req.Major, req.Minor = 0, 9
		req.Method = ParseMethod(fields[0])
		req.Path = fields[1]
		if req.Method != MethodGet {
			return req, ErrNotImplemented
		}
		return req, nil
	}

	req.Major, req.Minor = 1, 0
	if err := r.readHeaders(req); err != nil {
		return req, err
	}
	if len(fields) != 3 {
		return req, fmt.Errorf("%w: %d tokens in request line", ErrMalformed, len(fields))
	}
	req.Path = fields[1]
	if !strings.EqualFold(fields[2], "HTTP/1.0") {
		return req, fmt.Errorf("%w: %s", ErrUnsupportedVersion, fields[2])
	}
	if req.Method = ParseMethod(fields[0]); req.Method == MethodUnknown {
		return req, fmt.Errorf("%w: %s", ErrNotImplemented, fields[0])
	}
	return req, nil
}

func (r *Reader) readLine() (string, error) {
	line, err := r.lr.ReadLine()
	switch {
	case err == ErrLineTooLong:
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrIncomplete, err)
	case r.lr.Consumed() > MaxHeadSize:
		return "", fmt.Errorf("%w: head exceeds %d bytes", ErrMalformed, MaxHeadSize)
	}
	return line, nil
}

// readHeaders consumes header lines up to the blank line. A bad header value
// does not stop the scan, so the whole head is always consumed.
func (r *Reader) readHeaders(req *Request) error {
	var bad error
	for {
		line, err := r.readLine()
		if err != nil {
			return err
		}
		if line == "" {
			return bad
		}
		i := strings.IndexByte(line, ':')
		if i < 0 {
			continue
		}
		name, value := strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
		switch {
		case strings.EqualFold(name, "If-Modified-Since"):
			t, err := httpdate.Parse(value)
			if err != nil {
				if bad == nil {
					bad = fmt.Errorf("%w: If-Modified-Since %q", ErrMalformed, value)
				}
				continue
			}
			req.IfModifiedSince = t
		case strings.EqualFold(name, "Content-Length"):
			if n, err := strconv.Atoi(value); err == nil {
				req.ContentLength = n
			}
		case strings.EqualFold(name, "Content-Type"):
			if len(value) > MaxContentType {
				value = value[:MaxContentType]
			}
			req.ContentType = value
		}
	}
}
