// Package response builds status lines, header blocks and the small HTML
// bodies the server generates itself.
package response

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"time"

	"github.com/cooperbraun13/sws/internal/httpdate"
	"github.com/cooperbraun13/sws/internal/status"
)

const (
	Version  = "HTTP/1.0"
	ServerID = "sws/1.0"
	CRLF     = "\r\n"
)

// Response carries the variable parts of a response head.
type Response struct {
	Status        status.Code
	ContentType   string
	ContentLength int64     // -1 when unknown
	LastModified  time.Time // zero when absent
}

func New(code status.Code) *Response {
	return &Response{Status: code, ContentLength: -1}
}

// SetEntity fills the entity fields from a file's metadata.
func (r *Response) SetEntity(info fs.FileInfo, contentType string) {
	r.ContentType = contentType
	r.ContentLength = info.Size()
	r.LastModified = info.ModTime()
}

// StatusLine renders the status line. Codes outside the known set go out as
// Internal Server Error.
func StatusLine(code status.Code) string {
	if !status.Known(code) {
		code = status.InternalServerError
	}
	return Version + " " + strconv.Itoa(int(code)) + " " + status.Text(code) + CRLF
}

// Headers renders the header block, blank line included, in the fixed order
// Date, Server, Last-Modified, Content-Type, Content-Length.
func Headers(r *Response, now time.Time) []byte {
	var b bytes.Buffer
	b.WriteString("Date: " + httpdate.Format(now) + CRLF)
	b.WriteString("Server: " + ServerID + CRLF)
	if !r.LastModified.IsZero() {
		b.WriteString("Last-Modified: " + httpdate.Format(r.LastModified) + CRLF)
	}
	if r.ContentType != "" {
		b.WriteString("Content-Type: " + r.ContentType + CRLF)
	}
	if r.ContentLength >= 0 {
		b.WriteString("Content-Length: " + strconv.FormatInt(r.ContentLength, 10) + CRLF)
	}
	b.WriteString(CRLF)
	return b.Bytes()
}

// Write sends the status line and headers. Simple (HTTP/0.9) responses have
// neither, so nothing is written for them.
func Write(w io.Writer, r *Response, simple bool, now time.Time) error {
	if simple {
		return nil
	}
	head := append([]byte(StatusLine(r.Status)), Headers(r, now)...)
	if _, err := w.Write(head); err != nil {
		return fmt.Errorf("write response head: %w", err)
	}
	return nil
}

// Preamble is the start of a CGI response: status line, Date and Server.
// The script supplies the remaining header fields and the blank line.
func Preamble(now time.Time) []byte {
	return []byte(StatusLine(status.OK) +
		"Date: " + httpdate.Format(now) + CRLF +
		"Server: " + ServerID + CRLF)
}
