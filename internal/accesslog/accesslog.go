// Package accesslog records one line per request/response exchange.
package accesslog

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cooperbraun13/sws/internal/httpdate"
)

// Record summarizes one exchange.
type Record struct {
	RemoteIP    string
	Time        time.Time
	RequestLine string
	Status      int
	Bytes       int64
}

// String renders r as
//
//	remoteip [time] "request-line" status bytes
func (r Record) String() string {
	return fmt.Sprintf("%s [%s] \"%s\" %d %d", r.RemoteIP, httpdate.Format(r.Time), r.RequestLine, r.Status, r.Bytes)
}

type Sink interface {
	Log(Record) error
}

// Writer is a Sink writing one line per record. It is safe for concurrent
// use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (lw *Writer) Log(r Record) error {
	line := r.String() + "\n"
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := io.WriteString(lw.w, line)
	return err
}

// Discard drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Log(Record) error { return nil }
