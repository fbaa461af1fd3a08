package request

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// MaxLineLength bounds a single request or header line, terminator excluded.
const MaxLineLength = 4096

var ErrLineTooLong = errors.New("line too long")

// LineReader reads CRLF- or LF-terminated lines from a byte source.
type LineReader struct {
	r   *bufio.Reader
	max int
	n   int // bytes consumed so far, terminators included
}

// NewLineReader wraps r. If r is already a *bufio.Reader it is used as is,
// so bytes buffered past the head stay available to the caller.
func NewLineReader(r io.Reader) *LineReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &LineReader{r: br, max: MaxLineLength}
}

// Consumed returns the number of bytes read so far.
func (lr *LineReader) Consumed() int { return lr.n }

// ReadLine returns the next line without its terminator. An unterminated
// last line before EOF is returned as a line.
func (lr *LineReader) ReadLine() (string, error) {
	var line []byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		lr.n += len(chunk)
		line = append(line, chunk...)
		if len(line) > lr.max+2 {
			return "", ErrLineTooLong
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil && (err != io.EOF || len(line) == 0) {
			return "", err
		}
		break
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) > lr.max {
		return "", ErrLineTooLong
	}
	return string(line), nil
}
