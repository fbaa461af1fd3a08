// Package httpdate converts between time.Time and the three HTTP-date forms
// allowed by RFC 1945 section 3.3.
package httpdate

import (
	"errors"
	"strings"
	"time"
)

const (
	// RFC1123 is the only form the server ever sends.
	RFC1123 = "Mon, 02 Jan 2006 15:04:05 GMT"
	RFC850  = "Monday, 02-Jan-06 15:04:05 GMT"
	ASCTime = "Mon Jan _2 15:04:05 2006"
)

var ErrInvalid = errors.New("invalid HTTP-date")

// Format renders t as an rfc1123-date in GMT.
func Format(t time.Time) string {
	return t.UTC().Format(RFC1123)
}

// Parse accepts any of the three legal forms and returns the instant in UTC.
//
//	Sun, 06 Nov 1994 08:49:37 GMT    ; RFC 822, updated by RFC 1123
//	Sunday, 06-Nov-94 08:49:37 GMT   ; RFC 850, obsoleted by RFC 1036
//	Sun Nov  6 08:49:37 1994         ; ANSI C's asctime() format
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var layout string
	switch comma := strings.IndexByte(s, ','); {
	case comma < 0:
		layout = ASCTime
	case comma == 3:
		layout = RFC1123
	default:
		layout = RFC850
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, ErrInvalid
	}
	return t.UTC(), nil
}

// NotModifiedSince reports whether a resource last modified at mtime is no
// newer than since. Both are compared at whole-second GMT granularity.
func NotModifiedSince(mtime, since time.Time) bool {
	m := mtime.UTC().Truncate(time.Second)
	s := since.UTC().Truncate(time.Second)
	return !s.Before(m)
}
