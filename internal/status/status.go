// Package status holds the fixed set of response codes the server emits.
package status

type Code int

const (
	OK                  Code = 200
	BadRequest          Code = 400
	Forbidden           Code = 403
	NotFound            Code = 404
	InternalServerError Code = 500
	NotImplemented      Code = 501
	VersionNotSupported Code = 505
	// ConnectionTimedOut is not defined by RFC 1945. It is sent with headers
	// only, right before the connection is dropped.
	ConnectionTimedOut Code = 522
)

// Known reports whether c belongs to the set above.
func Known(c Code) bool {
	switch c {
	case OK, BadRequest, Forbidden, NotFound, InternalServerError,
		NotImplemented, VersionNotSupported, ConnectionTimedOut:
		return true
	}
	return false
}

// Text returns the reason phrase used on the status line. Codes outside the
// set have none; callers send them as InternalServerError.
func Text(c Code) string {
	switch c {
	case OK:
		return "OK"
	case BadRequest:
		return "Bad Request"
	case Forbidden:
		return "Forbidden"
	case NotFound:
		return "Not Found"
	case InternalServerError:
		return "Internal Server Error"
	case NotImplemented:
		return "Not Implemented"
	case VersionNotSupported:
		return "HTTP Version Not Supported"
	case ConnectionTimedOut:
		return "Connection Timed Out"
	default:
		return ""
	}
}

// Message is the human-readable line shown on error pages.
func Message(c Code) string {
	switch c {
	case NotFound:
		return "File Not Found"
	case NotImplemented:
		return "Method Not Implemented"
	}
	if s := Text(c); s != "" {
		return s
	}
	return "Unknown"
}
