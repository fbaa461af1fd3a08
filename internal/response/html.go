package response

import (
	"html"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/cooperbraun13/sws/internal/status"
)

// ErrorPage renders the HTML body for code. detail, when set, is shown as a
// second paragraph.
func ErrorPage(code status.Code, detail string) []byte {
	msg := strconv.Itoa(int(code)) + " - " + status.Message(code)
	var b strings.Builder
	b.WriteString("<html>" + CRLF + "<head>" + CRLF)
	b.WriteString("<title>" + ServerID + " - " + html.EscapeString(msg) + "</title>" + CRLF)
	b.WriteString("</head>" + CRLF + "<body>" + CRLF)
	b.WriteString("<h1>" + html.EscapeString(msg) + "</h1>" + CRLF)
	if detail != "" {
		b.WriteString("<p>" + html.EscapeString(detail) + "</p>" + CRLF)
	}
	b.WriteString("</body>" + CRLF + "</html>" + CRLF)
	return []byte(b.String())
}

// Entry is one line of a directory listing.
type Entry struct {
	Name string
	Dir  bool
}

// DirectoryListing renders entries, which must already be filtered and
// sorted. base is the request path the links are made relative to.
func DirectoryListing(title, base string, entries []Entry) []byte {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	t := html.EscapeString(title)
	var b strings.Builder
	b.WriteString("<html>" + CRLF + "<head>" + CRLF)
	b.WriteString("<title>" + ServerID + " - " + t + "</title>" + CRLF)
	b.WriteString("</head>" + CRLF + "<body>" + CRLF)
	b.WriteString("<h1>Directory Listing for " + t + "</h1>" + CRLF)
	b.WriteString("<ul>" + CRLF)
	for _, e := range entries {
		name := e.Name
		if e.Dir {
			name += "/"
		}
		href := path.Join(base, url.PathEscape(e.Name))
		if e.Dir {
			href += "/"
		}
		b.WriteString(`<li><a href="` + html.EscapeString(href) + `">` + html.EscapeString(name) + "</a></li>" + CRLF)
	}
	b.WriteString("</ul>" + CRLF)
	b.WriteString("</body>" + CRLF + "</html>" + CRLF)
	return []byte(b.String())
}
