package httpmsg

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Request is the value type produced by the request parser and
// consumed by Connection.SendRequest. It knows how to serialize
// itself onto the wire; it does not know how to parse itself — that
// is httpparse's job.
type Request struct {
	Method  string
	URI     string
	Params  []string // raw "key=value" query-string pairs, in order
	VMajor  int
	VMinor  int
	Headers HeaderStore

	ContentType   ContentType
	ContentLength int64
	Content       []byte

	FormData []string // flat "key=value" pairs, populated for urlencoded bodies

	Host            string
	Port            int
	UserAgent       string
	CloseConnection bool
}

// NewRequest returns a zero-value Request ready for reuse.
func NewRequest() *Request {
	return &Request{VMajor: 1, VMinor: 1}
}

// Clear resets the request to its zero state, releasing slices back
// to zero length (not nil) so the backing arrays can be reused by the
// next parse on the same connection.
func (r *Request) Clear() {
	r.Method = ""
	r.URI = ""
	r.Params = r.Params[:0]
	r.VMajor, r.VMinor = 1, 1
	r.Headers.Clear()
	r.ContentType = ContentHTML
	r.ContentLength = 0
	r.Content = r.Content[:0]
	r.FormData = r.FormData[:0]
	r.Host = ""
	r.Port = 0
	r.UserAgent = ""
	r.CloseConnection = false
}

// Prepare populates the standard request headers ahead of a client
// send: Host (with ":port" when Port>0), User-Agent, Accept-Ranges
// (when Content is non-empty), Content-Type (from contentType unless
// already set explicitly) and Content-Length, and Connection
// (close/keep-alive per CloseConnection).
func (r *Request) Prepare(method, uri string, contentType ...ContentType) {
	r.Method = method
	r.URI = uri
	if len(contentType) > 0 {
		r.ContentType = contentType[0]
	}

	host := r.Host
	if r.Port > 0 {
		host = fmt.Sprintf("%s:%d", host, r.Port)
	}
	r.Headers.Set("Host", host)

	if r.UserAgent == "" {
		r.UserAgent = "wharf/1.0"
	}
	r.Headers.Set("User-Agent", r.UserAgent)

	if len(r.Content) > 0 {
		r.Headers.Set("Accept-Ranges", "bytes")
		switch r.ContentType {
		case ContentJSON:
			r.Content = ToJSON(r.Content)
		case ContentXML, ContentText:
			r.Content = ToText(r.Content)
		}
		if !r.Headers.Has("Content-Type") {
			r.Headers.Set("Content-Type", r.ContentType.MIMEString())
		}
		r.ContentLength = int64(len(r.Content))
		r.Headers.Set("Content-Length", strconv.FormatInt(r.ContentLength, 10))
	}

	if r.CloseConnection {
		r.Headers.Set("Connection", "close")
	} else {
		r.Headers.Set("Connection", "keep-alive")
	}
}

// Authorization adds a Basic/Bearer-style Authorization header:
// "<method> <base64(login:password)>".
func (r *Request) Authorization(method, login, password string) {
	token := base64.StdEncoding.EncodeToString([]byte(login + ":" + password))
	r.Headers.Set("Authorization", method+" "+token)
}

// Serialize writes the request line, headers, blank line and content
// onto the wire, in that order.
func (r *Request) Serialize() []byte {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(' ')
	b.WriteString(r.URI)
	if len(r.Params) > 0 {
		b.WriteByte('?')
		for i, p := range r.Params {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(p)
		}
	}
	b.WriteByte(' ')
	fmt.Fprintf(&b, "HTTP/%d.%d\r\n", r.VMajor, r.VMinor)

	for i := 0; i < r.Headers.Count(); i++ {
		h := r.Headers.At(i)
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		for _, opt := range h.Options {
			b.WriteString("; ")
			b.WriteString(opt)
		}
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")

	out := []byte(b.String())
	if len(r.Content) > 0 {
		out = append(out, r.Content...)
	}
	return out
}
