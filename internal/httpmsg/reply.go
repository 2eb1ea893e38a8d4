package httpmsg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wharfhq/wharf/internal/date"
)

// Reply is the value type the Connection serializes in response to a
// parsed request, or parses on the client side in response to a sent
// request.
type Reply struct {
	VMajor, VMinor int
	Status         Status
	StatusText     string // preserved verbatim from the wire for unknown codes

	ContentType     ContentType
	ServerName      string
	AllowedMethods  string
	CloseConnection bool
	Headers         HeaderStore
	ContentLength   int64
	Content         []byte
	CacheFile       string
}

// NewReply returns a zero-value Reply ready for reuse.
func NewReply() *Reply {
	return &Reply{VMajor: 1, VMinor: 1, ServerName: "wharf"}
}

// Clear resets the reply to its zero state for reuse across
// keep-alive requests on the same connection.
func (rep *Reply) Clear() {
	rep.VMajor, rep.VMinor = 1, 1
	rep.Status = 0
	rep.StatusText = ""
	rep.ContentType = ContentHTML
	rep.AllowedMethods = ""
	rep.CloseConnection = false
	rep.Headers.Clear()
	rep.ContentLength = 0
	rep.Content = rep.Content[:0]
	rep.CacheFile = ""
}

// GetReply populates the standard reply headers: Server, Date, any
// status-specific headers (Allow for 405/501, WWW-Authenticate for
// 401), and the same content headers Request.Prepare adds.
func (rep *Reply) GetReply(status Status, contentType ...ContentType) {
	rep.Status = status
	rep.StatusText = status.Text()
	if len(contentType) > 0 {
		rep.ContentType = contentType[0]
	}

	if rep.ServerName == "" {
		rep.ServerName = "wharf"
	}
	rep.Headers.Set("Server", rep.ServerName)
	rep.Headers.Set("Date", string(date.Current()))

	switch status {
	case StatusMethodNotAllowed, StatusNotImplemented:
		allowed := rep.AllowedMethods
		if allowed == "" {
			allowed = "OPTIONS, GET"
		}
		rep.Headers.Set("Allow", allowed)
	case StatusUnauthorized:
		rep.Headers.Set("WWW-Authenticate", `Basic realm="wharf", charset="UTF-8"`)
	}

	if len(rep.Content) > 0 {
		rep.Headers.Set("Accept-Ranges", "bytes")
		switch rep.ContentType {
		case ContentJSON:
			rep.Content = ToJSON(rep.Content)
		case ContentXML, ContentText:
			rep.Content = ToText(rep.Content)
		}
		if !rep.Headers.Has("Content-Type") {
			rep.Headers.Set("Content-Type", rep.ContentType.MIMEString())
		}
	}
	rep.ContentLength = int64(len(rep.Content))
	rep.Headers.Set("Content-Length", strconv.FormatInt(rep.ContentLength, 10))

	if rep.CloseConnection {
		rep.Headers.Set("Connection", "close")
	} else {
		rep.Headers.Set("Connection", "keep-alive")
	}
}

// GetStockReply sets the body to the canned page for status (HTML or
// JSON, selected by rep.ContentType) and then calls GetReply.
func (rep *Reply) GetStockReply(status Status) {
	text := status.Text()
	if rep.ContentType == ContentJSON {
		rep.Content = []byte(fmt.Sprintf(`{"error":{"code":%d,"message":"%s"}}`, int(status), text))
	} else {
		rep.Content = []byte(fmt.Sprintf(
			"<html><head><title>%d %s</title></head><body><h1>%d %s</h1></body></html>",
			int(status), text, int(status), text,
		))
	}
	rep.GetReply(status, rep.ContentType)
}

// Serialize writes the status line, headers, blank line and content
// onto the wire, in that order.
func (rep *Reply) Serialize() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/%d.%d %d %s\r\n", rep.VMajor, rep.VMinor, int(rep.Status), rep.StatusText)

	for i := 0; i < rep.Headers.Count(); i++ {
		h := rep.Headers.At(i)
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
	if len(rep.Content) > 0 {
		out = append(out, rep.Content...)
	}
	return out
}
