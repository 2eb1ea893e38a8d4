// Package conn implements the Connection lifecycle shared by the
// HTTP/1.1 server and client sides: a resumable request/reply parser
// bound to one socket, promotable to WebSocket framing after a
// successful upgrade handshake.
package conn

import (
	"net"
	"strings"

	"github.com/panjf2000/gnet/v2"

	"github.com/wharfhq/wharf/internal/httpmsg"
	"github.com/wharfhq/wharf/internal/httpparse"
	"github.com/wharfhq/wharf/internal/wsframe"
)

// Transport is the slice of gnet.Conn a Connection actually drives.
// gnet.Conn satisfies it structurally, so the server wires a live
// reactor connection straight through; the client wraps a plain
// net.Conn instead, since gnet is a server-only reactor.
type Transport interface {
	AsyncWrite(buf []byte, callback gnet.AsyncCallback) error
	RemoteAddr() net.Addr
	Close() error
}

// Side distinguishes the server-accepting half of a connection from
// the client-dialing half; they share Status but interpret ParseInput
// against opposite message types (request vs reply).
type Side int

const (
	ServerSide Side = iota
	ClientSide
)

// Connection owns exactly one in-flight Request, Reply, FrameIn,
// FrameOut and the three resumable parsers (request, reply, frame)
// that fill them, plus a
// per-connection named-data map (currently used to stash a bound
// session under "session").
type Connection struct {
	raw  Transport
	side Side

	status   Status
	protocol Protocol

	reqParser   *httpparse.RequestParser
	repParser   *httpparse.ReplyParser
	frameParser *wsframe.FrameParser

	Request  *httpmsg.Request
	Reply    *httpmsg.Reply
	FrameIn  *wsframe.Frame
	FrameOut *wsframe.Frame

	Subprotocol     string
	CloseConnection bool

	named map[string]any
}

// NewConnection wraps a freshly-accepted or freshly-dialed socket.
func NewConnection(raw Transport, side Side) *Connection {
	c := &Connection{
		raw:         raw,
		side:        side,
		status:      Connected,
		protocol:    HTTP,
		reqParser:   httpparse.NewRequestParser(),
		repParser:   httpparse.NewReplyParser(),
		frameParser: wsframe.NewFrameParser(),
		Request:     httpmsg.NewRequest(),
		Reply:       httpmsg.NewReply(),
		named:       make(map[string]any),
	}
	if side == ServerSide {
		c.status = WaitRequest
	} else {
		c.status = RequestReady
	}
	return c
}

func (c *Connection) Status() Status     { return c.status }
func (c *Connection) Protocol() Protocol { return c.protocol }
func (c *Connection) Side() Side         { return c.side }

// RemoteAddr is the underlying socket's peer address, or "" if this
// connection isn't backed by a live socket (as in parser-only tests).
func (c *Connection) RemoteAddr() string {
	if c.raw == nil {
		return ""
	}
	return c.raw.RemoteAddr().String()
}

// SetNamedData stores a value under key in this connection's
// per-connection attribute map.
func (c *Connection) SetNamedData(key string, value any) {
	c.named[key] = value
}

// GetNamedData retrieves a value previously stored with SetNamedData.
func (c *Connection) GetNamedData(key string) (any, bool) {
	v, ok := c.named[key]
	return v, ok
}

// DeleteNamedData removes a key from the named-data map.
func (c *Connection) DeleteNamedData(key string) {
	delete(c.named, key)
}

// Close closes the underlying socket. A Connection with no backing
// socket (tests) is a no-op.
func (c *Connection) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// Clear releases the current Request/Reply/frame state and rearms the
// parsers so the connection is ready for the next message, without
// disturbing named data (a bound session survives request-to-request).
func (c *Connection) Clear() {
	c.reqParser.Reset()
	c.repParser.Reset()
	c.frameParser.Reset()
	c.Request.Clear()
	c.Reply.Clear()
	c.FrameIn = nil
	c.FrameOut = nil
	c.CloseConnection = false
}

// ParseInput feeds data through whichever resumable parser this
// connection's protocol and side currently require: the request
// parser for an HTTP server connection, the reply parser for an HTTP
// client connection, or the frame parser once the connection has been
// promoted to WebSocket. In HTTP mode it advances Status on
// Done/Error; frame parsing leaves Status unchanged.
func (c *Connection) ParseInput(data []byte) (httpparse.Verdict, int) {
	if c.protocol == WebSocket {
		if c.FrameIn == nil {
			c.FrameIn = &wsframe.Frame{}
		}
		v, n := c.frameParser.Parse(c.FrameIn, data)
		return v, n
	}

	if c.side == ServerSide {
		v, n := c.reqParser.Parse(c.Request, data)
		switch v {
		case httpparse.Done:
			c.status = RequestOk
		case httpparse.Error:
			c.status = RequestError
		}
		return v, n
	}

	v, n := c.repParser.Parse(c.Reply, data)
	switch v {
	case httpparse.Done:
		c.status = ReplyOk
	case httpparse.Error:
		c.status = ReplyError
	}
	return v, n
}

// SetLimits bounds how many header bytes and body bytes the request
// parser will accumulate before failing a request with RequestError
// instead of growing its buffers without limit. Zero means unlimited.
func (c *Connection) SetLimits(maxHeaderBytes int, maxBodyBytes int64) {
	c.reqParser.MaxHeaderBytes = maxHeaderBytes
	c.reqParser.MaxBodyBytes = maxBodyBytes
}

// ResetRequest rearms the request parser and clears Request for the
// next message on a keep-alive connection.
func (c *Connection) ResetRequest() {
	c.reqParser.Reset()
	c.Request.Clear()
	c.status = WaitRequest
}

// ResetReply rearms the reply parser for the next response on a
// keep-alive client connection.
func (c *Connection) ResetReply() {
	c.repParser.Reset()
	c.Reply.Clear()
	c.status = RequestReady
}

// ResetFrame rearms the frame parser for the next WebSocket frame.
func (c *Connection) ResetFrame() {
	c.frameParser.Reset()
	c.FrameIn = nil
}

// write performs a single non-blocking async write of raw bytes; the
// reactor's write-complete callback (if any) is left to the caller.
func (c *Connection) write(b []byte) error {
	if c.raw == nil {
		return nil
	}
	return c.raw.AsyncWrite(b, nil)
}

// negotiateClose decides whether the connection should close after
// the current reply: it stays open only when it is replying to a
// request this connection itself just parsed (status == RequestOk)
// and that request's "Connection" header says "keep-alive" (compared
// case-insensitively).
// Every other case — no inbound request at all, an HTTP/1.0 request
// that never sends the header, or an HTTP/1.1 request sending
// "Connection: close" — closes, per RFC 2616 §14.10's default.
func (c *Connection) negotiateClose() bool {
	if c.status != RequestOk {
		return true
	}
	return !strings.EqualFold(c.Request.Headers.Get("Connection"), "keep-alive")
}

// SendReply negotiates CloseConnection from the inbound request,
// serializes and transmits the current Reply. sendNow performs the
// write immediately and moves status to ReplySent once it succeeds.
// With sendNow false, or when the write fails, nothing more is done:
// status stays at ReplyReady and nothing in this package flushes the
// reply later.
func (c *Connection) SendReply(sendNow bool) error {
	c.Reply.CloseConnection = c.negotiateClose()
	if c.Reply.CloseConnection {
		c.Reply.Headers.Set("Connection", "close")
	} else {
		c.Reply.Headers.Set("Connection", "keep-alive")
	}
	return c.sendPreparedReply(sendNow)
}

// SendStockReply builds and sends one of the canned error/status
// pages and always closes the connection afterward, matching this
// module's resolution of the open question on whether a stock reply
// implies Connection: close. It bypasses SendReply's negotiation
// deliberately: a stock reply is this module's signal that the
// request could not be serviced normally, so it always wins over
// whatever the inbound Connection header asked for.
func (c *Connection) SendStockReply(status httpmsg.Status) error {
	c.Reply.CloseConnection = true
	c.Reply.GetStockReply(status)
	return c.sendPreparedReply(true)
}

// sendPreparedReply serializes and transmits whatever CloseConnection
// decision the caller already settled on the current Reply.
func (c *Connection) sendPreparedReply(sendNow bool) error {
	c.status = ReplyReady
	if !sendNow {
		return nil
	}
	if err := c.write(c.Reply.Serialize()); err != nil {
		return err
	}
	c.status = ReplySent
	c.CloseConnection = c.Reply.CloseConnection
	return nil
}

// SendRequest serializes and transmits the current Request (client
// side only).
func (c *Connection) SendRequest(sendNow bool) error {
	c.status = RequestReady
	if !sendNow {
		return nil
	}
	if err := c.write(c.Request.Serialize()); err != nil {
		return err
	}
	c.status = RequestSent
	return nil
}

// AwaitReply marks the connection as blocked on the wire for a reply
// to the request it just sent. Callers invoke it between SendRequest
// and reading, so a snapshot of Status taken from another goroutine
// (metrics, diagnostics) sees WaitReply rather than a stale
// RequestSent for the whole blocking read.
func (c *Connection) AwaitReply() {
	c.status = WaitReply
}

// SendWebSocket writes frame onto the wire. Client-side connections
// mask with a freshly generated key per RFC 6455 §5.3; server-side
// connections must never mask outbound frames.
func (c *Connection) SendWebSocket(frame wsframe.Frame) error {
	frame.Masked = c.side == ClientSide
	var maskKey [4]byte
	if frame.Masked {
		maskKey = newMaskKey()
	}
	c.FrameOut = &frame
	return c.write(wsframe.Encode(frame, maskKey))
}

// SendText implements wsproto.Sender: it wraps data in a final text
// frame and sends it.
func (c *Connection) SendText(data []byte) error {
	return c.SendWebSocket(wsframe.Text(data))
}

// SwitchingProtocols emits a 101 handshake reply with the computed
// Sec-WebSocket-Accept and negotiated subprotocol, then promotes the
// connection: every subsequent ParseInput call parses frames instead
// of requests.
func (c *Connection) SwitchingProtocols(clientKey, subprotocol string) error {
	c.Reply.Clear()
	c.Reply.Status = httpmsg.StatusSwitchingProtocols
	c.Reply.StatusText = httpmsg.StatusSwitchingProtocols.Text()
	c.Reply.Headers.Set("Upgrade", "websocket")
	c.Reply.Headers.Set("Connection", "Upgrade")
	c.Reply.Headers.Set("Sec-WebSocket-Accept", wsframe.AcceptKey(clientKey))
	if subprotocol != "" {
		c.Reply.Headers.Set("Sec-WebSocket-Protocol", subprotocol)
	}
	c.Reply.ContentLength = 0

	if err := c.write(c.Reply.Serialize()); err != nil {
		return err
	}

	c.Subprotocol = subprotocol
	c.protocol = WebSocket
	c.status = ReplySent
	c.ResetFrame()
	return nil
}

// PromoteWebSocket switches a client connection to WebSocket framing
// after its 101 reply has been parsed and validated; unlike
// SwitchingProtocols it sends nothing, since the client already sent
// its half of the handshake as an ordinary request.
func (c *Connection) PromoteWebSocket(subprotocol string) {
	c.Subprotocol = subprotocol
	c.protocol = WebSocket
	c.ResetFrame()
}
