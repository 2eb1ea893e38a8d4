package wharf

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/panjf2000/gnet/v2"

	"github.com/wharfhq/wharf/internal/conn"
	"github.com/wharfhq/wharf/internal/httpmsg"
	"github.com/wharfhq/wharf/internal/httpparse"
	"github.com/wharfhq/wharf/internal/wsframe"
	"github.com/wharfhq/wharf/internal/wsproto"
)

// netConnAdapter satisfies conn.Transport over a plain net.Conn, since
// Client drives Connection with a read loop instead of gnet's
// server-only reactor.
type netConnAdapter struct {
	net.Conn
}

func (a netConnAdapter) AsyncWrite(buf []byte, callback gnet.AsyncCallback) error {
	_, err := a.Conn.Write(buf)
	if callback != nil {
		_ = callback(nil, err)
	}
	return err
}

// Client is one dialed connection, driven synchronously for the
// HTTP/1.1 request/reply exchange and handed off to a background read
// loop once promoted to WebSocket. There is at most one outstanding
// HTTP request at a time; Send blocks until its reply is parsed.
type Client struct {
	app      Application
	table    CommandTable
	netConn  net.Conn
	c        *conn.Connection
	messages *wsproto.MessageManager

	mu     sync.Mutex
	closed bool
}

// Dial opens a TCP connection to addr, wraps it as a client-side
// Connection and fires OnConnected.
func Dial(addr string, app Application, table CommandTable) (*Client, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	cl := &Client{
		app:     app,
		table:   table,
		netConn: nc,
		c:       conn.NewConnection(netConnAdapter{nc}, conn.ClientSide),
	}
	cl.messages = wsproto.NewMessageManager(cl.c)

	if cl.app.OnConnected != nil {
		cl.app.OnConnected(cl.c)
	}
	return cl, nil
}

// Connection exposes the underlying Connection so callers can populate
// Connection().Request before calling Send.
func (cl *Client) Connection() *conn.Connection { return cl.c }

// Messages is the Call/CallResult/CallError correlation table for this
// connection, usable once Upgrade has promoted it to WebSocket.
func (cl *Client) Messages() *wsproto.MessageManager { return cl.messages }

// Send transmits the request staged on Connection().Request and blocks
// until the matching reply has been parsed, invoking OnReply before
// returning. The connection is closed afterward if the reply (or the
// request) asked for it.
func (cl *Client) Send() error {
	if err := cl.c.SendRequest(true); err != nil {
		return err
	}
	cl.c.AwaitReply()
	if err := cl.readReply(); err != nil {
		return err
	}

	if cl.app.OnReply != nil {
		cl.runGuarded(func() { cl.app.OnReply(cl.c) })
	}

	closeAfter := cl.c.Status() == conn.ReplyError || cl.c.Reply.CloseConnection ||
		cl.c.Request.CloseConnection ||
		strings.EqualFold(cl.c.Reply.Headers.Get("Connection"), "close")
	cl.c.Clear()
	if closeAfter {
		return cl.Close()
	}
	return nil
}

// Upgrade sends a WebSocket upgrade request for uri and, once the
// server's 101 reply validates, promotes the connection and starts the
// background frame read loop.
func (cl *Client) Upgrade(uri, subprotocol string) error {
	req := cl.c.Request
	req.Prepare("GET", uri)
	key := generateClientKey()
	req.Headers.Set("Upgrade", "websocket")
	req.Headers.Set("Connection", "Upgrade")
	req.Headers.Set("Sec-WebSocket-Key", key)
	req.Headers.Set("Sec-WebSocket-Version", "13")
	if subprotocol != "" {
		req.Headers.Set("Sec-WebSocket-Protocol", subprotocol)
	}

	if err := cl.c.SendRequest(true); err != nil {
		return err
	}
	cl.c.AwaitReply()
	if err := cl.readReply(); err != nil {
		return err
	}

	if cl.c.Status() == conn.ReplyError || cl.c.Reply.Status != httpmsg.StatusSwitchingProtocols {
		return fmt.Errorf("wharf: upgrade rejected: %d %s", int(cl.c.Reply.Status), cl.c.Reply.StatusText)
	}
	if cl.c.Reply.Headers.Get("Sec-WebSocket-Accept") != wsframe.AcceptKey(key) {
		return fmt.Errorf("wharf: Sec-WebSocket-Accept mismatch")
	}

	negotiated := cl.c.Reply.Headers.Get("Sec-WebSocket-Protocol")
	cl.c.PromoteWebSocket(negotiated)
	cl.messages.Bind(cl.c)

	go cl.readFrames()
	return nil
}

// readReply blocks the calling goroutine on the wire until one full
// reply has been parsed.
func (cl *Client) readReply() error {
	buf := make([]byte, 4096)
	for {
		n, err := cl.netConn.Read(buf)
		if err != nil {
			return err
		}
		data := buf[:n]
		for len(data) > 0 {
			v, consumed := cl.c.ParseInput(data)
			data = data[consumed:]
			switch v {
			case httpparse.Error:
				return fmt.Errorf("wharf: malformed reply")
			case httpparse.Done:
				return nil
			}
		}
	}
}

func (cl *Client) readFrames() {
	buf := make([]byte, 4096)
	for {
		n, err := cl.netConn.Read(buf)
		if err != nil {
			cl.reportException(err)
			_ = cl.Close()
			return
		}

		data := buf[:n]
		for len(data) > 0 {
			v, consumed := cl.c.ParseInput(data)
			data = data[consumed:]

			switch v {
			case httpparse.Error:
				_ = cl.c.SendWebSocket(wsframe.Close(1002, "protocol error"))
				_ = cl.Close()
				return
			case httpparse.Done:
				frame := cl.c.FrameIn
				wsFramesTotal.WithLabelValues("in", opcodeLabel(frame.Opcode)).Inc()
				if cl.dispatchFrame(frame) {
					_ = cl.Close()
					return
				}
				cl.c.ResetFrame()
			}
		}
	}
}

func (cl *Client) dispatchFrame(frame *wsframe.Frame) (shouldClose bool) {
	switch frame.Opcode {
	case wsframe.OpClose:
		_ = cl.c.SendWebSocket(wsframe.Close(1000, ""))
		return true
	case wsframe.OpPing:
		_ = cl.c.SendWebSocket(wsframe.Pong(frame.Payload))
		return false
	case wsframe.OpPong:
		return false
	case wsframe.OpText, wsframe.OpBinary:
		cl.dispatchEnvelope(frame.Payload)
		return false
	default:
		return false
	}
}

func (cl *Client) dispatchEnvelope(payload []byte) {
	msg, err := wsproto.Decode(payload)
	if err != nil {
		_ = cl.c.SendText(mustEncodeCallError("", -1, err.Error()))
		return
	}

	switch msg.Type {
	case wsproto.Call:
		if cl.app.OnExecute != nil {
			cl.runGuarded(func() { cl.app.OnExecute(cl.c, msg) })
			return
		}
		handler, ok := cl.table[msg.Action]
		if !ok {
			_ = cl.c.SendText(mustEncodeCallError(msg.UniqueID, 404, "unknown action: "+msg.Action))
			return
		}
		cl.runGuarded(func() { handler(cl.c, msg) })
	case wsproto.CallResult, wsproto.CallError:
		cl.messages.Dispatch(msg)
	}
}

func (cl *Client) runGuarded(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			cl.reportException(fmt.Errorf("wharf: handler panic: %v", r))
		}
	}()
	fn()
}

func (cl *Client) reportException(err error) {
	if cl.app.OnException != nil {
		cl.app.OnException(cl.c, err)
	}
}

// Close shuts down the socket and fires OnDisconnected at most once.
func (cl *Client) Close() error {
	cl.mu.Lock()
	if cl.closed {
		cl.mu.Unlock()
		return nil
	}
	cl.closed = true
	cl.mu.Unlock()

	err := cl.c.Close()
	if cl.app.OnDisconnected != nil {
		cl.app.OnDisconnected(cl.c)
	}
	return err
}

func generateClientKey() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("wharf: crypto/rand failure generating websocket key: " + err.Error())
	}
	return base64.StdEncoding.EncodeToString(b[:])
}
