package conn

import (
	"testing"

	"github.com/wharfhq/wharf/internal/httpmsg"
	"github.com/wharfhq/wharf/internal/httpparse"
	"github.com/wharfhq/wharf/internal/wsframe"
)

func TestNewConnectionServerSideStartsAtWaitRequest(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	if c.Status() != WaitRequest {
		t.Fatalf("Status = %v, want WaitRequest", c.Status())
	}
	if c.Protocol() != HTTP {
		t.Fatalf("Protocol = %v, want HTTP", c.Protocol())
	}
	if c.RemoteAddr() != "" {
		t.Fatalf("RemoteAddr = %q, want empty for a socketless Connection", c.RemoteAddr())
	}
}

func TestNewConnectionClientSideStartsAtRequestReady(t *testing.T) {
	c := NewConnection(nil, ClientSide)
	if c.Status() != RequestReady {
		t.Fatalf("Status = %v, want RequestReady", c.Status())
	}
}

func TestParseInputServerSideAdvancesToRequestOk(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	data := []byte("GET /ping HTTP/1.1\r\nHost: example.com\r\n\r\n")

	v, n := c.ParseInput(data)
	if v != httpparse.Done || n != len(data) {
		t.Fatalf("ParseInput = (%v, %d), want (Done, %d)", v, n, len(data))
	}
	if c.Status() != RequestOk {
		t.Fatalf("Status = %v, want RequestOk", c.Status())
	}
	if c.Request.Method != "GET" || c.Request.URI != "/ping" {
		t.Fatalf("Request = %+v", c.Request)
	}
}

func TestParseInputServerSideAdvancesToRequestError(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	v, _ := c.ParseInput([]byte(" GET / HTTP/1.1\r\n\r\n"))
	if v != httpparse.Error {
		t.Fatalf("ParseInput verdict = %v, want Error", v)
	}
	if c.Status() != RequestError {
		t.Fatalf("Status = %v, want RequestError", c.Status())
	}
}

func TestParseInputClientSideAdvancesToReplyOk(t *testing.T) {
	c := NewConnection(nil, ClientSide)
	data := []byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")

	v, _ := c.ParseInput(data)
	if v != httpparse.Done {
		t.Fatalf("ParseInput verdict = %v, want Done", v)
	}
	if c.Status() != ReplyOk {
		t.Fatalf("Status = %v, want ReplyOk", c.Status())
	}
	if c.Reply.Status != httpmsg.StatusOK {
		t.Fatalf("Reply.Status = %v, want 200", c.Reply.Status)
	}
}

func TestResetRequestRearmsParserForKeepAlive(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	first := []byte("GET /one HTTP/1.1\r\nHost: a\r\n\r\n")
	if v, _ := c.ParseInput(first); v != httpparse.Done {
		t.Fatalf("first parse verdict = %v, want Done", v)
	}

	c.ResetRequest()
	if c.Status() != WaitRequest {
		t.Fatalf("Status after ResetRequest = %v, want WaitRequest", c.Status())
	}
	if c.Request.Method != "" {
		t.Fatalf("Request.Method = %q after ResetRequest, want empty", c.Request.Method)
	}

	second := []byte("POST /two HTTP/1.1\r\nHost: a\r\n\r\n")
	v, _ := c.ParseInput(second)
	if v != httpparse.Done || c.Request.Method != "POST" || c.Request.URI != "/two" {
		t.Fatalf("second parse: verdict=%v method=%q uri=%q", v, c.Request.Method, c.Request.URI)
	}
}

func TestSendReplyWithNoSocketIsNoOpButAdvancesStatus(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	c.Reply.GetReply(httpmsg.StatusOK, httpmsg.ContentJSON)

	if err := c.SendReply(true); err != nil {
		t.Fatalf("SendReply failed: %v", err)
	}
	if c.Status() != ReplySent {
		t.Fatalf("Status = %v, want ReplySent", c.Status())
	}
}

func TestSendReplyKeepsConnectionOpenOnInboundKeepAlive(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	data := []byte("GET /ping HTTP/1.1\r\nHost: example.com\r\nConnection: keep-alive\r\n\r\n")
	if v, _ := c.ParseInput(data); v != httpparse.Done {
		t.Fatalf("ParseInput verdict = %v, want Done", v)
	}

	c.Reply.GetReply(httpmsg.StatusOK, httpmsg.ContentJSON)
	if err := c.SendReply(true); err != nil {
		t.Fatalf("SendReply failed: %v", err)
	}
	if c.CloseConnection {
		t.Fatal("CloseConnection = true, want false for an inbound Connection: keep-alive")
	}
	if c.Reply.Headers.Get("Connection") != "keep-alive" {
		t.Fatalf("Connection header = %q, want keep-alive", c.Reply.Headers.Get("Connection"))
	}
}

func TestSendReplyClosesConnectionWithoutInboundKeepAlive(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	data := []byte("GET /ping HTTP/1.1\r\nHost: example.com\r\n\r\n")
	if v, _ := c.ParseInput(data); v != httpparse.Done {
		t.Fatalf("ParseInput verdict = %v, want Done", v)
	}

	c.Reply.GetReply(httpmsg.StatusOK, httpmsg.ContentJSON)
	if err := c.SendReply(true); err != nil {
		t.Fatalf("SendReply failed: %v", err)
	}
	if !c.CloseConnection {
		t.Fatal("CloseConnection = false, want true when the request sent no Connection: keep-alive")
	}
	if c.Reply.Headers.Get("Connection") != "close" {
		t.Fatalf("Connection header = %q, want close", c.Reply.Headers.Get("Connection"))
	}
}

func TestSendReplyClosesConnectionOnInboundConnectionClose(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	data := []byte("GET /ping HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")
	if v, _ := c.ParseInput(data); v != httpparse.Done {
		t.Fatalf("ParseInput verdict = %v, want Done", v)
	}

	c.Reply.GetReply(httpmsg.StatusOK, httpmsg.ContentJSON)
	if err := c.SendReply(true); err != nil {
		t.Fatalf("SendReply failed: %v", err)
	}
	if !c.CloseConnection {
		t.Fatal("CloseConnection = false, want true for an inbound Connection: close")
	}
}

func TestSendStockReplyAlwaysClosesConnection(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	if err := c.SendStockReply(httpmsg.StatusNotFound); err != nil {
		t.Fatalf("SendStockReply failed: %v", err)
	}
	if !c.CloseConnection {
		t.Fatal("CloseConnection = false after SendStockReply, want true")
	}
	if c.Reply.Status != httpmsg.StatusNotFound {
		t.Fatalf("Reply.Status = %v, want 404", c.Reply.Status)
	}
}

func TestSendStockReplyOverridesInboundKeepAlive(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	data := []byte("GET /ping HTTP/1.1\r\nHost: example.com\r\nConnection: keep-alive\r\n\r\n")
	if v, _ := c.ParseInput(data); v != httpparse.Done {
		t.Fatalf("ParseInput verdict = %v, want Done", v)
	}

	if err := c.SendStockReply(httpmsg.StatusInternalServerError); err != nil {
		t.Fatalf("SendStockReply failed: %v", err)
	}
	if !c.CloseConnection {
		t.Fatal("CloseConnection = false, want true: a stock reply always closes even on inbound keep-alive")
	}
}

func TestSetLimitsRejectsOversizedHeaders(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	c.SetLimits(32, 0)

	data := []byte("GET / HTTP/1.1\r\nX-Long: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\r\n\r\n")
	v, _ := c.ParseInput(data)
	if v != httpparse.Error {
		t.Fatalf("ParseInput verdict = %v, want Error", v)
	}
	if c.Status() != RequestError {
		t.Fatalf("Status = %v, want RequestError", c.Status())
	}
}

func TestAwaitReplyMarksConnectionWaiting(t *testing.T) {
	c := NewConnection(nil, ClientSide)
	c.Request.Prepare("GET", "/ping")

	if err := c.SendRequest(true); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	if c.Status() != RequestSent {
		t.Fatalf("Status after SendRequest = %v, want RequestSent", c.Status())
	}

	c.AwaitReply()
	if c.Status() != WaitReply {
		t.Fatalf("Status after AwaitReply = %v, want WaitReply", c.Status())
	}

	data := []byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
	if v, _ := c.ParseInput(data); v != httpparse.Done {
		t.Fatalf("ParseInput verdict = %v, want Done", v)
	}
	if c.Status() != ReplyOk {
		t.Fatalf("Status = %v, want ReplyOk", c.Status())
	}
}

func TestSwitchingProtocolsPromotesToWebSocket(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	clientKey := "dGhlIHNhbXBsZSBub25jZQ=="

	if err := c.SwitchingProtocols(clientKey, "ocpp1.6"); err != nil {
		t.Fatalf("SwitchingProtocols failed: %v", err)
	}
	if c.Protocol() != WebSocket {
		t.Fatalf("Protocol = %v, want WebSocket", c.Protocol())
	}
	if c.Subprotocol != "ocpp1.6" {
		t.Fatalf("Subprotocol = %q, want ocpp1.6", c.Subprotocol)
	}
	if c.Reply.Headers.Get("Sec-WebSocket-Accept") != wsframe.AcceptKey(clientKey) {
		t.Fatalf("Sec-WebSocket-Accept = %q", c.Reply.Headers.Get("Sec-WebSocket-Accept"))
	}

	frame := wsframe.Encode(wsframe.Text([]byte("hi")), [4]byte{})
	v, n := c.ParseInput(frame)
	if v != httpparse.Done || n != len(frame) {
		t.Fatalf("post-promotion ParseInput = (%v, %d)", v, n)
	}
	if c.FrameIn.Opcode != wsframe.OpText || string(c.FrameIn.Payload) != "hi" {
		t.Fatalf("FrameIn = %+v", c.FrameIn)
	}
}

func TestPromoteWebSocketDoesNotTouchStatus(t *testing.T) {
	c := NewConnection(nil, ClientSide)
	c.status = ReplyOk

	c.PromoteWebSocket("ocpp1.6")
	if c.Protocol() != WebSocket {
		t.Fatalf("Protocol = %v, want WebSocket", c.Protocol())
	}
	if c.Status() != ReplyOk {
		t.Fatalf("Status = %v, want unchanged ReplyOk", c.Status())
	}
}

func TestNamedDataRoundTrip(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	if _, ok := c.GetNamedData("session"); ok {
		t.Fatal("GetNamedData found a value before any SetNamedData")
	}

	c.SetNamedData("session", 42)
	v, ok := c.GetNamedData("session")
	if !ok || v.(int) != 42 {
		t.Fatalf("GetNamedData = (%v, %v), want (42, true)", v, ok)
	}

	c.DeleteNamedData("session")
	if _, ok := c.GetNamedData("session"); ok {
		t.Fatal("GetNamedData found a value after DeleteNamedData")
	}
}

func TestCloseWithNoSocketIsNoOp(t *testing.T) {
	c := NewConnection(nil, ServerSide)
	if err := c.Close(); err != nil {
		t.Fatalf("Close on a socketless Connection returned %v, want nil", err)
	}
}
