package wharf

import (
	"github.com/wharfhq/wharf/internal/conn"
	"github.com/wharfhq/wharf/internal/wsproto"
)

// Application is the set of lifecycle callbacks a server or client
// wires up. There is no routing/handler-chain layer here (that's out
// of scope): OnRequest and OnExecute receive the raw Connection and
// are expected to populate Reply/send a WS message themselves. Any
// hook left nil is simply skipped.
type Application struct {
	// OnConnected fires once a socket is accepted/dialed and its
	// Connection is constructed.
	OnConnected func(c *conn.Connection)

	// OnDisconnected fires when a connection is torn down, for any
	// reason (clean close, timeout, transport failure).
	OnDisconnected func(c *conn.Connection)

	// OnRequest fires once a request finishes parsing (Status ==
	// RequestOk). The callback populates c.Reply and calls
	// c.SendReply; if it returns without sending, the server sends a
	// 500 stock reply on its behalf.
	OnRequest func(c *conn.Connection)

	// OnReply fires on the client side once a reply finishes parsing.
	OnReply func(c *conn.Connection)

	// OnExecute, if set, replaces the default action-name dispatch for
	// an incoming subprotocol Call: the server's command table is
	// skipped entirely and this callback is solely responsible for
	// responding (with CallResult/CallError) or not.
	OnExecute func(c *conn.Connection, msg wsproto.Message)

	// OnException fires for any TransportFailure or HandlerFailure: a
	// panic recovered from an application callback, or an error from
	// the transport layer. A transport error closes the connection. A
	// recovered panic is only reported: the connection closes afterward
	// only when a server OnRequest panicked before sending its reply
	// (the 500 stock reply sent in its place always closes); a panic in
	// OnReply, OnExecute or a command handler leaves it open.
	OnException func(c *conn.Connection, err error)

	// OnAccessLog fires after a reply has been sent (or a stock error
	// reply sent on the application's behalf), for request logging.
	OnAccessLog func(c *conn.Connection)
}

// CommandHandler serves one named subprotocol Call action.
type CommandHandler func(c *conn.Connection, msg wsproto.Message)

// CommandTable is the default action-name dispatch for incoming Call
// messages, consulted when Application.OnExecute is nil.
type CommandTable map[string]CommandHandler
