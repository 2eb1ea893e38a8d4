package wharf

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/wharfhq/wharf/internal/conn"
	"github.com/wharfhq/wharf/internal/date"
	"github.com/wharfhq/wharf/internal/httpmsg"
	"github.com/wharfhq/wharf/internal/httpparse"
	"github.com/wharfhq/wharf/internal/session"
	"github.com/wharfhq/wharf/internal/wsframe"
	"github.com/wharfhq/wharf/internal/wsproto"
)

// Server is a gnet.EventHandler accepting HTTP/1.1 connections and
// promoting them to WebSocket on a successful upgrade handshake. It
// detects a single protocol per connection (no HTTP/2 preface
// sniffing) and closes connections that sit idle past IdleTimeout,
// sending a courtesy 408 first if one is still owed.
type Server struct {
	gnet.BuiltinEventEngine

	config Config
	app    Application
	table  CommandTable

	engine      gnet.Engine
	activeConns uint32
	stopDate    func()
	conns       sync.Map // gnet.Conn -> *connState, scanned by OnTick for idle timeouts
}

// NewServer returns a Server ready to Start once an Application and
// (optionally) a CommandTable are attached.
func NewServer(config Config, app Application, table CommandTable) *Server {
	if err := config.Validate(); err != nil {
		panic(err)
	}
	return &Server{config: config, app: app, table: table}
}

// Start runs the reactor; it blocks until the listener is closed.
func (s *Server) Start() error {
	options := []gnet.Option{
		gnet.WithMulticore(s.config.Multicore),
		gnet.WithReusePort(s.config.ReusePort),
		gnet.WithTicker(true),
	}
	if s.config.NumEventLoop > 0 {
		options = append(options, gnet.WithNumEventLoop(s.config.NumEventLoop))
	}
	s.config.Logger.Printf("wharf: listening on %s", s.config.Addr)
	return gnet.Run(s, "tcp://"+s.config.Addr, options...)
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() error {
	if s.stopDate != nil {
		s.stopDate()
	}
	return s.engine.Stop(context.Background())
}

type connState struct {
	gc       gnet.Conn
	c        *conn.Connection
	lastByte time.Time
	timer    requestTimer
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.stopDate = date.StartTicker()
	return gnet.None
}

func (s *Server) OnOpen(gc gnet.Conn) ([]byte, gnet.Action) {
	if atomic.LoadUint32(&s.activeConns) >= s.config.MaxConnections {
		return []byte("HTTP/1.1 503 Service Unavailable\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"), gnet.Close
	}
	atomic.AddUint32(&s.activeConns, 1)
	connectionsActive.Inc()

	c := conn.NewConnection(gc, conn.ServerSide)
	c.SetLimits(s.config.MaxHeaderBytes, s.config.MaxBodyBytes)
	st := &connState{gc: gc, c: c, lastByte: time.Now()}
	gc.SetContext(st)
	s.conns.Store(gc, st)

	if s.app.OnConnected != nil {
		s.app.OnConnected(c)
	}
	return nil, gnet.None
}

func (s *Server) OnClose(gc gnet.Conn, _ error) gnet.Action {
	atomic.AddUint32(&s.activeConns, ^uint32(0))
	connectionsActive.Dec()
	s.conns.Delete(gc)

	if st, ok := gc.Context().(*connState); ok && s.app.OnDisconnected != nil {
		s.app.OnDisconnected(st.c)
	}
	return gnet.None
}

// OnTick scans every open connection for inactivity past IdleTimeout.
// A connection still waiting on an HTTP request gets a courtesy 408
// before the socket closes; a connection mid-WebSocket or awaiting a
// handler gets no such reply, since there is no well-formed message
// to send it into.
func (s *Server) OnTick() (time.Duration, gnet.Action) {
	cutoff := time.Now().Add(-s.config.IdleTimeout)
	s.conns.Range(func(_, value any) bool {
		st := value.(*connState)
		if st.lastByte.After(cutoff) {
			return true
		}
		if st.c.Protocol() == conn.HTTP && st.c.Status() == conn.WaitRequest {
			_ = st.c.SendStockReply(httpmsg.StatusRequestTimeout)
		}
		_ = st.gc.Close()
		return true
	})
	return s.config.IdleTimeout / 4, gnet.None
}

func (s *Server) OnTraffic(gc gnet.Conn) gnet.Action {
	st, ok := gc.Context().(*connState)
	if !ok {
		return gnet.Close
	}
	st.lastByte = time.Now()

	buf, err := gc.Next(-1)
	if err != nil {
		s.reportException(st.c, err)
		return gnet.Close
	}

	if st.c.Protocol() == conn.WebSocket {
		return s.handleWebSocketTraffic(st, buf)
	}
	return s.handleHTTPTraffic(st, buf)
}

func (s *Server) handleHTTPTraffic(st *connState, data []byte) gnet.Action {
	for len(data) > 0 {
		v, n := st.c.ParseInput(data)
		data = data[n:]

		switch v {
		case httpparse.NeedMore:
			return gnet.None
		case httpparse.Error:
			_ = st.c.SendStockReply(httpmsg.StatusBadRequest)
			if s.app.OnAccessLog != nil {
				s.app.OnAccessLog(st.c)
			}
			return gnet.Close
		case httpparse.Done:
			if st.timer == (requestTimer{}) {
				st.timer = startRequestTimer()
			}
			if s.handleRequest(st) {
				return gnet.Close
			}
			st.c.ResetRequest()

			if st.c.Protocol() == conn.WebSocket {
				if len(data) > 0 {
					return s.handleWebSocketTraffic(st, data)
				}
				return gnet.None
			}
		}
	}
	return gnet.None
}

// handleRequest dispatches a fully parsed request to the
// application's OnRequest hook and falls back to a 500 stock reply
// if the hook never sends one. Returns true if the connection should
// close afterward.
func (s *Server) handleRequest(st *connState) bool {
	_, span := startRequestSpan(st.c)

	var handlerErr error
	if s.app.OnRequest != nil {
		handlerErr = s.runGuarded(st.c, func() { s.app.OnRequest(st.c) })
	}
	if st.c.Status() != conn.ReplySent {
		if handlerErr == nil {
			handlerErr = fmt.Errorf("wharf: OnRequest did not send a reply")
		}
		_ = st.c.SendStockReply(httpmsg.StatusInternalServerError)
	}

	endRequestSpan(span, st.c, handlerErr)
	st.timer.observe(st.c)
	st.timer = requestTimer{}

	if s.app.OnAccessLog != nil {
		s.app.OnAccessLog(st.c)
	}

	shouldClose := st.c.CloseConnection
	st.c.Clear()
	return shouldClose
}

func (s *Server) handleWebSocketTraffic(st *connState, data []byte) gnet.Action {
	for len(data) > 0 {
		v, n := st.c.ParseInput(data)
		data = data[n:]

		switch v {
		case httpparse.NeedMore:
			return gnet.None
		case httpparse.Error:
			_ = st.c.SendWebSocket(wsframe.Close(1002, "protocol error"))
			return gnet.Close
		case httpparse.Done:
			frame := st.c.FrameIn
			wsFramesTotal.WithLabelValues("in", opcodeLabel(frame.Opcode)).Inc()
			if s.dispatchFrame(st, frame) {
				return gnet.Close
			}
			st.c.ResetFrame()
		}
	}
	return gnet.None
}

func (s *Server) dispatchFrame(st *connState, frame *wsframe.Frame) (shouldClose bool) {
	switch frame.Opcode {
	case wsframe.OpClose:
		_ = st.c.SendWebSocket(wsframe.Close(1000, ""))
		return true
	case wsframe.OpPing:
		_ = st.c.SendWebSocket(wsframe.Pong(frame.Payload))
		return false
	case wsframe.OpPong:
		return false
	case wsframe.OpText, wsframe.OpBinary:
		s.dispatchEnvelope(st, frame.Payload)
		return false
	default:
		return false
	}
}

func (s *Server) dispatchEnvelope(st *connState, payload []byte) {
	msg, err := wsproto.Decode(payload)
	if err != nil {
		_ = st.c.SendText(mustEncodeCallError("", -1, err.Error()))
		return
	}

	switch msg.Type {
	case wsproto.Call:
		if s.app.OnExecute != nil {
			_ = s.runGuarded(st.c, func() { s.app.OnExecute(st.c, msg) })
			return
		}
		handler, ok := s.table[msg.Action]
		if !ok {
			_ = st.c.SendText(mustEncodeCallError(msg.UniqueID, 404, "unknown action: "+msg.Action))
			return
		}
		_ = s.runGuarded(st.c, func() { handler(st.c, msg) })
	case wsproto.CallResult, wsproto.CallError:
		sess, ok := st.c.GetNamedData(session.SessionDataKey)
		if !ok {
			return
		}
		if sess, ok := sess.(*session.Session); ok {
			sess.Messages.Dispatch(msg)
		}
	}
}

func (s *Server) runGuarded(c *conn.Connection, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("wharf: handler panic: %v", r)
			s.reportException(c, err)
		}
	}()
	fn()
	return nil
}

func (s *Server) reportException(c *conn.Connection, err error) {
	if s.app.OnException != nil {
		s.app.OnException(c, err)
	}
}

func mustEncodeCallError(uid string, code int, message string) []byte {
	data, err := wsproto.EncodeCallError(uid, code, message, nil)
	if err != nil {
		return []byte(`{"t":4,"u":"","c":-1,"m":"internal error"}`)
	}
	return data
}

func opcodeLabel(op wsframe.Opcode) string {
	switch op {
	case wsframe.OpText:
		return "text"
	case wsframe.OpBinary:
		return "binary"
	case wsframe.OpClose:
		return "close"
	case wsframe.OpPing:
		return "ping"
	case wsframe.OpPong:
		return "pong"
	default:
		return "continuation"
	}
}
