// Package wharf is the public facade: an HTTP/1.1 and WebSocket
// server/client built on the resumable parsers in internal/httpparse
// and internal/wsframe, wired through gnet's non-blocking reactor.
package wharf

import (
	"io"
	"log"
	"time"
)

// Config holds server- and client-side tuning knobs.
type Config struct {
	Addr         string
	Multicore    bool
	NumEventLoop int
	ReusePort    bool

	IdleTimeout time.Duration

	// MaxHeaderBytes and MaxBodyBytes bound the request line, headers,
	// and body each connection's request parser will accumulate;
	// exceeding either fails the request with a 400 instead of growing
	// the parser's buffers without limit. Wired onto every accepted
	// Connection in OnOpen via Connection.SetLimits.
	MaxHeaderBytes int
	MaxBodyBytes   int64

	Logger *log.Logger

	MaxConnections uint32
}

func newSilentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		Multicore:      true,
		ReusePort:      true,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   10 << 20,
		Logger:         newSilentLogger(),
		MaxConnections: 10000,
	}
}

// Validate normalizes zero-valued fields to their defaults.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = 1 << 20
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 10000
	}
	return nil
}
