// Package main demonstrates a wharf feature.
package main

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/wharfhq/wharf/internal/conn"
	"github.com/wharfhq/wharf/internal/httpmsg"
	"github.com/wharfhq/wharf/internal/wsproto"
	"github.com/wharfhq/wharf/pkg/wharf"
)

func main() {
	table := wharf.CommandTable{
		"echo": func(c *conn.Connection, msg wsproto.Message) {
			data, err := wsproto.EncodeCallResult(msg.UniqueID, msg.Payload)
			if err != nil {
				log.Printf("echo: encode CallResult failed: %v", err)
				return
			}
			if err := c.SendText(data); err != nil {
				log.Printf("echo: SendText failed: %v", err)
			}
		},
	}

	app := wharf.Application{
		OnConnected: func(c *conn.Connection) {
			log.Printf("connected: %s", c.RemoteAddr())
		},
		OnDisconnected: func(c *conn.Connection) {
			log.Printf("disconnected: %s", c.RemoteAddr())
		},
		OnRequest: func(c *conn.Connection) {
			if strings.EqualFold(c.Request.Headers.Get("Upgrade"), "websocket") {
				_ = c.SwitchingProtocols(c.Request.Headers.Get("Sec-WebSocket-Key"), "")
				return
			}

			c.Reply.ContentType = httpmsg.ContentJSON
			c.Reply.Content, _ = json.Marshal(map[string]string{
				"message": "wharf echo server",
				"path":    c.Request.URI,
			})
			c.Reply.GetReply(httpmsg.StatusOK, httpmsg.ContentJSON)
			_ = c.SendReply(true)
		},
		OnException: func(c *conn.Connection, err error) {
			log.Printf("exception on %s: %v", c.RemoteAddr(), err)
		},
		OnAccessLog: func(c *conn.Connection) {
			log.Printf("%s %s -> %d", c.Request.Method, c.Request.URI, int(c.Reply.Status))
		},
	}

	config := wharf.DefaultConfig()
	config.Addr = ":8080"

	server := wharf.NewServer(config, app, table)
	log.Println("Starting wharf echo example on :8080")
	log.Println("Try: curl localhost:8080/, or a WebSocket client sending {\"t\":2,\"u\":\"1\",\"a\":\"echo\",\"p\":{}}")

	if err := server.Start(); err != nil {
		log.Fatal(err)
	}
}
