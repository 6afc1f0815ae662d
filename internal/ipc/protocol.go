// Package ipc defines the JSON command protocol spoken over the daemon's
// unix socket. One command and one response per connection.
package ipc

import (
	"time"

	"keyflow/internal/buffer"
)

const SocketPath = "/tmp/keyflowd.sock"

// Command is a request sent to the daemon.
type Command struct {
	Name string      `json:"name"`
	Args interface{} `json:"args,omitempty"`
}

// Response is the daemon's reply.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	CmdPing   = "ping"       // health check
	CmdStatus = "get_status" // capture and buffer counters
	CmdFlush  = "flush"      // force an immediate durable flush
)

// StatusData is the payload of a get_status response.
type StatusData struct {
	StreamID      string       `json:"stream_id"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	StartedAt     time.Time    `json:"started_at"`
	AppName       string       `json:"app_name"`
	WindowTitle   string       `json:"window_title"`
	Buffer        buffer.Stats `json:"buffer"`
}
