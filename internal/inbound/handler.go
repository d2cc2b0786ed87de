package inbound

import (
	"bytes"
	"io"

	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/logging"
)

// Handler prints inbound messages to the console. It holds no state
// between messages.
type Handler struct {
	console *logging.Console
}

// NewHandler creates a Handler writing to console.
func NewHandler(console *logging.Console) *Handler {
	return &Handler{console: console}
}

// Handle prints a header naming topic and size, then exactly size bytes
// read from body, then a blank line.
//
// Bytes beyond size are left unread. A body shorter than size is echoed
// as far as it goes. Returns the number of bytes echoed.
func (h *Handler) Handle(topic string, size int, body io.Reader) int {
	h.console.Printf("Received a message with topic '%s', length %d bytes:\n", topic, size)

	var n int64
	if size > 0 && body != nil {
		// A short or failing body truncates the echo.
		n, _ = io.CopyN(h.console, body, int64(size))
	}

	h.console.Print("\n\n")
	return int(n)
}

// HandlePayload is Handle for a message already held in memory.
func (h *Handler) HandlePayload(topic string, payload []byte) int {
	return h.Handle(topic, len(payload), bytes.NewReader(payload))
}
