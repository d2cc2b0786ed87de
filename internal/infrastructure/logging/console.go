package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Console writes the human-readable status stream: connection progress,
// retry dots, publish notices and echoed inbound messages.
//
// It is not a log. Lines carry no level, timestamp or attributes, and
// partial lines (a prompt followed by dots) are expected.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a Console writing to w. A nil writer means stdout.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

// Print writes the operands without a trailing newline.
func (c *Console) Print(a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.w, a...)
}

// Printf writes a formatted string without a trailing newline.
func (c *Console) Printf(format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, a...)
}

// Println writes the operands followed by a newline.
func (c *Console) Println(a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, a...)
}

// Write implements io.Writer so payload bytes can be copied straight through.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}
