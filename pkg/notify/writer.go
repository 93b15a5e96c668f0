package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// WriterNotifier prints messages to a writer, stdout by default. It is the
// delivery of last resort when no remote channel is configured.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier creates a notifier writing to w, or stdout when w is nil.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	if w == nil {
		w = os.Stdout
	}
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Channel() Channel { return ChannelStdout }

func (n *WriterNotifier) Send(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	rule := strings.Repeat("=", 60)
	if _, err := fmt.Fprintf(n.w, "%s\n%s\n%s\n\n%s\n", rule, msg.Title, rule, msg.Body); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
