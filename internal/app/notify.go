package app

import (
	"fmt"
	"io"
	"sync"
)

// WriterNotifier prints user notifications, one per line.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier returns a notifier writing to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Success(msg string) { n.print("", msg) }

func (n *WriterNotifier) Failure(msg string) { n.print("error: ", msg) }

func (n *WriterNotifier) print(prefix, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, prefix+msg)
}
