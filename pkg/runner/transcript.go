package runner

import (
	"bytes"
	"context"
	"sync"

	"github.com/datawire/dlib/dlog"
)

// transcriptLimit bounds how much command output a job's run record keeps.
// The log still gets all of it.
const transcriptLimit = 8 << 10

// transcript is the executors' output sink: lines go to the job's logger as
// they arrive, and the most recent transcriptLimit bytes stick around so the
// history database can say what a job printed before it died.
type transcript struct {
	ctx context.Context

	mu   sync.Mutex
	line []byte
	tail []byte
}

func newTranscript(ctx context.Context) *transcript {
	return &transcript{ctx: ctx}
}

func (t *transcript) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keep(p)
	t.line = append(t.line, p...)
	for {
		i := bytes.IndexByte(t.line, '\n')
		if i < 0 {
			break
		}
		dlog.Infoln(t.ctx, string(t.line[:i]))
		t.line = t.line[i+1:]
	}
	return len(p), nil
}

// Flush logs a trailing unterminated line.  Executors call it after each
// command, so output without a final newline still shows up in order.
func (t *transcript) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.line) > 0 {
		dlog.Infoln(t.ctx, string(t.line))
		t.line = nil
	}
}

func (t *transcript) keep(p []byte) {
	t.tail = append(t.tail, p...)
	over := len(t.tail) - transcriptLimit
	if over <= 0 {
		return
	}
	// trim on a line boundary when one is in reach, so the kept tail
	// starts mid-transcript rather than mid-line
	if i := bytes.IndexByte(t.tail[over:], '\n'); i >= 0 && over+i+1 < len(t.tail) {
		over += i + 1
	}
	t.tail = append(t.tail[:0], t.tail[over:]...)
}

// Tail is the job's most recent output.
func (t *transcript) Tail() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.tail)
}
