package hubs

import (
	"fmt"
	"sync"
	"time"
)

// RunTimeout is the default bound on a one-shot run (e.g. a curl-style
// invocation from the Code app). Once exceeded, the process is killed
// and a caller streaming HTTP gets a synthetic 504 response instead of
// hanging forever.
const RunTimeout = 30 * time.Second

// CurlTimeoutResponse is the HTTP/1.1 body a timed-out run's stream
// delivers when the caller expects HTTP-shaped output.
const CurlTimeoutResponse = "HTTP/1.1 504 Gateway Timeout\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n# Request timeout (30s).\n"

// RunStreamMsg is one message the game loop sends to a run's stream.
type RunStreamMsg struct {
	Stdout   string
	Finished bool
	ExitCode int
}

// ActiveRun is one in-flight one-shot run: a stream plus enough state
// to detect and respond to a timeout.
type ActiveRun struct {
	VMID      string
	PID       uint64
	BinName   string
	StartedAt time.Time

	stream        chan RunStreamMsg
	lastStdoutLen int
}

func (r *ActiveRun) Stream() <-chan RunStreamMsg { return r.stream }

func (r *ActiveRun) TimedOut(now time.Time) bool {
	return now.Sub(r.StartedAt) > RunTimeout
}

// PushStdout sends the unseen suffix of full.
func (r *ActiveRun) PushStdout(full string) {
	if len(full) <= r.lastStdoutLen {
		return
	}
	suffix := full[r.lastStdoutLen:]
	r.lastStdoutLen = len(full)
	select {
	case r.stream <- RunStreamMsg{Stdout: suffix}:
	default:
	}
}

// Finish sends the terminal message and closes the stream.
func (r *ActiveRun) Finish(exitCode int) {
	select {
	case r.stream <- RunStreamMsg{Finished: true, ExitCode: exitCode}:
	default:
	}
	close(r.stream)
}

// ProcessRunHub tracks every one-shot run by (vm id, pid).
type ProcessRunHub struct {
	mu   sync.Mutex
	runs map[string]*ActiveRun
}

func NewProcessRunHub() *ProcessRunHub {
	return &ProcessRunHub{runs: make(map[string]*ActiveRun)}
}

func runKey(vmID string, pid uint64) string {
	return fmt.Sprintf("%s:%d", vmID, pid)
}

// Register starts tracking a new active run and returns the stream the
// caller should read from.
func (h *ProcessRunHub) Register(vmID string, pid uint64, binName string, startedAt time.Time) *ActiveRun {
	run := &ActiveRun{
		VMID:      vmID,
		PID:       pid,
		BinName:   binName,
		StartedAt: startedAt,
		stream:    make(chan RunStreamMsg, 32),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs[runKey(vmID, pid)] = run
	return run
}

func (h *ProcessRunHub) Unregister(vmID string, pid uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.runs, runKey(vmID, pid))
}

func (h *ProcessRunHub) Active() []*ActiveRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*ActiveRun, 0, len(h.runs))
	for _, r := range h.runs {
		out = append(out, r)
	}
	return out
}
