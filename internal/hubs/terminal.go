// Package hubs implements the three gRPC-facing coordination points
// between player connections and VM processes: the Terminal Hub
// (interactive shells), the Process Spy Hub (multi-PID observation), and
// the Process Run Hub (one-shot runs with a timeout).
package hubs

import (
	"sync"

	"github.com/google/uuid"
)

// TerminalSession bridges one interactive shell process's stdin/stdout
// to a connected client. The game loop drains StdinRx into the
// process's stdin queue and pushes new stdout onto StdoutTx every tick.
type TerminalSession struct {
	VMID string
	PID  uint64

	stdoutTx chan string
	stdinRx  chan string

	lastStdoutLen int
}

// TerminalHub tracks every active terminal session by session ID.
type TerminalHub struct {
	mu       sync.Mutex
	sessions map[string]*TerminalSession
}

func NewTerminalHub() *TerminalHub {
	return &TerminalHub{sessions: make(map[string]*TerminalSession)}
}

// Open registers a new session and returns its ID plus the channels the
// gRPC handler should read/write.
func (h *TerminalHub) Open(vmID string, pid uint64) (sessionID string, stdoutRx <-chan string, stdinTx chan<- string) {
	stdout := make(chan string, 32)
	stdin := make(chan string, 32)

	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.NewString()
	h.sessions[id] = &TerminalSession{VMID: vmID, PID: pid, stdoutTx: stdout, stdinRx: stdin}
	return id, stdout, stdin
}

func (h *TerminalHub) Close(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[sessionID]; ok {
		close(s.stdoutTx)
		delete(h.sessions, sessionID)
	}
}

// Sessions returns a snapshot of active sessions for the game loop to
// iterate over during a tick.
func (h *TerminalHub) Sessions() []*TerminalSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*TerminalSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// DrainStdin pulls every currently-queued stdin line without blocking.
func (s *TerminalSession) DrainStdin() []string {
	var lines []string
	for {
		select {
		case line, ok := <-s.stdinRx:
			if !ok {
				return lines
			}
			lines = append(lines, line)
		default:
			return lines
		}
	}
}

// PushStdoutSuffix sends only the portion of full not yet delivered to
// the client, tracking progress via lastStdoutLen.
func (s *TerminalSession) PushStdoutSuffix(full string) {
	if len(full) <= s.lastStdoutLen {
		return
	}
	suffix := full[s.lastStdoutLen:]
	s.lastStdoutLen = len(full)
	select {
	case s.stdoutTx <- suffix:
	default:
	}
}
