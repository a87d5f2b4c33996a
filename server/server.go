// Package server adapts the teacher's command-dispatched session model
// (session_manager/session_manager.go) to the UPSI day-message command set:
// a background dispatcher goroutine services framed requests against a
// per-session method table, and a single atomic "current_day"/"day_finished"
// pair is the only cross-thread state (spec.md §5).
package server

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/summitto/upsi/internal/errs"
	"github.com/summitto/upsi/metrics"
	"github.com/summitto/upsi/transport"
)

// Method mirrors the teacher's `type method func([]byte) []byte` dispatch
// signature (session_manager/session_manager.go), extended to return an
// error for the uniform errs.Kind propagation this repo standardizes on.
type Method func(req []byte) ([]byte, error)

// Session is one party's live connection state: its method table plus the
// atomic day counters the dispatcher and any poller observe.
type Session struct {
	ID uuid.UUID

	methodLookup map[string]Method

	currentDay   int64 // atomic
	dayFinished  int32 // atomic, 0/1

	lastActive time.Time
	mu         sync.Mutex
}

// CommandList is the set of command names routed through Dispatch,
// replacing the teacher's TLS-notary step names (init, step1..step4,
// c1_step1..c7_step2, ...) with the UPSI day-message schedule.
var CommandList = []string{
	"init",
	"messageI",
	"messageII",
	"messageIII",
	"messageIV",
}

// NewSession builds a session with handlers bound for each CommandList
// entry, mirroring AddSession's methodLookup construction.
func NewSession(handlers map[string]Method) *Session {
	s := &Session{
		ID:           uuid.New(),
		methodLookup: map[string]Method{},
		lastActive:   time.Now(),
	}
	for _, name := range CommandList {
		if h, ok := handlers[name]; ok {
			s.methodLookup[name] = h
		}
	}
	return s
}

// CurrentDay is the single atomic counter a ProtocolFinished poller reads
// without taking s.mu (spec.md §5 "single atomic current_day counter").
func (s *Session) CurrentDay() int { return int(atomic.LoadInt64(&s.currentDay)) }

// AdvanceDay atomically increments current_day and clears day_finished.
func (s *Session) AdvanceDay() {
	atomic.AddInt64(&s.currentDay, 1)
	atomic.StoreInt32(&s.dayFinished, 0)
}

// MarkDayFinished sets the day_finished flag the poller watches.
func (s *Session) MarkDayFinished() { atomic.StoreInt32(&s.dayFinished, 1) }

// DayFinished reports whether the current day's state machine reached
// DAY_DONE.
func (s *Session) DayFinished() bool { return atomic.LoadInt32(&s.dayFinished) == 1 }

// Dispatch runs the named command's handler against req, serializing access
// to the session's cryptographic state with s.mu — the "protocol core is
// single-threaded cooperative" rule of spec.md §5. The dispatcher thread is
// the only caller.
func (s *Session) Dispatch(command string, req []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.methodLookup[command]
	if !ok {
		return nil, errs.Newf(errs.InvalidArgument, "server: unknown command %q", command)
	}
	s.lastActive = time.Now()
	return h(req)
}

// Manager tracks live sessions, mirroring SessionManager's
// sessions map[string]*smItem, keyed on a uuid instead of the teacher's raw
// remote-address string (see DESIGN.md).
type Manager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	metrics  *metrics.Recorder
}

// NewManager constructs an empty session manager.
func NewManager(rec *metrics.Recorder) *Manager {
	return &Manager{sessions: map[uuid.UUID]*Session{}, metrics: rec}
}

// Add registers a new session.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// Get looks up a session by id.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops a session, e.g. on transport close (spec.md §4.7
// "Cancellation").
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// ServeConn runs the dispatcher loop for one connection: it decodes a
// framed (command, payload) request, dispatches it, and writes back the
// framed response, exactly the request/response contract of spec.md §4.7.
// This is the "background dispatcher thread" of spec.md §5; the function
// blocks until a receive, envelope decode, dispatch or send fails, then
// closes conn and returns, so callers run it in its own goroutine per
// accepted connection. rec may be nil when metrics aren't being collected
// (e.g. in tests).
func ServeConn(conn *transport.Conn, s *Session, rec *metrics.Recorder) {
	defer conn.Close()
	for {
		req, err := conn.Recv()
		if err != nil {
			log.Printf("server: session %s: connection closed: %v", s.ID, err)
			return
		}
		command, payload, err := decodeEnvelope(req)
		if err != nil {
			log.Printf("server: session %s: malformed envelope: %v", s.ID, err)
			return
		}
		resp, err := s.Dispatch(command, payload)
		if err != nil {
			log.Printf("server: session %s: command %q failed: %v", s.ID, command, err)
			return
		}
		if rec != nil {
			rec.RecordBytes(s.CurrentDay(), len(resp))
		}
		if err := conn.Send(resp); err != nil {
			log.Printf("server: session %s: send failed: %v", s.ID, err)
			return
		}
	}
}

// decodeEnvelope splits a request into its command name and payload: a
// 1-byte command-name length, the command name, then the remaining bytes as
// payload.
func decodeEnvelope(req []byte) (string, []byte, error) {
	if len(req) < 1 {
		return "", nil, errs.New(errs.InvalidArgument, "server: empty request envelope")
	}
	n := int(req[0])
	if len(req) < 1+n {
		return "", nil, errs.New(errs.InvalidArgument, "server: truncated command name")
	}
	return string(req[1 : 1+n]), req[1+n:], nil
}

// EncodeEnvelope is the client-side counterpart to decodeEnvelope.
func EncodeEnvelope(command string, payload []byte) []byte {
	out := make([]byte, 0, 1+len(command)+len(payload))
	out = append(out, byte(len(command)))
	out = append(out, command...)
	out = append(out, payload...)
	return out
}
