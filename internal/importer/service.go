package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spendlog/spendlog/internal/category"
	"github.com/spendlog/spendlog/internal/model"
	"github.com/spendlog/spendlog/internal/parser"
	"github.com/spendlog/spendlog/internal/store"
)

// RunTimeout is the maximum duration for a single import run.
var RunTimeout = 10 * time.Minute

// SessionTTL is how long a finished session stays queryable before it is
// dropped from the registry.
var SessionTTL = 15 * time.Minute

// progressNotifyInterval is how many rows pass between listener updates.
// The final row always notifies.
var progressNotifyInterval = 25

// maxParseErrorSamples caps the parse diagnostics shown in a preview; the
// remainder is reported as a count.
const maxParseErrorSamples = 20

// Service owns import sessions: parse previews, run lifecycle, progress
// fan-out and results. One session moves Preview -> Importing ->
// Complete, or straight to Failed on a fatal error.
type Service struct {
	store  store.Store
	engine *Engine
	log    *slog.Logger

	mu        sync.RWMutex
	sessions  map[string]*session
	importing map[string]string // userID -> sessionID of the active run
}

type session struct {
	ID       string
	UserID   string
	FileName string

	State    State
	Options  Options
	Parsed   *parser.ParsedData
	Mapping  map[string]category.Mapping
	Existing []model.Category

	Progress Progress
	Result   *Result
	Done     chan struct{}

	listenerMu sync.Mutex
	listeners  []chan Progress
}

// NewService creates the import session service.
func NewService(s store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     s,
		engine:    NewEngine(s, log),
		log:       log,
		sessions:  make(map[string]*session),
		importing: make(map[string]string),
	}
}

// PreviewResponse is what the UI renders while the user reviews the
// mapping and options before committing an import.
type PreviewResponse struct {
	SessionID      string                      `json:"sessionId"`
	FileName       string                      `json:"fileName"`
	TotalRows      int                         `json:"totalRows"`
	CategoryRows   int                         `json:"categoryRows"`
	Mapping        map[string]category.Mapping `json:"mapping"`
	ParseErrors    []parser.RowError           `json:"parseErrors"`
	MoreParseErrs  int                         `json:"moreParseErrors,omitempty"`
	UnmatchedCount int                         `json:"unmatchedCount"`
}

// Preview parses an uploaded file, matches its labels against the user's
// categories, and opens a session in the Preview state.
//
// Fatal conditions (unsupported extension, unreadable file, missing
// expenses sheet, store unreachable) are returned as an error and no
// session is created.
func (s *Service) Preview(ctx context.Context, userID, fileName string, data []byte) (*PreviewResponse, error) {
	kind, err := parser.DetectKind(fileName)
	if err != nil {
		return nil, Fatal("unsupported file", err)
	}

	parsed, err := parser.Parse(data, kind)
	if err != nil {
		return nil, Fatal("parse file", err)
	}

	existing, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, Fatal("load categories", err)
	}

	mapping := category.Match(category.Labels(parsed.Expenses), existing)

	sess := &session{
		ID:       uuid.New().String(),
		UserID:   userID,
		FileName: fileName,
		State:    StatePreview,
		Parsed:   parsed,
		Mapping:  mapping,
		Existing: existing,
		Done:     make(chan struct{}),
	}
	sess.Progress = Progress{
		SessionID: sess.ID,
		State:     StatePreview,
		Total:     len(parsed.Expenses),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	s.expire(sess.ID, SessionTTL)

	unmatched := 0
	for _, m := range mapping {
		if m.Matched == nil {
			unmatched++
		}
	}

	resp := &PreviewResponse{
		SessionID:      sess.ID,
		FileName:       fileName,
		TotalRows:      len(parsed.Expenses),
		CategoryRows:   len(parsed.Categories),
		Mapping:        mapping,
		ParseErrors:    parsed.Errors,
		UnmatchedCount: unmatched,
	}
	if len(resp.ParseErrors) > maxParseErrorSamples {
		resp.MoreParseErrs = len(resp.ParseErrors) - maxParseErrorSamples
		resp.ParseErrors = resp.ParseErrors[:maxParseErrorSamples]
	}

	s.log.Info("import preview created",
		"session_id", sess.ID,
		"user_id", userID,
		"file", fileName,
		"rows", resp.TotalRows,
		"parse_errors", len(parsed.Errors),
	)

	return resp, nil
}

// Start freezes the options and launches the run as a detached background
// task. The initiating request may go away; completion is still delivered
// through the progress listeners and the final result.
//
// Exactly one run per user may be active: starting a second one fails.
func (s *Service) Start(ctx context.Context, userID, sessionID string, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if sess.State != StatePreview {
		s.mu.Unlock()
		return fmt.Errorf("%w: session %s is %s, options can only be confirmed in preview", ErrWrongState, sessionID, sess.State)
	}
	if active, busy := s.importing[userID]; busy {
		s.mu.Unlock()
		return fmt.Errorf("%w (session %s)", ErrRunActive, active)
	}
	sess.State = StateImporting
	sess.Options = opts
	sess.Progress.State = StateImporting
	s.importing[userID] = sessionID
	s.mu.Unlock()

	// The store must be reachable before any row is attempted; otherwise
	// the session fails without ever entering the row loop.
	if err := s.store.Ping(ctx); err != nil {
		s.finish(sess, nil, Fatal("storage unreachable", err))
		return Fatal("storage unreachable", err)
	}

	// Detached from the request context on purpose.
	runCtx, cancel := context.WithTimeout(context.Background(), RunTimeout)
	go func() {
		defer cancel()
		s.run(runCtx, sess)
	}()

	return nil
}

// run executes the engine and publishes the outcome.
func (s *Service) run(ctx context.Context, sess *session) {
	parsed := sess.Parsed
	total := len(parsed.Expenses)

	onProgress := func(current, _ int, message string) {
		sess.listenerMu.Lock()
		sess.Progress.Current = current
		sess.Progress.Message = message
		sess.listenerMu.Unlock()
		if current%progressNotifyInterval == 0 || current == total {
			s.notify(sess)
		}
	}

	result, err := s.engine.Run(ctx, sess.UserID, parsed.Expenses, parsed.Categories, sess.Existing, sess.Options, onProgress)
	s.finish(sess, result, err)
}

// finish moves a session to its terminal state and releases the per-user
// run slot. Parsed data is discarded; the result alone survives.
func (s *Service) finish(sess *session, result *Result, err error) {
	s.mu.Lock()
	if err != nil {
		sess.State = StateFailed
		s.log.Error("import run failed", "session_id", sess.ID, "error", err)
	} else {
		sess.State = StateComplete
		sess.Result = result
	}
	sess.Parsed = nil
	delete(s.importing, sess.UserID)
	s.mu.Unlock()

	sess.listenerMu.Lock()
	if err != nil {
		sess.Progress.State = StateFailed
		sess.Progress.Error = err.Error()
	} else {
		sess.Progress.State = StateComplete
		sess.Progress.Current = result.Total()
	}
	sess.listenerMu.Unlock()

	s.notify(sess)
	s.closeListeners(sess)
	close(sess.Done)
	s.expire(sess.ID, SessionTTL)
}

// Discard drops a session that is still in Preview (the user cancelled).
func (s *Service) Discard(userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if sess.State != StatePreview {
		return fmt.Errorf("%w: session %s is %s and cannot be discarded", ErrWrongState, sessionID, sess.State)
	}
	delete(s.sessions, sessionID)
	return nil
}

// SubscribeProgress returns a channel of progress events for a session.
// The current progress is delivered immediately; the channel closes when
// the run reaches a terminal state.
func (s *Service) SubscribeProgress(sessionID string) (<-chan Progress, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	ch := make(chan Progress, 16)

	sess.listenerMu.Lock()
	select {
	case ch <- sess.Progress:
	default:
	}
	// A terminal session delivers its final progress and closes right
	// away; otherwise the listener rides along until the run finishes.
	select {
	case <-sess.Done:
		close(ch)
	default:
		sess.listeners = append(sess.listeners, ch)
	}
	sess.listenerMu.Unlock()

	return ch, nil
}

// Result blocks until the session's run completes and returns its
// immutable result. A fatally failed session returns an error.
func (s *Service) Result(ctx context.Context, sessionID string) (*Result, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	select {
	case <-sess.Done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess.State == StateFailed {
		return nil, fmt.Errorf("import failed: %s", sess.Progress.Error)
	}
	return sess.Result, nil
}

// Errors returns the accumulated import errors of a completed session,
// in row-number order, for the downloadable report.
func (s *Service) Errors(sessionID string) ([]ImportError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if sess.State != StateComplete {
		return nil, fmt.Errorf("%w: session %s has no result yet", ErrWrongState, sessionID)
	}
	return sess.Result.Errors, nil
}

// notify fans the session's current progress out to all listeners.
// Slow listeners miss updates rather than blocking the run.
func (s *Service) notify(sess *session) {
	sess.listenerMu.Lock()
	defer sess.listenerMu.Unlock()

	for _, ch := range sess.listeners {
		select {
		case ch <- sess.Progress:
		default:
		}
	}
}

func (s *Service) closeListeners(sess *session) {
	sess.listenerMu.Lock()
	defer sess.listenerMu.Unlock()

	for _, ch := range sess.listeners {
		close(ch)
	}
	sess.listeners = nil
}

// expire removes a session from the registry after the delay.
func (s *Service) expire(sessionID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		if sess, ok := s.sessions[sessionID]; ok && sess.State != StateImporting {
			delete(s.sessions, sessionID)
		}
		s.mu.Unlock()
	})
}
