package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/hammer/pkg/driver"
	"github.com/entrhq/hammer/pkg/logging"
)

// Options configures a Registry.
type Options struct {
	// Profile is the device profile applied to every new context
	Profile driver.Profile

	// Stealth attaches driver.StealthScript to every new page before its first navigation
	Stealth bool

	// MaxSessions caps open sessions, counting creations in flight; 0 means unlimited
	MaxSessions int

	// IdleTimeout is how long a session may go unused before ReapIdle closes it; 0 disables reaping
	IdleTimeout time.Duration

	// CloseTimeout bounds how long a close waits for an in-flight command
	// before closing the page underneath it; defaults to DefaultCloseTimeout
	CloseTimeout time.Duration
}

// DefaultCloseTimeout is used when Options.CloseTimeout is not set.
const DefaultCloseTimeout = 30 * time.Second

// Registry is the concurrency-safe map from session identifier to Session.
type Registry struct {
	driver driver.Driver
	opts   Options
	logger *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	pending  int
	closed   bool
}

// NewRegistry creates a registry that opens contexts on d.
func NewRegistry(d driver.Driver, opts Options) *Registry {
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}
	return &Registry{
		driver:   d,
		opts:     opts,
		logger:   logging.NewLogger("session"),
		sessions: make(map[string]*Session),
	}
}

// Create opens a context and a page, attaches the stealth script, and
// registers the result under a fresh identifier. On any failure the context
// is released and nothing is registered.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	if err := r.reserve(); err != nil {
		return nil, err
	}
	defer r.unreserve()

	bc, err := r.driver.NewContext(ctx, r.opts.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := r.openPage(ctx, bc)
	if err != nil {
		if cerr := bc.Close(); cerr != nil {
			r.logger.Warnf("Failed to release context after setup error: %v", cerr)
		}
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		s := newSession("", bc, page, time.Now())
		if cerr := s.close(ctx); cerr != nil {
			r.logger.Warnf("Failed to release session created during shutdown: %v", cerr)
		}
		return nil, ErrRegistryClosed
	}

	id := uuid.NewString()
	for _, exists := r.sessions[id]; exists; _, exists = r.sessions[id] {
		id = uuid.NewString()
	}
	s := newSession(id, bc, page, time.Now())
	r.sessions[id] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.Infow("Session created", "session_id", id, "active_sessions", count)
	return s, nil
}

func (r *Registry) openPage(ctx context.Context, bc driver.BrowserContext) (driver.Page, error) {
	page, err := bc.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if r.opts.Stealth {
		if err := page.AddInitScript(driver.StealthScript); err != nil {
			if cerr := page.Close(); cerr != nil {
				r.logger.Warnf("Failed to close page after init script error: %v", cerr)
			}
			return nil, fmt.Errorf("failed to attach stealth script: %w", err)
		}
	}
	return page, nil
}

func (r *Registry) reserve() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if r.opts.MaxSessions > 0 && len(r.sessions)+r.pending >= r.opts.MaxSessions {
		return fmt.Errorf("%w (%d)", ErrSessionLimit, r.opts.MaxSessions)
	}
	r.pending++
	return nil
}

func (r *Registry) unreserve() {
	r.mu.Lock()
	r.pending--
	r.mu.Unlock()
}

// Get returns the registered session for id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Close removes id from the registry and releases its page and context,
// waiting for an in-flight command until ctx ends or CloseTimeout passes.
// It reports whether the session existed. Cleanup errors are logged, never
// returned, and the entry is removed regardless.
func (r *Registry) Close(ctx context.Context, id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.release(ctx, s, "closed")
	return true
}

func (r *Registry) release(ctx context.Context, s *Session, reason string) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.CloseTimeout)
	defer cancel()

	log := r.logger.With("session_id", s.ID)
	if err := s.close(ctx); err != nil {
		log.Warnf("Session cleanup failed: %v", err)
	}
	log.Infof("Session %s", reason)
}

// CloseAll closes every registered session and refuses further creates.
// Sessions still busy when ctx ends have their pages closed underneath the
// running command, and CloseAll stops waiting on them. It returns the number
// of sessions closed.
func (r *Registry) CloseAll(ctx context.Context) int {
	r.mu.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			r.release(ctx, s, "closed on shutdown")
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warnf("Session cleanup still running at shutdown deadline")
	}
	return len(sessions)
}

// List returns a snapshot of every session, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ReapIdle closes sessions unused since before now minus the idle timeout
// and returns how many were closed. ctx bounds the wait for busy sessions.
func (r *Registry) ReapIdle(ctx context.Context, now time.Time) int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if now.Sub(s.LastUsedAt()) > r.opts.IdleTimeout {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		r.release(ctx, s, "reaped after idle timeout")
	}
	return len(idle)
}

// RunReaper calls ReapIdle every interval until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	if r.opts.IdleTimeout <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := r.ReapIdle(ctx, now); n > 0 {
				r.logger.Infof("Reaped %d idle sessions", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
