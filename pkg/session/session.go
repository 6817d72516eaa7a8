// Package session tracks isolated browsing sessions on top of a shared driver.
//
// A Session pairs one driver.BrowserContext with exactly one driver.Page.
// Commands against a session are serialized through Session.Do; commands
// against different sessions run fully in parallel.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/hammer/pkg/driver"
)

// Session is one isolated browsing context plus its single page.
type Session struct {
	// ID is the opaque identifier handed to clients
	ID string

	// CreatedAt is set once when the session is registered
	CreatedAt time.Time

	context driver.BrowserContext
	page    driver.Page

	// lock is the execution lock; a buffered channel so waiting honors ctx
	lock   chan struct{}
	closed atomic.Bool

	meta       sync.Mutex
	lastUsedAt time.Time
	currentURL string
}

// Info is a point-in-time view of a session.
type Info struct {
	ID         string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	URL        string    `json:"url"`
}

func newSession(id string, bc driver.BrowserContext, page driver.Page, now time.Time) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  now,
		context:    bc,
		page:       page,
		lock:       make(chan struct{}, 1),
		lastUsedAt: now,
		currentURL: "about:blank",
	}
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	default:
	}
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	<-s.lock
}

// Do runs fn with exclusive access to the session's page. If the session was
// closed while the caller waited for the lock, fn is not run and
// ErrSessionNotFound is returned.
func (s *Session) Do(ctx context.Context, fn func(driver.Page) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if s.closed.Load() {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, s.ID)
	}

	s.Touch()
	defer s.Touch()
	return fn(s.page)
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.meta.Lock()
	s.lastUsedAt = time.Now()
	s.meta.Unlock()
}

// SetURL records the page URL last observed by a command.
func (s *Session) SetURL(u string) {
	s.meta.Lock()
	s.currentURL = u
	s.meta.Unlock()
}

// LastUsedAt returns the time of the most recent command.
func (s *Session) LastUsedAt() time.Time {
	s.meta.Lock()
	defer s.meta.Unlock()
	return s.lastUsedAt
}

// Info returns a snapshot of the session's bookkeeping fields.
func (s *Session) Info() Info {
	s.meta.Lock()
	defer s.meta.Unlock()
	return Info{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.lastUsedAt,
		URL:        s.currentURL,
	}
}

// close waits for any in-flight command until ctx ends, then releases the
// page and the context. If the command is still running when ctx ends, the
// page is closed underneath it. Both closes are attempted; their errors are
// returned joined.
func (s *Session) close(ctx context.Context) error {
	var errs []error
	if err := s.acquire(ctx); err != nil {
		errs = append(errs, fmt.Errorf("in-flight command did not finish, forcing close: %w", err))
	} else {
		defer s.release()
	}

	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := s.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close page: %w", err))
	}
	if err := s.context.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close context: %w", err))
	}
	return errors.Join(errs...)
}
