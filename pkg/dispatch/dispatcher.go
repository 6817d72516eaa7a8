// Package dispatch maps action requests onto driver operations against a
// session, holding that session's execution lock for the whole operation.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/entrhq/hammer/pkg/driver"
	"github.com/entrhq/hammer/pkg/logging"
	"github.com/entrhq/hammer/pkg/session"
)

// Action is one entry in the dispatch table.
type Action interface {
	Name() string
	Description() string
	Execute(ctx context.Context, req *Request) (Result, error)
}

// Options holds action timing and limits.
type Options struct {
	NavigateTimeout    time.Duration
	ActionTimeout      time.Duration
	DefaultSettleDelay time.Duration
	MaxSettleDelay     time.Duration
	MaxExtractLength   int

	// Policy restricts navigate targets; nil allows everything
	Policy *URLPolicy
}

// Dispatcher routes requests to actions by name.
type Dispatcher struct {
	registry *session.Registry
	opts     Options
	actions  map[string]Action
	logger   *logging.Logger
}

// ActionInfo describes a registered action.
type ActionInfo struct {
	Name        string
	Description string
}

// DefaultMaxExtractLength caps extract output when neither the request nor Options set a limit.
const DefaultMaxExtractLength = 10000

// New creates a dispatcher with every built-in action registered.
func New(registry *session.Registry, opts Options) *Dispatcher {
	if opts.MaxExtractLength <= 0 {
		opts.MaxExtractLength = DefaultMaxExtractLength
	}

	d := &Dispatcher{
		registry: registry,
		opts:     opts,
		actions:  make(map[string]Action),
		logger:   logging.NewLogger("dispatch"),
	}

	d.Register(&createAction{d: d})
	d.Register(&navigateAction{d: d})
	d.Register(&clickAction{d: d})
	d.Register(&typeAction{d: d})
	d.Register(&screenshotAction{d: d})
	d.Register(&executeAction{d: d})
	d.Register(&getContentAction{d: d})
	d.Register(&closeAction{d: d})
	d.Register(&waitAction{d: d})
	d.Register(&extractAction{d: d})
	return d
}

// Register adds a to the dispatch table, replacing any action with the same name.
func (d *Dispatcher) Register(a Action) {
	d.actions[a.Name()] = a
}

// Actions lists the registered actions sorted by name.
func (d *Dispatcher) Actions() []ActionInfo {
	infos := make([]ActionInfo, 0, len(d.actions))
	for _, a := range d.actions {
		infos = append(infos, ActionInfo{Name: a.Name(), Description: a.Description()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Dispatch executes req. Errors are one of the package sentinels, a
// session sentinel, or an *AutomationError.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (Result, error) {
	a, ok := d.actions[req.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
	}

	log := d.logger.With("action", req.Action)
	if req.SessionID != "" {
		log = log.With("session_id", req.SessionID)
	}

	start := time.Now()
	result, err := a.Execute(ctx, req)
	if err != nil {
		log.Warnf("Action failed after %s: %v", time.Since(start), err)
		return nil, err
	}
	log.Debugf("Action completed in %s", time.Since(start))
	return result, nil
}

// withSession looks up the request's session, runs check, and then runs fn
// under the session's execution lock. check sees only the request, so a
// malformed request fails without waiting behind a busy session. Errors
// returned by fn are wrapped as AutomationError unless they are already
// request errors.
func (d *Dispatcher) withSession(ctx context.Context, req *Request, check func() error, fn func(s *session.Session, p driver.Page) (Result, error)) (Result, error) {
	s, err := d.registry.Get(req.SessionID)
	if err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(); err != nil {
			return nil, err
		}
	}

	var result Result
	err = s.Do(ctx, func(p driver.Page) error {
		var fnErr error
		result, fnErr = fn(s, p)
		if fnErr != nil && !isRequestError(fnErr) {
			return &AutomationError{Action: req.Action, Err: fnErr}
		}
		return fnErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isRequestError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrURLNotAllowed)
}

// settleDelay resolves a wait_time in milliseconds to a delay within [0, MaxSettleDelay].
func (d *Dispatcher) settleDelay(waitTime *int) time.Duration {
	delay := d.opts.DefaultSettleDelay
	if waitTime != nil {
		delay = millis(*waitTime)
	}
	if delay < 0 {
		delay = 0
	}
	if d.opts.MaxSettleDelay > 0 && delay > d.opts.MaxSettleDelay {
		delay = d.opts.MaxSettleDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
