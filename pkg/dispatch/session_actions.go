package dispatch

import (
	"context"
	"errors"

	"github.com/entrhq/hammer/pkg/session"
)

// createAction opens a new session.
type createAction struct {
	d *Dispatcher
}

func (a *createAction) Name() string {
	return "create"
}

func (a *createAction) Description() string {
	return "Open a new isolated browser session and return its session_id."
}

func (a *createAction) Execute(ctx context.Context, req *Request) (Result, error) {
	s, err := a.d.registry.Create(ctx)
	if err != nil {
		if errors.Is(err, session.ErrSessionLimit) || errors.Is(err, session.ErrRegistryClosed) {
			return nil, err
		}
		return nil, &AutomationError{Action: a.Name(), Err: err}
	}

	result := newResult(a.Name(), "✅ Session created successfully")
	result["session_id"] = s.ID
	return result, nil
}

// closeAction releases a session. Closing an unknown id succeeds.
type closeAction struct {
	d *Dispatcher
}

func (a *closeAction) Name() string {
	return "close"
}

func (a *closeAction) Description() string {
	return "Close a session and release its browser context. Closing an unknown session is a no-op."
}

func (a *closeAction) Execute(ctx context.Context, req *Request) (Result, error) {
	if req.SessionID != "" && !a.d.registry.Close(ctx, req.SessionID) {
		a.d.logger.Debugf("Close for unknown session %s ignored", req.SessionID)
	}

	result := newResult(a.Name(), "✅ Session closed successfully")
	result["session_id"] = req.SessionID
	return result, nil
}
