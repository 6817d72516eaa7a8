package dispatch

import (
	"context"
	"encoding/base64"

	"github.com/entrhq/hammer/pkg/driver"
	"github.com/entrhq/hammer/pkg/session"
)

// navigateAction loads a URL and waits for the network to go idle.
type navigateAction struct {
	d *Dispatcher
}

func (a *navigateAction) Name() string {
	return "navigate"
}

func (a *navigateAction) Description() string {
	return "Load url in the session's page and wait until the network is idle. Returns the final url and title."
}

func (a *navigateAction) Execute(ctx context.Context, req *Request) (Result, error) {
	check := func() error {
		if req.URL == "" {
			return invalid("url is required")
		}
		return a.d.opts.Policy.Check(req.URL)
	}

	return a.d.withSession(ctx, req, check, func(s *session.Session, p driver.Page) (Result, error) {
		if err := p.Goto(ctx, req.URL, a.d.opts.NavigateTimeout); err != nil {
			return nil, err
		}

		title, err := p.Title(ctx)
		if err != nil {
			return nil, err
		}
		url := p.URL()
		s.SetURL(url)

		result := newResult(a.Name(), "✅ Navigation successful")
		result["url"] = url
		result["title"] = title
		return result, nil
	})
}

func requireSelector(req *Request) func() error {
	return func() error {
		if req.Selector == "" {
			return invalid("selector is required")
		}
		return nil
	}
}

// clickAction clicks an element, then pauses for the settle delay.
type clickAction struct {
	d *Dispatcher
}

func (a *clickAction) Name() string {
	return "click"
}

func (a *clickAction) Description() string {
	return "Click the element matching selector, then pause for wait_time milliseconds (default 1000)."
}

func (a *clickAction) Execute(ctx context.Context, req *Request) (Result, error) {
	return a.d.withSession(ctx, req, requireSelector(req), func(s *session.Session, p driver.Page) (Result, error) {
		if err := p.Click(ctx, req.Selector, a.d.opts.ActionTimeout); err != nil {
			return nil, err
		}
		// A plain pause; the page may or may not have settled afterwards
		if err := sleepContext(ctx, a.d.settleDelay(req.WaitTime)); err != nil {
			return nil, err
		}
		s.SetURL(p.URL())

		result := newResult(a.Name(), "✅ Click successful")
		result["selector"] = req.Selector
		return result, nil
	})
}

// typeAction replaces an input's value.
type typeAction struct {
	d *Dispatcher
}

func (a *typeAction) Name() string {
	return "type"
}

func (a *typeAction) Description() string {
	return "Replace the value of the element matching selector with text."
}

func (a *typeAction) Execute(ctx context.Context, req *Request) (Result, error) {
	check := func() error {
		if err := requireSelector(req)(); err != nil {
			return err
		}
		if req.Text == nil {
			return invalid("text is required")
		}
		return nil
	}

	return a.d.withSession(ctx, req, check, func(s *session.Session, p driver.Page) (Result, error) {
		if err := p.Fill(ctx, req.Selector, *req.Text, a.d.opts.ActionTimeout); err != nil {
			return nil, err
		}

		result := newResult(a.Name(), "✅ Text input successful")
		result["selector"] = req.Selector
		return result, nil
	})
}

// waitAction blocks until a selector is visible.
type waitAction struct {
	d *Dispatcher
}

func (a *waitAction) Name() string {
	return "wait"
}

func (a *waitAction) Description() string {
	return "Wait until the element matching selector is visible, for at most timeout_ms milliseconds."
}

func (a *waitAction) Execute(ctx context.Context, req *Request) (Result, error) {
	return a.d.withSession(ctx, req, requireSelector(req), func(s *session.Session, p driver.Page) (Result, error) {
		timeout := a.d.opts.ActionTimeout
		if req.TimeoutMS != nil && *req.TimeoutMS > 0 {
			timeout = millis(*req.TimeoutMS)
		}
		if err := p.WaitVisible(ctx, req.Selector, timeout); err != nil {
			return nil, err
		}

		result := newResult(a.Name(), "✅ Element is visible")
		result["selector"] = req.Selector
		return result, nil
	})
}

// screenshotAction captures the page as base64 PNG.
type screenshotAction struct {
	d *Dispatcher
}

func (a *screenshotAction) Name() string {
	return "screenshot"
}

func (a *screenshotAction) Description() string {
	return "Capture the viewport, or the full scrollable page when full_page is true, as a base64 PNG."
}

func (a *screenshotAction) Execute(ctx context.Context, req *Request) (Result, error) {
	return a.d.withSession(ctx, req, nil, func(s *session.Session, p driver.Page) (Result, error) {
		buf, err := p.Screenshot(ctx, req.FullPage)
		if err != nil {
			return nil, err
		}

		result := newResult(a.Name(), "📸 Screenshot captured")
		result["screenshot"] = base64.StdEncoding.EncodeToString(buf)
		return result, nil
	})
}
