package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/hammer/pkg/driver"
	"github.com/entrhq/hammer/pkg/session"
)

// executeAction evaluates a script in the page.
type executeAction struct {
	d *Dispatcher
}

func (a *executeAction) Name() string {
	return "execute"
}

func (a *executeAction) Description() string {
	return "Evaluate script in the page and return its JSON-serializable result."
}

func (a *executeAction) Execute(ctx context.Context, req *Request) (Result, error) {
	check := func() error {
		if req.Script == "" {
			return invalid("script is required")
		}
		return nil
	}

	return a.d.withSession(ctx, req, check, func(s *session.Session, p driver.Page) (Result, error) {
		value, err := p.Evaluate(ctx, req.Script)
		if err != nil {
			return nil, err
		}
		// NaN and Infinity survive evaluation but not encoding
		if _, err := json.Marshal(value); err != nil {
			return nil, fmt.Errorf("script result cannot be returned as JSON: %w", err)
		}

		result := newResult(a.Name(), "⚙️ Script executed successfully")
		result["result"] = value
		return result, nil
	})
}

// getContentAction returns the serialized DOM.
type getContentAction struct {
	d *Dispatcher
}

func (a *getContentAction) Name() string {
	return "get_content"
}

func (a *getContentAction) Description() string {
	return "Return the page's full HTML together with its url and title."
}

func (a *getContentAction) Execute(ctx context.Context, req *Request) (Result, error) {
	return a.d.withSession(ctx, req, nil, func(s *session.Session, p driver.Page) (Result, error) {
		content, err := p.Content(ctx)
		if err != nil {
			return nil, err
		}
		title, err := p.Title(ctx)
		if err != nil {
			return nil, err
		}

		result := newResult(a.Name(), "📄 Content retrieved successfully")
		result["content"] = content
		result["url"] = p.URL()
		result["title"] = title
		return result, nil
	})
}

// extractAction returns the page HTML stripped down to semantic structure.
type extractAction struct {
	d *Dispatcher
}

func (a *extractAction) Name() string {
	return "extract"
}

func (a *extractAction) Description() string {
	return "Return the page HTML without scripts or styles, plus title and meta description, capped at max_length characters."
}

func (a *extractAction) Execute(ctx context.Context, req *Request) (Result, error) {
	check := func() error {
		if req.MaxLength < 0 {
			return invalid("max_length cannot be negative")
		}
		return nil
	}

	return a.d.withSession(ctx, req, check, func(s *session.Session, p driver.Page) (Result, error) {
		maxLength := req.MaxLength
		if maxLength == 0 {
			maxLength = a.d.opts.MaxExtractLength
		}

		raw, err := p.Content(ctx)
		if err != nil {
			return nil, err
		}
		extracted, err := extractHTML(raw, maxLength)
		if err != nil {
			return nil, err
		}

		result := newResult(a.Name(), "📄 Content extracted successfully")
		result["content"] = extracted.HTML
		result["title"] = extracted.Title
		result["description"] = extracted.Description
		result["truncated"] = extracted.Truncated
		result["url"] = p.URL()
		return result, nil
	})
}
