package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// urlLookupTimeout bounds the Location query behind Page.URL, which has no caller context.
const urlLookupTimeout = 5 * time.Second

// ChromedpDriver drives a locally spawned Chromium over the DevTools protocol.
// Every BrowserContext maps onto a CDP browser context created with
// chromedp.WithNewBrowserContext, which gives it separate cookies and storage.
type ChromedpDriver struct {
	mu            sync.RWMutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	running       bool
}

// StartChromedp launches Chromium and waits until the browser target is attached.
func StartChromedp(opts LaunchOptions) (*ChromedpDriver, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	for _, arg := range opts.Args() {
		name, value := splitFlag(arg)
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}
	if opts.ExecutablePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecutablePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run on a fresh context starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &ChromedpDriver{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		running:       true,
	}, nil
}

// splitFlag turns "--name=value" into a chromedp flag pair.
func splitFlag(arg string) (string, interface{}) {
	arg = strings.TrimLeft(arg, "-")
	if name, value, ok := strings.Cut(arg, "="); ok {
		return name, value
	}
	return arg, true
}

// Name returns the backend name.
func (d *ChromedpDriver) Name() string {
	return "chromedp"
}

// Running reports whether the browser context is still alive.
func (d *ChromedpDriver) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running && d.browserCtx.Err() == nil
}

// NewContext returns a context whose single page will live in its own CDP browser context.
func (d *ChromedpDriver) NewContext(ctx context.Context, profile Profile) (BrowserContext, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.running || d.browserCtx.Err() != nil {
		return nil, ErrNotRunning
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &chromedpContext{parent: d.browserCtx, profile: profile}, nil
}

// Shutdown closes the browser gracefully, then kills the allocator.
func (d *ChromedpDriver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false

	err := chromedp.Cancel(d.browserCtx)
	d.browserCancel()
	d.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

type chromedpContext struct {
	parent  context.Context
	profile Profile

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func (c *chromedpContext) NewPage(ctx context.Context) (Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("context is closed")
	}
	if c.cancel != nil {
		return nil, errors.New("context already has a page")
	}

	tabCtx, cancel := chromedp.NewContext(c.parent, chromedp.WithNewBrowserContext())

	setup := []chromedp.Action{
		chromedp.EmulateViewport(int64(c.profile.Viewport.Width), int64(c.profile.Viewport.Height)),
	}
	if c.profile.UserAgent != "" {
		setup = append(setup, emulation.SetUserAgentOverride(c.profile.UserAgent))
	}

	if err := ctx.Err(); err != nil {
		cancel()
		return nil, err
	}
	// The first Run allocates the target; it must use tabCtx itself so the
	// tab is not torn down when a shorter-lived caller context ends.
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	c.cancel = cancel
	return &chromedpPage{ctx: tabCtx, url: "about:blank"}, nil
}

// Close disposes the CDP browser context and everything in it.
func (c *chromedpContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

type chromedpPage struct {
	ctx context.Context

	mu  sync.Mutex
	url string
}

// run executes actions on the page target, bounded by the caller's context
// and, when positive, by timeout.
func (p *chromedpPage) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, stop := mergeCancel(p.ctx, ctx)
	defer stop()

	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (p *chromedpPage) AddInitScript(script string) error {
	return p.run(context.Background(), "add init script", 0, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
}

// Goto navigates and waits for the new document's networkIdle lifecycle
// event, the same condition playwright's WaitUntilStateNetworkidle uses.
func (p *chromedpPage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	var location string
	err := p.run(ctx, "navigation failed", timeout,
		navigateUntilIdle(url),
		chromedp.Location(&location),
	)
	if err != nil {
		return err
	}
	p.setURL(location)
	return nil
}

func navigateUntilIdle(url string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := cdppage.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return err
		}

		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var mu sync.Mutex
		idle := make(map[cdp.LoaderID]bool)
		seen := make(chan struct{}, 1)
		chromedp.ListenTarget(listenCtx, func(ev any) {
			e, ok := ev.(*cdppage.EventLifecycleEvent)
			if !ok || e.Name != "networkIdle" {
				return
			}
			mu.Lock()
			idle[e.LoaderID] = true
			mu.Unlock()
			select {
			case seen <- struct{}{}:
			default:
			}
		})

		_, loaderID, errorText, err := cdppage.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return errors.New(errorText)
		}
		// Same-document navigations have no loader and no lifecycle events
		if loaderID == "" {
			return nil
		}

		for {
			mu.Lock()
			done := idle[loaderID]
			mu.Unlock()
			if done {
				return nil
			}
			select {
			case <-seen:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

func (p *chromedpPage) setURL(u string) {
	p.mu.Lock()
	p.url = u
	p.mu.Unlock()
}

// URL queries the live location and falls back to the last one seen.
func (p *chromedpPage) URL() string {
	var location string
	if err := p.run(context.Background(), "location", urlLookupTimeout, chromedp.Location(&location)); err == nil {
		p.setURL(location)
		return location
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *chromedpPage) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, "title", 0, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (p *chromedpPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, "click failed", timeout, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromedpPage) Fill(ctx context.Context, selector, text string, timeout time.Duration) error {
	return p.run(ctx, "fill failed", timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, text, chromedp.ByQuery),
	)
}

func (p *chromedpPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, "wait failed", timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromedpPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		// quality 100 keeps the capture as PNG
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := p.run(ctx, "screenshot failed", 0, action); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromedpPage) Evaluate(ctx context.Context, script string) (any, error) {
	var result any
	err := p.run(ctx, "script execution failed", 0, chromedp.Evaluate(script, &result, awaitPromise))
	if errors.Is(err, chromedp.ErrJSUndefined) || errors.Is(err, chromedp.ErrJSNull) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// awaitPromise makes async scripts resolve before returning, as playwright does.
func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (p *chromedpPage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, "content", 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Close closes the tab; the owning context disposes the CDP browser context.
func (p *chromedpPage) Close() error {
	err := chromedp.Cancel(p.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// mergeCancel derives a context from target that is also canceled when caller is.
func mergeCancel(target, caller context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(target)
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
