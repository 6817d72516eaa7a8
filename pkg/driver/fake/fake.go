// Package fake provides an in-memory driver.Driver for tests.
//
// The fake keeps a cookie jar per context, remembers filled values per page,
// renders them back through Content, and counts overlapping operations on a
// single page so tests can assert that callers serialize page access.
package fake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/hammer/pkg/driver"
)

// TimeoutHost makes Goto block until its timeout or the caller's context ends.
const TimeoutHost = "timeout.test"

// ErrTargetClosed is returned by operations on a closed page or context.
var ErrTargetClosed = errors.New("target closed")

// Driver is a configurable fake. Exported fields must be set before use.
type Driver struct {
	// NewContextErr, NewPageErr and InitScriptErr fail the respective calls when set
	NewContextErr error
	NewPageErr    error
	InitScriptErr error

	// CloseErr is returned by page and context Close, after the resource is marked closed
	CloseErr error

	// OpDelay is slept inside every page operation to widen race windows
	OpDelay time.Duration

	// Titles maps a final URL to the document title
	Titles map[string]string

	// Redirects maps a requested URL to the URL the page ends on
	Redirects map[string]string

	// EvalFunc answers scripts the fake does not interpret itself
	EvalFunc func(script string) (any, error)

	mu       sync.Mutex
	running  bool
	stopped  int
	contexts []*Context
	profiles []driver.Profile
	overlaps atomic.Int32
}

// New returns a running fake driver.
func New() *Driver {
	return &Driver{running: true}
}

// Name returns "fake".
func (d *Driver) Name() string {
	return "fake"
}

// Running reports whether Shutdown has not been called.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Shutdown marks the driver stopped. Repeated calls are counted but harmless.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
	d.running = false
	return nil
}

// ShutdownCalls returns how many times Shutdown ran.
func (d *Driver) ShutdownCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// NewContext creates a fresh context with an empty cookie jar.
func (d *Driver) NewContext(ctx context.Context, profile driver.Profile) (driver.BrowserContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil, driver.ErrNotRunning
	}
	if d.NewContextErr != nil {
		return nil, d.NewContextErr
	}

	c := &Context{driver: d, cookies: make(map[string]string)}
	d.contexts = append(d.contexts, c)
	d.profiles = append(d.profiles, profile)
	return c, nil
}

// Contexts returns every context ever created, open or closed.
func (d *Driver) Contexts() []*Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Context, len(d.contexts))
	copy(out, d.contexts)
	return out
}

// OpenContexts counts contexts that have not been closed.
func (d *Driver) OpenContexts() int {
	n := 0
	for _, c := range d.Contexts() {
		if !c.Closed() {
			n++
		}
	}
	return n
}

// Profiles returns the device profiles passed to NewContext, in order.
func (d *Driver) Profiles() []driver.Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]driver.Profile, len(d.profiles))
	copy(out, d.profiles)
	return out
}

// Overlaps counts page operations that started while another was in flight on the same page.
func (d *Driver) Overlaps() int {
	return int(d.overlaps.Load())
}

// Context is a fake isolated browsing context.
type Context struct {
	driver *Driver

	mu      sync.Mutex
	cookies map[string]string
	pages   []*Page
	closed  bool
}

// NewPage opens a page at about:blank.
func (c *Context) NewPage(ctx context.Context) (driver.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.driver.NewPageErr != nil {
		return nil, c.driver.NewPageErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrTargetClosed
	}

	p := &Page{context: c, url: "about:blank", values: make(map[string]string)}
	c.pages = append(c.pages, p)
	return p, nil
}

// Close marks the context and its pages closed.
func (c *Context) Close() error {
	c.mu.Lock()
	c.closed = true
	pages := c.pages
	c.mu.Unlock()

	for _, p := range pages {
		p.markClosed()
	}
	return c.driver.CloseErr
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Pages returns the pages opened in this context.
func (c *Context) Pages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Page, len(c.pages))
	copy(out, c.pages)
	return out
}

func (c *Context) cookieString() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	pairs := make([]string, 0, len(c.cookies))
	for k, v := range c.cookies {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "; ")
}

func (c *Context) setCookie(assignment string) {
	name, value, _ := strings.Cut(assignment, "=")
	value, _, _ = strings.Cut(value, ";")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies[strings.TrimSpace(name)] = strings.TrimSpace(value)
}

// Page is a fake page.
type Page struct {
	context *Context

	inflight atomic.Int32

	mu          sync.Mutex
	url         string
	title       string
	values      map[string]string
	clicks      []string
	initScripts []string
	navigations int
	closed      bool
}

func (p *Page) enter() error {
	if p.inflight.Add(1) > 1 {
		p.context.driver.overlaps.Add(1)
	}
	if delay := p.context.driver.OpDelay; delay > 0 {
		time.Sleep(delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrTargetClosed
	}
	return nil
}

func (p *Page) leave() {
	p.inflight.Add(-1)
}

func (p *Page) markClosed() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// AddInitScript records script.
func (p *Page) AddInitScript(script string) error {
	if err := p.context.driver.InitScriptErr; err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrTargetClosed
	}
	p.initScripts = append(p.initScripts, script)
	return nil
}

// InitScripts returns the recorded init scripts.
func (p *Page) InitScripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.initScripts...)
}

// Navigations counts successful Goto calls.
func (p *Page) Navigations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.navigations
}

// Clicks returns the selectors clicked, in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Closed reports whether the page was closed directly or through its context.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Goto "loads" rawURL. Only http, https and about URLs are accepted.
func (p *Page) Goto(ctx context.Context, rawURL string, timeout time.Duration) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "about") {
		return fmt.Errorf("navigation failed: invalid url %q", rawURL)
	}

	if u.Hostname() == TimeoutHost {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			return fmt.Errorf("navigation failed: %w", driver.ErrTimeout)
		case <-ctx.Done():
			return fmt.Errorf("navigation failed: %w", ctx.Err())
		}
	}

	final := rawURL
	if to, ok := p.context.driver.Redirects[rawURL]; ok {
		final = to
	}
	title, ok := p.context.driver.Titles[final]
	if !ok {
		title = "Page " + final
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = final
	p.title = title
	p.values = make(map[string]string)
	p.navigations++
	return nil
}

// URL returns the current URL.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Title returns the current title.
func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrTargetClosed
	}
	return p.title, nil
}

func missing(selector string) bool {
	return strings.Contains(selector, "missing")
}

// Click records selector. Selectors containing "missing" time out.
func (p *Page) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	if missing(selector) {
		return fmt.Errorf("click failed: waiting for selector %q: %w", selector, driver.ErrTimeout)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	return nil
}

// Fill stores text as the value of selector, replacing any previous value.
func (p *Page) Fill(ctx context.Context, selector, text string, timeout time.Duration) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	if missing(selector) {
		return fmt.Errorf("fill failed: waiting for selector %q: %w", selector, driver.ErrTimeout)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[selector] = text
	return nil
}

// WaitVisible succeeds unless selector contains "missing".
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	if missing(selector) {
		return fmt.Errorf("wait failed: %w", driver.ErrTimeout)
	}
	return nil
}

// Screenshot returns a valid PNG; full-page captures are taller.
func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	height := 8
	if fullPage {
		height = 24
	}
	img := image.NewRGBA(image.Rect(0, 0, 16, height))
	for x := 0; x < 16; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 0x66, G: 0x7e, B: 0xea, A: 0xff})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Evaluate understands document.cookie reads and writes and "throw" statements;
// everything else is passed to the driver's EvalFunc.
func (p *Page) Evaluate(ctx context.Context, script string) (any, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	s := strings.TrimSpace(script)
	switch {
	case strings.HasPrefix(s, "throw"):
		return nil, fmt.Errorf("script execution failed: Error: %s", strings.TrimSpace(strings.TrimPrefix(s, "throw")))
	case s == "document.cookie":
		return p.context.cookieString(), nil
	case strings.HasPrefix(s, "document.cookie"):
		_, rhs, ok := strings.Cut(s, "=")
		if !ok {
			break
		}
		assignment := strings.Trim(strings.TrimSpace(rhs), `'";`)
		p.context.setCookie(assignment)
		return assignment, nil
	}

	if fn := p.context.driver.EvalFunc; fn != nil {
		return fn(script)
	}
	return nil, nil
}

// Content renders the title and every filled value as HTML.
func (p *Page) Content(ctx context.Context) (string, error) {
	if err := p.enter(); err != nil {
		return "", err
	}
	defer p.leave()

	p.mu.Lock()
	defer p.mu.Unlock()

	selectors := make([]string, 0, len(p.values))
	for sel := range p.values {
		selectors = append(selectors, sel)
	}
	sort.Strings(selectors)

	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body>", p.title)
	for _, sel := range selectors {
		fmt.Fprintf(&b, `<input data-selector=%q value=%q>`, sel, p.values[sel])
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

// Close closes the page.
func (p *Page) Close() error {
	p.markClosed()
	return p.context.driver.CloseErr
}
