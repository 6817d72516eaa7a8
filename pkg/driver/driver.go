// Package driver owns the single shared browser-automation process.
//
// A Driver is started once per service lifetime and hands out isolated
// BrowserContexts on demand. Each context has its own cookies, storage and
// cache; pages opened inside one context never observe state from another.
// Two implementations are provided: Playwright (the default) and chromedp,
// which talks to Chromium over the DevTools protocol directly.
//
// Drivers, contexts and pages are safe to use from multiple goroutines,
// but callers are expected to serialize operations on a single Page.
package driver

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a driver operation exceeds its deadline.
	ErrTimeout = errors.New("driver operation timed out")

	// ErrNotRunning is returned when the driver has not been started or was shut down.
	ErrNotRunning = errors.New("driver is not running")
)

// Driver is the handle to the shared automation process.
type Driver interface {
	// Name identifies the backend, e.g. "playwright".
	Name() string

	// NewContext returns a fresh isolated browsing context using profile.
	NewContext(ctx context.Context, profile Profile) (BrowserContext, error)

	// Running reports whether the underlying process is alive.
	Running() bool

	// Shutdown stops the process. Safe to call more than once.
	Shutdown() error
}

// BrowserContext is an isolated browsing environment.
type BrowserContext interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one live document inside a BrowserContext.
type Page interface {
	// AddInitScript registers script to run before any page script on every navigation.
	AddInitScript(script string) error

	// Goto loads url and waits until the network is idle or timeout elapses.
	Goto(ctx context.Context, url string, timeout time.Duration) error

	URL() string
	Title(ctx context.Context) (string, error)

	Click(ctx context.Context, selector string, timeout time.Duration) error

	// Fill replaces the value of the element matched by selector.
	Fill(ctx context.Context, selector, text string, timeout time.Duration) error

	// WaitVisible blocks until selector matches a visible element.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Screenshot captures the viewport, or the whole scrollable page when fullPage is set.
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)

	// Evaluate runs script in the page and returns its JSON-compatible result.
	Evaluate(ctx context.Context, script string) (any, error)

	// Content serializes the current DOM.
	Content(ctx context.Context) (string, error)

	Close() error
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Profile is the device profile applied to a new context.
type Profile struct {
	UserAgent string
	Viewport  Viewport
}

// LaunchOptions configures the shared browser process.
type LaunchOptions struct {
	Headless        bool
	ExtraArgs       []string
	ExecutablePath  string
	InstallBrowsers bool
}

// launchArgs are always passed to Chromium: sandboxing off for container
// deployments and the AutomationControlled blink feature suppressed.
var launchArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
}

// Args returns the full Chromium argument list for opts.
func (o LaunchOptions) Args() []string {
	args := make([]string, 0, len(launchArgs)+len(o.ExtraArgs))
	args = append(args, launchArgs...)
	return append(args, o.ExtraArgs...)
}

// IsTimeout reports whether err came from an exceeded deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
