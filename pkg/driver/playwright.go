package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver runs one Chromium instance through the Playwright driver.
type PlaywrightDriver struct {
	mu         sync.RWMutex
	playwright *playwright.Playwright
	browser    playwright.Browser
	running    bool
}

// StartPlaywright installs (optionally) and launches the Playwright driver
// and a single Chromium browser shared by every context.
func StartPlaywright(opts LaunchOptions) (*PlaywrightDriver, error) {
	// Discard driver output so it does not interleave with structured logs
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if opts.InstallBrowsers {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args(),
	}
	if opts.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecutablePath)
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &PlaywrightDriver{
		playwright: pw,
		browser:    browser,
		running:    true,
	}, nil
}

// Name returns the backend name.
func (d *PlaywrightDriver) Name() string {
	return "playwright"
}

// Running reports whether the browser is still connected.
func (d *PlaywrightDriver) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running && d.browser.IsConnected()
}

// NewContext creates an isolated browser context with the given device profile.
func (d *PlaywrightDriver) NewContext(ctx context.Context, profile Profile) (BrowserContext, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.running {
		return nil, ErrNotRunning
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  profile.Viewport.Width,
			Height: profile.Viewport.Height,
		},
	}
	if profile.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(profile.UserAgent)
	}

	bc, err := d.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	return &playwrightContext{context: bc}, nil
}

// Shutdown closes the browser and stops the Playwright driver.
func (d *PlaywrightDriver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false

	var errs []error
	if err := d.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	if err := d.playwright.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

type playwrightContext struct {
	context playwright.BrowserContext
}

func (c *playwrightContext) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := c.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (c *playwrightContext) Close() error {
	return c.context.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) AddInitScript(script string) error {
	return p.page.AddInitScript(playwright.Script{Content: playwright.String(script)})
}

func (p *playwrightPage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	ms, err := timeoutMillis(ctx, timeout)
	if err != nil {
		return err
	}
	_, err = p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(ms),
	})
	if err != nil {
		return translatePlaywrightError("navigation failed", err)
	}
	return nil
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Title()
}

func (p *playwrightPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	ms, err := timeoutMillis(ctx, timeout)
	if err != nil {
		return err
	}
	if err := p.page.Click(selector, playwright.PageClickOptions{Timeout: playwright.Float(ms)}); err != nil {
		return translatePlaywrightError("click failed", err)
	}
	return nil
}

func (p *playwrightPage) Fill(ctx context.Context, selector, text string, timeout time.Duration) error {
	ms, err := timeoutMillis(ctx, timeout)
	if err != nil {
		return err
	}
	if err := p.page.Fill(selector, text, playwright.PageFillOptions{Timeout: playwright.Float(ms)}); err != nil {
		return translatePlaywrightError("fill failed", err)
	}
	return nil
}

func (p *playwrightPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	ms, err := timeoutMillis(ctx, timeout)
	if err != nil {
		return err
	}
	_, err = p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(ms),
	})
	if err != nil {
		return translatePlaywrightError("wait failed", err)
	}
	return nil
}

func (p *playwrightPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, translatePlaywrightError("screenshot failed", err)
	}
	return buf, nil
}

func (p *playwrightPage) Evaluate(ctx context.Context, script string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := p.page.Evaluate(script)
	if err != nil {
		return nil, translatePlaywrightError("script execution failed", err)
	}
	return result, nil
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

// timeoutMillis converts d into Playwright milliseconds, shortened to the
// context deadline when that comes first.
func timeoutMillis(ctx context.Context, d time.Duration) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < d || d <= 0 {
			d = remaining
		}
	}
	if d <= 0 {
		return 0, ErrTimeout
	}
	// Playwright treats 0 as "no timeout"
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return float64(d.Milliseconds()), nil
}

func translatePlaywrightError(op string, err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
