package driver

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPage = `data:text/html,<html><head><title>Fixture</title></head><body><input id="q"><button id="go" onclick="document.title='clicked'">Go</button></body></html>`

// These tests drive a real Chromium and are skipped unless HAMMER_BROWSER_TESTS=1.
func requireBrowser(t *testing.T) {
	t.Helper()
	if os.Getenv("HAMMER_BROWSER_TESTS") != "1" {
		t.Skip("set HAMMER_BROWSER_TESTS=1 to run browser tests")
	}
}

func startBackends(t *testing.T) map[string]Driver {
	t.Helper()
	opts := LaunchOptions{Headless: true, InstallBrowsers: true}

	pw, err := StartPlaywright(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pw.Shutdown() })

	cdp, err := StartChromedp(LaunchOptions{Headless: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cdp.Shutdown() })

	return map[string]Driver{"playwright": pw, "chromedp": cdp}
}

func TestBrowserBackends(t *testing.T) {
	requireBrowser(t)

	profile := Profile{UserAgent: "hammer-test", Viewport: Viewport{Width: 1024, Height: 768}}

	for name, d := range startBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			assert.True(t, d.Running())

			bc, err := d.NewContext(ctx, profile)
			require.NoError(t, err)
			defer bc.Close()

			page, err := bc.NewPage(ctx)
			require.NoError(t, err)
			require.NoError(t, page.AddInitScript(StealthScript))

			require.NoError(t, page.Goto(ctx, testPage, 10*time.Second))
			title, err := page.Title(ctx)
			require.NoError(t, err)
			assert.Equal(t, "Fixture", title)

			webdriver, err := page.Evaluate(ctx, "navigator.webdriver")
			require.NoError(t, err)
			assert.Equal(t, false, webdriver)

			resolved, err := page.Evaluate(ctx, "new Promise(r => setTimeout(() => r(7), 50))")
			require.NoError(t, err)
			assert.EqualValues(t, 7, resolved)

			agent, err := page.Evaluate(ctx, "navigator.userAgent")
			require.NoError(t, err)
			assert.Equal(t, "hammer-test", agent)

			require.NoError(t, page.Fill(ctx, "#q", "typed", 5*time.Second))
			value, err := page.Evaluate(ctx, "document.querySelector('#q').value")
			require.NoError(t, err)
			assert.Equal(t, "typed", value)

			require.NoError(t, page.Click(ctx, "#go", 5*time.Second))
			title, err = page.Title(ctx)
			require.NoError(t, err)
			assert.Equal(t, "clicked", title)

			err = page.WaitVisible(ctx, "#does-not-exist", 200*time.Millisecond)
			assert.True(t, IsTimeout(err), "got %v", err)

			for _, full := range []bool{false, true} {
				shot, err := page.Screenshot(ctx, full)
				require.NoError(t, err)
				_, err = png.DecodeConfig(bytes.NewReader(shot))
				assert.NoError(t, err)
			}

			content, err := page.Content(ctx)
			require.NoError(t, err)
			assert.True(t, strings.Contains(content, `id="go"`))

			require.NoError(t, page.Close())
		})
	}
}

func TestGotoWaitsForNetworkIdle(t *testing.T) {
	requireBrowser(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><script>
window.onload = () => fetch('/slow').then(r => r.text()).then(t => { window.loaded = t })
</script></body></html>`))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("done"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	for name, d := range startBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			bc, err := d.NewContext(ctx, Profile{Viewport: Viewport{Width: 800, Height: 600}})
			require.NoError(t, err)
			defer bc.Close()
			page, err := bc.NewPage(ctx)
			require.NoError(t, err)

			require.NoError(t, page.Goto(ctx, srv.URL, 10*time.Second))
			loaded, err := page.Evaluate(ctx, "window.loaded")
			require.NoError(t, err)
			assert.Equal(t, "done", loaded)
		})
	}
}

func TestBrowserContextsAreIsolated(t *testing.T) {
	requireBrowser(t)

	for name, d := range startBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			open := func() Page {
				bc, err := d.NewContext(ctx, Profile{Viewport: Viewport{Width: 800, Height: 600}})
				require.NoError(t, err)
				t.Cleanup(func() { _ = bc.Close() })
				p, err := bc.NewPage(ctx)
				require.NoError(t, err)
				require.NoError(t, p.Goto(ctx, "https://example.com", 30*time.Second))
				return p
			}

			a, b := open(), open()

			_, err := a.Evaluate(ctx, "document.cookie = 'x=1'")
			require.NoError(t, err)

			got, err := b.Evaluate(ctx, "document.cookie")
			require.NoError(t, err)
			assert.Equal(t, "", got)
		})
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	requireBrowser(t)

	for name, d := range startBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, d.Shutdown())
			require.NoError(t, d.Shutdown())
			assert.False(t, d.Running())

			_, err := d.NewContext(context.Background(), Profile{})
			assert.ErrorIs(t, err, ErrNotRunning)
		})
	}
}
