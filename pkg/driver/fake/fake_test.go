package fake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/hammer/pkg/driver"
)

var _ driver.Driver = (*Driver)(nil)

func TestCookieJarsArePerContext(t *testing.T) {
	d := New()
	ctx := context.Background()

	open := func() driver.Page {
		bc, err := d.NewContext(ctx, driver.Profile{})
		require.NoError(t, err)
		p, err := bc.NewPage(ctx)
		require.NoError(t, err)
		return p
	}
	a, b := open(), open()

	got, err := a.Evaluate(ctx, `document.cookie = "session=abc; path=/"`)
	require.NoError(t, err)
	assert.Equal(t, "session=abc; path=/", got)

	got, err = a.Evaluate(ctx, "document.cookie")
	require.NoError(t, err)
	assert.Equal(t, "session=abc", got)

	got, err = b.Evaluate(ctx, "document.cookie")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestGotoResetsFilledValues(t *testing.T) {
	d := New()
	ctx := context.Background()

	bc, err := d.NewContext(ctx, driver.Profile{})
	require.NoError(t, err)
	p, err := bc.NewPage(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Fill(ctx, "#q", "hello", time.Second))
	html, err := p.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, `value="hello"`)

	require.NoError(t, p.Goto(ctx, "https://example.com/", time.Second))
	html, err = p.Content(ctx)
	require.NoError(t, err)
	assert.NotContains(t, html, "hello")
	assert.Equal(t, "https://example.com/", p.URL())
}

func TestClosedContextClosesPages(t *testing.T) {
	d := New()
	ctx := context.Background()

	bc, err := d.NewContext(ctx, driver.Profile{})
	require.NoError(t, err)
	p, err := bc.NewPage(ctx)
	require.NoError(t, err)

	require.NoError(t, bc.Close())
	assert.ErrorIs(t, p.Click(ctx, "#x", time.Second), ErrTargetClosed)
	assert.Zero(t, d.OpenContexts())
}

func TestStoppedDriverRefusesContexts(t *testing.T) {
	d := New()
	require.NoError(t, d.Shutdown())

	_, err := d.NewContext(context.Background(), driver.Profile{})
	assert.ErrorIs(t, err, driver.ErrNotRunning)
	assert.False(t, d.Running())
}
