package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchOptionsArgs(t *testing.T) {
	opts := LaunchOptions{ExtraArgs: []string{"--lang=en-US"}}

	args := opts.Args()
	assert.Equal(t, []string{
		"--no-sandbox",
		"--disable-setuid-sandbox",
		"--disable-dev-shm-usage",
		"--disable-blink-features=AutomationControlled",
		"--lang=en-US",
	}, args)

	// Args must not alias the package-level flag list
	args[0] = "--changed"
	assert.Equal(t, "--no-sandbox", opts.Args()[0])
}

func TestSplitFlag(t *testing.T) {
	tests := []struct {
		arg       string
		wantName  string
		wantValue interface{}
	}{
		{"--no-sandbox", "no-sandbox", true},
		{"--disable-blink-features=AutomationControlled", "disable-blink-features", "AutomationControlled"},
		{"-single-dash", "single-dash", true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, value := splitFlag(tt.arg)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantValue, value)
		})
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(ErrTimeout))
	assert.True(t, IsTimeout(fmt.Errorf("navigation failed: %w", ErrTimeout)))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.False(t, IsTimeout(errors.New("selector not found")))
	assert.False(t, IsTimeout(context.Canceled))
}

func TestTimeoutMillis(t *testing.T) {
	t.Run("no deadline", func(t *testing.T) {
		ms, err := timeoutMillis(context.Background(), 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, float64(30000), ms)
	})

	t.Run("deadline shortens timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		ms, err := timeoutMillis(ctx, 30*time.Second)
		require.NoError(t, err)
		assert.LessOrEqual(t, ms, float64(1000))
		assert.Greater(t, ms, float64(0))
	})

	t.Run("sub-millisecond rounds up", func(t *testing.T) {
		ms, err := timeoutMillis(context.Background(), time.Microsecond)
		require.NoError(t, err)
		assert.Equal(t, float64(1), ms)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := timeoutMillis(ctx, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("no timeout and no deadline", func(t *testing.T) {
		_, err := timeoutMillis(context.Background(), 0)
		assert.ErrorIs(t, err, ErrTimeout)
	})
}
