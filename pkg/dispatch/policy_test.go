package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLPolicy_Check(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		denied  []string
		url     string
		wantErr bool
	}{
		{"empty policy allows everything", nil, nil, "https://example.com/", false},
		{"allowed host", []string{"*.example.com"}, nil, "https://www.example.com/path", false},
		{"allowed full url", []string{"https://example.com/*"}, nil, "https://example.com/docs", false},
		{"not in allow list", []string{"*.example.com"}, nil, "https://evil.test/", true},
		{"denied host", nil, []string{"localhost"}, "http://localhost:8080/", true},
		{"denied wins over allowed", []string{"*"}, []string{"*.internal"}, "http://db.internal/", true},
		{"deny by scheme", nil, []string{"file:*"}, "file:///etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewURLPolicy(tt.allowed, tt.denied)
			require.NoError(t, err)

			err = p.Check(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrURLNotAllowed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestURLPolicy_NilAllowsEverything(t *testing.T) {
	var p *URLPolicy
	assert.NoError(t, p.Check("http://anything/"))
}

func TestNewURLPolicy_InvalidPattern(t *testing.T) {
	_, err := NewURLPolicy([]string{"[unclosed"}, nil)
	assert.Error(t, err)
}
