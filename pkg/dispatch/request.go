package dispatch

import "time"

// Request is one command addressed to the dispatcher.
type Request struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id,omitempty"`
	URL       string `json:"url,omitempty"`
	Selector  string `json:"selector,omitempty"`

	// Text is a pointer so an explicit empty string can clear a field
	Text *string `json:"text,omitempty"`

	Script   string `json:"script,omitempty"`
	FullPage bool   `json:"full_page,omitempty"`

	// WaitTime is the click settle delay in milliseconds; nil means the configured default
	WaitTime *int `json:"wait_time,omitempty"`

	// TimeoutMS bounds the wait action; nil or non-positive means the configured action timeout
	TimeoutMS *int `json:"timeout_ms,omitempty"`

	// MaxLength caps extract output; 0 means the configured default
	MaxLength int `json:"max_length,omitempty"`
}

// Result is the success payload of an action. Every result carries
// "success", "action" and "message" plus the action's own fields.
type Result map[string]interface{}

func newResult(action, message string) Result {
	return Result{
		"success": true,
		"action":  action,
		"message": message,
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
