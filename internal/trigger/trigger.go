// Package trigger records how an analysis was requested.
//
// Requests arriving on the provider webhook path and direct API calls run the
// same pipeline; the trigger only separates them in metrics and logs.
//
// Usage:
//
//	ctx = trigger.With(ctx, trigger.Webhook)
//	t := trigger.FromContext(ctx) // Direct if not set
package trigger

import "context"

// Trigger classifies the origin of an analysis request.
type Trigger string

const (
	// Direct is a caller posting to /analyze. This is the default.
	Direct Trigger = "direct"

	// Webhook is an event delivered by the drive provider to the webhook path.
	Webhook Trigger = "webhook"
)

func (t Trigger) String() string {
	return string(t)
}

type contextKey struct{}

// With returns a new context carrying t.
func With(ctx context.Context, t Trigger) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext extracts the trigger from ctx, defaulting to Direct.
func FromContext(ctx context.Context) Trigger {
	if t, ok := ctx.Value(contextKey{}).(Trigger); ok {
		return t
	}
	return Direct
}
