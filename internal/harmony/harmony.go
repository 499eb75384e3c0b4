// Package harmony talks to a Logitech Harmony hub over its local websocket
// API. The real implementation lives in websocket.go; a scripted fake for
// tests lives in fake.go.
package harmony

import "context"

// OffID is the activity id Harmony hubs report when no activity is running.
// The catalog always carries the matching "PowerOff" entry; ResolveOffID
// prefers what the hub actually reports over this constant.
const OffID = "-1"

// Activity is one activity defined on the hub (e.g. "Watch TV").
type Activity struct {
	ID    string
	Label string
}

// Client is the hub collaborator surface the watcher needs. All operations
// may fail with a transport error and honour ctx cancellation.
type Client interface {
	// Activities returns every activity defined on the hub.
	Activities(ctx context.Context) ([]Activity, error)

	// CurrentActivityID returns the id of the activity running right now.
	// When the system is off the hub reports the power-off sentinel.
	CurrentActivityID(ctx context.Context) (string, error)

	// TurnOff powers the whole system down.
	TurnOff(ctx context.Context) error

	// Close ends the hub session.
	Close() error
}

// ResolveOffID picks the power-off sentinel out of the hub's catalog. Hubs
// label it "PowerOff"; if the catalog carries no such entry the conventional
// id is returned so callers never hard-code a guess themselves.
func ResolveOffID(activities []Activity) string {
	for _, a := range activities {
		if a.Label == "PowerOff" {
			return a.ID
		}
	}
	for _, a := range activities {
		if a.ID == OffID {
			return a.ID
		}
	}
	return OffID
}
