package probe

import (
	"context"

	"github.com/sre-norns/uiprobe/pkg/engine"
)

// Presence is the result of an informational check that is allowed to fail.
type Presence string

const (
	PresenceUnchecked     Presence = ""
	PresencePresent       Presence = "present"
	PresenceAbsent        Presence = "absent"
	PresenceIndeterminate Presence = "indeterminate"
)

// checkPresence reports whether any of the queries is visible. Queries are tried in order and the
// first visible one wins. Any failure to perform a check makes the answer indeterminate.
func checkPresence(ctx context.Context, page engine.Page, queries []engine.Query) Presence {
	for _, q := range queries {
		visible, err := page.IsVisible(ctx, q)
		if err != nil {
			return PresenceIndeterminate
		}

		if visible {
			return PresencePresent
		}
	}

	return PresenceAbsent
}

// StartState tells how the run got past the start screen.
type StartState string

const (
	StartUnknown StartState = ""
	StartClicked StartState = "clicked"
	// No start control within the wait bound: either the flow is already past that screen or it never rendered.
	StartAbsent StartState = "absent"
	// The control was found but clicking it failed.
	StartClickFailed StartState = "click-failed"
)
