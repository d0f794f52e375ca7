package govcore

import (
	"time"

	"github.com/newtron-network/btgovernor/pkg/bturl"
)

// Listener is the notification surface every governor offers regardless of
// entity kind: readiness transitions and activity heartbeats. Concrete
// governors layer richer, domain-specific listener interfaces (see
// pkg/govdevice) on top of this one.
//
// Callbacks run on whichever goroutine triggered the state transition —
// usually a refresh worker, occasionally a user goroutine via Interact.
// Listeners must be fast and must not block.
type Listener interface {
	Ready(ready bool)
	LastUpdatedChanged(t time.Time)
}

// Hooks lets a governor reach back into its owning manager without the
// govcore package importing the manager package: cascading resets and the
// manager-wide governorReady fan-out described in the spec's acquire
// algorithm.
type Hooks interface {
	GovernorReady(url bturl.URL, ready bool)
	ResetDescendants(url bturl.URL)
}
