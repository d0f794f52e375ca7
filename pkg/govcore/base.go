// Package govcore implements the abstract governor lifecycle shared by
// every concrete governor kind: lazy handle acquisition, the
// update/reset state machine, listener fan-out, and the Interact
// conduit. Concrete governors (pkg/govadapter, pkg/govdevice,
// pkg/govchar) embed *Base and supply a Callbacks value wiring its three
// overridable operations to their handle type.
package govcore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/newtron-network/btgovernor/pkg/bterrors"
	"github.com/newtron-network/btgovernor/pkg/btlog"
	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/transport"
)

// Callbacks wires the base lifecycle to one concrete governor's handle
// type and domain behavior. Acquire, Init, Update, and Reset correspond to
// the spec's acquire/initHandle/updateHandle/resetHandle.
type Callbacks struct {
	// Acquire asks the transport factory for a handle, using
	// protocolHint (the cached protocol from a prior acquisition) when
	// set. It returns (nil, nil) when the entity is currently
	// unavailable — that is not an error.
	Acquire func(protocolHint string) (transport.Handle, error)
	Init    func(h transport.Handle) error
	Update  func(h transport.Handle) error
	Reset   func(h transport.Handle) error
}

// Base is the acquire/update/reset state machine. It is not safe to copy
// after first use.
type Base struct {
	url   bturl.URL
	hooks Hooks
	cb    Callbacks

	// updateMu serializes update() and reset() against each other and
	// against themselves: "only one thread may be inside update(handle)
	// or reset(handle) at a time."
	updateMu sync.Mutex
	busy     atomic.Bool

	fieldsMu             sync.RWMutex
	state                State
	handle               transport.Handle
	protocolCache        string
	lastActivity         time.Time
	lastNotifiedActivity time.Time

	listenersMu sync.Mutex
	listeners   []Listener
}

// New constructs a Base for url. hooks may be nil (useful in isolated
// tests); cb must be fully populated.
func New(url bturl.URL, hooks Hooks, cb Callbacks) *Base {
	return &Base{url: url, hooks: hooks, cb: cb}
}

// URL returns the governor's immutable identifier.
func (b *Base) URL() bturl.URL { return b.url }

// State returns the current lifecycle state.
func (b *Base) State() State {
	b.fieldsMu.RLock()
	defer b.fieldsMu.RUnlock()
	return b.state
}

// IsReady reports whether a native handle is currently cached, which the
// invariants tie one-to-one with State()==StateReady.
func (b *Base) IsReady() bool {
	b.fieldsMu.RLock()
	defer b.fieldsMu.RUnlock()
	return b.handle != nil
}

// LastActivity returns the timestamp of the most recent successful update
// or Interact call, and whether one has ever occurred.
func (b *Base) LastActivity() (time.Time, bool) {
	b.fieldsMu.RLock()
	defer b.fieldsMu.RUnlock()
	return b.lastActivity, !b.lastActivity.IsZero()
}

// AddListener registers l for Ready/LastUpdatedChanged notifications.
func (b *Base) AddListener(l Listener) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = append(b.listeners, l)
}

// RemoveListener unregisters l, a no-op if it was never added.
func (b *Base) RemoveListener(l Listener) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	for i, existing := range b.listeners {
		if existing == l {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

func (b *Base) listenerSnapshot() []Listener {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	snapshot := make([]Listener, len(b.listeners))
	copy(snapshot, b.listeners)
	return snapshot
}

func (b *Base) handleSnapshot() transport.Handle {
	b.fieldsMu.RLock()
	defer b.fieldsMu.RUnlock()
	return b.handle
}

func (b *Base) setState(s State) {
	b.fieldsMu.Lock()
	b.state = s
	b.fieldsMu.Unlock()
}

func (b *Base) setHandle(h transport.Handle) {
	b.fieldsMu.Lock()
	b.handle = h
	b.fieldsMu.Unlock()
}

func (b *Base) protocolHint() string {
	b.fieldsMu.RLock()
	defer b.fieldsMu.RUnlock()
	return b.protocolCache
}

func (b *Base) setProtocolCache(p string) {
	if p == "" {
		return
	}
	b.fieldsMu.Lock()
	b.protocolCache = p
	b.fieldsMu.Unlock()
}

// Init performs the first update pass; it is identical to Update, kept as
// a distinct name for readability at call sites that mean "bring this
// governor up."
func (b *Base) Init() { b.Update() }

// Update runs one acquire-or-reconcile pass. If another goroutine already
// owns the update lock, Update blocks until that pass completes and then
// returns without doing any work itself — the caller is guaranteed to
// observe a completed update pass, just not necessarily its own.
func (b *Base) Update() {
	if b.State() == StateDisposed {
		return
	}
	if !b.updateMu.TryLock() {
		b.updateMu.Lock()
		b.updateMu.Unlock()
		return
	}
	defer b.updateMu.Unlock()
	b.busy.Store(true)
	defer b.busy.Store(false)
	b.updateLocked()
}

func (b *Base) updateLocked() {
	if b.State() == StateDisposed {
		return
	}

	h := b.handleSnapshot()
	if h == nil {
		acquired, err := b.cb.Acquire(b.protocolHint())
		if err != nil {
			btlog.WithURL(b.url.String()).Warnf("acquire failed: %v", err)
			return
		}
		if acquired == nil {
			return
		}

		b.setHandle(acquired)
		b.setProtocolCache(acquired.URL().Protocol)

		if err := b.cb.Init(acquired); err != nil {
			btlog.WithURL(b.url.String()).Warnf("initHandle failed: %v", err)
			b.resetLocked()
			return
		}

		b.setState(StateReady)
		b.notifyReady(true)
		h = acquired
	}

	if err := b.cb.Update(h); err != nil {
		btlog.WithURL(b.url.String()).Warnf("updateHandle failed: %v", err)
		b.resetLocked()
		return
	}

	b.markActivity()
}

// Reset tears the governor down: it instructs the manager to cascade to
// descendants, tears down the cached handle, and leaves the governor in
// RESET with no handle so the next Update reacquires from scratch.
func (b *Base) Reset() {
	b.updateMu.Lock()
	defer b.updateMu.Unlock()
	b.busy.Store(true)
	defer b.busy.Store(false)
	b.resetLocked()
}

func (b *Base) resetLocked() {
	switch b.State() {
	case StateReset, StateDisposed:
		return
	}
	b.setState(StateReset)

	if b.hooks != nil {
		b.hooks.ResetDescendants(b.url)
	}

	h := b.handleSnapshot()
	if h != nil {
		if err := b.safeResetHandle(h); err != nil {
			btlog.WithURL(b.url.String()).Warnf("resetHandle failed: %v", err)
		}
		b.notifyReady(false)
		b.safeDispose(h)
	}

	b.setHandle(nil)
}

func (b *Base) safeResetHandle(h transport.Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			btlog.WithURL(b.url.String()).Errorf("resetHandle panicked: %v", r)
		}
	}()
	if b.cb.Reset != nil {
		err = b.cb.Reset(h)
	}
	return err
}

func (b *Base) safeDispose(h transport.Handle) {
	defer func() {
		if r := recover(); r != nil {
			btlog.WithURL(b.url.String()).Errorf("handle Dispose panicked: %v", r)
		}
	}()
	h.Dispose()
}

// Dispose is the terminal transition: reset, then DISPOSED, then drop all
// listeners. Idempotent.
func (b *Base) Dispose() {
	b.updateMu.Lock()
	b.resetLocked()
	b.setState(StateDisposed)
	b.updateMu.Unlock()

	b.listenersMu.Lock()
	b.listeners = nil
	b.listenersMu.Unlock()
}

// Interact ensures a handle is available (triggering one Update if
// needed), invokes fn against it, and resets the governor on failure
// before propagating the error to the caller.
func (b *Base) Interact(op string, fn func(h transport.Handle) error) error {
	if b.State() == StateDisposed {
		return bterrors.ErrDisposed
	}

	h := b.handleSnapshot()
	if h == nil {
		b.Update()
		h = b.handleSnapshot()
		if h == nil {
			return bterrors.ErrNotReady
		}
	}

	if err := fn(h); err != nil {
		btlog.WithOp(b.url.String(), op).
			Warnf("interact failed (updateInProgress=%v): %v", b.busy.Load(), err)
		b.Reset()
		return &bterrors.TransportError{URL: b.url.String(), Op: op, Err: err}
	}

	b.markActivity()
	return nil
}

func (b *Base) markActivity() {
	now := time.Now()

	b.fieldsMu.Lock()
	changed := !now.Equal(b.lastNotifiedActivity)
	b.lastActivity = now
	if changed {
		b.lastNotifiedActivity = now
	}
	b.fieldsMu.Unlock()

	if !changed {
		return
	}
	for _, l := range b.listenerSnapshot() {
		b.safeInvoke(func() { l.LastUpdatedChanged(now) })
	}
}

func (b *Base) notifyReady(ready bool) {
	for _, l := range b.listenerSnapshot() {
		b.safeInvoke(func() { l.Ready(ready) })
	}
	if b.hooks != nil {
		b.safeInvoke(func() { b.hooks.GovernorReady(b.url, ready) })
	}
}

func (b *Base) safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			btlog.WithURL(b.url.String()).Errorf("listener panicked: %v", r)
		}
	}()
	fn()
}
