package govchar

import (
	"errors"
	"sync"
	"testing"

	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/transport"
)

type fakeCharHandle struct {
	url bturl.URL

	mu          sync.Mutex
	value       []byte
	notifying   bool
	readErr     error
	writeErr    error
	subscribeCb func([]byte)
}

func (h *fakeCharHandle) URL() bturl.URL { return h.url }
func (h *fakeCharHandle) Dispose()       {}

func (h *fakeCharHandle) Read() ([]byte, error) {
	if h.readErr != nil {
		return nil, h.readErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, nil
}

func (h *fakeCharHandle) Write(value []byte) error {
	if h.writeErr != nil {
		return h.writeErr
	}
	h.mu.Lock()
	h.value = value
	h.mu.Unlock()
	return nil
}

func (h *fakeCharHandle) IsNotifying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.notifying
}

func (h *fakeCharHandle) Subscribe(onNotify func([]byte)) error {
	h.mu.Lock()
	h.notifying = true
	h.subscribeCb = onNotify
	h.mu.Unlock()
	return nil
}

func (h *fakeCharHandle) Unsubscribe() error {
	h.mu.Lock()
	h.notifying = false
	h.mu.Unlock()
	return nil
}

type fakeFactory struct {
	handle transport.Handle
}

func (f *fakeFactory) GetBluetoothObject(bturl.URL) (transport.Handle, error) {
	return f.handle, nil
}
func (f *fakeFactory) GetDiscoveredAdapters() ([]transport.AdapterHandle, error) { return nil, nil }
func (f *fakeFactory) GetDiscoveredDevices() ([]transport.DeviceHandle, error)   { return nil, nil }

func newGovernor(handle *fakeCharHandle) *Governor {
	url := bturl.New("mem", "AA:BB", "11:22", "2a00")
	return New(url, &fakeFactory{handle: handle}, nil)
}

func TestReadWriteThroughInteract(t *testing.T) {
	url := bturl.New("mem", "AA:BB", "11:22", "2a00")
	handle := &fakeCharHandle{url: url.CopyWithProtocol("mem"), value: []byte("hello")}
	g := newGovernor(handle)

	got, err := g.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Read() = %q, want hello", got)
	}
	if string(g.CachedValue()) != "hello" {
		t.Fatalf("CachedValue() = %q, want hello", g.CachedValue())
	}

	if err := g.Write([]byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if string(handle.value) != "world" {
		t.Fatalf("handle value = %q, want world", handle.value)
	}
}

func TestNotifySubscriptionReconciled(t *testing.T) {
	url := bturl.New("mem", "AA:BB", "11:22", "2a00")
	handle := &fakeCharHandle{url: url.CopyWithProtocol("mem")}
	g := newGovernor(handle)

	g.SetNotifyRequested(true)
	g.Update()
	if !handle.IsNotifying() {
		t.Fatal("expected subscription after requesting notify")
	}

	g.SetNotifyRequested(false)
	g.Update()
	if handle.IsNotifying() {
		t.Fatal("expected unsubscription after clearing notify request")
	}
}

func TestNotificationsFanOutAndCache(t *testing.T) {
	url := bturl.New("mem", "AA:BB", "11:22", "2a00")
	handle := &fakeCharHandle{url: url.CopyWithProtocol("mem")}
	g := newGovernor(handle)
	g.SetNotifyRequested(true)
	g.Update()

	handle.subscribeCb([]byte("notified"))

	if string(g.CachedValue()) != "notified" {
		t.Fatalf("CachedValue() = %q, want notified", g.CachedValue())
	}
}

func TestWriteFailurePropagatesAndResets(t *testing.T) {
	url := bturl.New("mem", "AA:BB", "11:22", "2a00")
	handle := &fakeCharHandle{url: url.CopyWithProtocol("mem"), writeErr: errors.New("gatt write failed")}
	g := newGovernor(handle)
	g.Update()

	if err := g.Write([]byte("x")); err == nil {
		t.Fatal("expected Write to propagate the transport error")
	}
	if g.IsReady() {
		t.Fatal("expected governor reset after a failed write")
	}
}
