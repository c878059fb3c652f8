package hiddev

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

const testPath = `\\?\hid#vid_1234&pid_5678#1&0`

var testIdentity = Identity{VendorID: 0x1234, ProductID: 0x5678}

func newTestDevice(t *testing.T, host *fakeHost) *Device {
	t.Helper()
	d := New(host, testIdentity, WithRegistry(NewRegistry()))
	t.Cleanup(d.Dispose)
	return d
}

func wait(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func expectQuiet(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("unexpected %s", what)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestArrivalAndIdempotentCheck(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	d := newTestDevice(t, host)

	arrived := make(chan struct{}, 4)
	d.OnArrived(func() { arrived <- struct{}{} })

	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}
	wait(t, arrived, "arrival event")
	if !d.Connected() {
		t.Fatal("expected connected state")
	}
	if in, out := d.InputReportLength(), d.OutputReportLength(); in != 8 || out != 8 {
		t.Fatalf("expected report lengths 8/8, got %d/%d", in, out)
	}

	// Same enumeration result, no second event.
	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}
	expectQuiet(t, arrived, "second arrival event")
}

func TestConnectFailureStaysDisconnected(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	host.openErr = errors.New("claimed elsewhere")
	d := newTestDevice(t, host)

	err := d.CheckPresent()
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}
	if d.Connected() {
		t.Fatal("expected disconnected state after open failure")
	}

	// Next check retries and succeeds.
	host.mu.Lock()
	host.openErr = nil
	host.mu.Unlock()
	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}
	if !d.Connected() {
		t.Fatal("expected connected state after retry")
	}
}

func TestCapabilityQueryFailureReleasesHandle(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	host.capErr = errors.New("refused")
	d := newTestDevice(t, host)

	err := d.CheckPresent()
	if !errors.Is(err, ErrCapabilityQuery) {
		t.Fatalf("expected ErrCapabilityQuery, got %v", err)
	}
	if d.Connected() {
		t.Fatal("expected disconnected state")
	}
	handle := host.lastHandle()
	select {
	case <-handle.closed:
	default:
		t.Fatal("handle not released after failed capability query")
	}
}

func TestReadLoopDeliversAndRearms(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	d := newTestDevice(t, host)

	received := make(chan []byte, 4)
	d.OnDataReceived(func(r *Report) {
		received <- append([]byte(nil), r.Bytes()...)
	})
	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}

	handle := host.lastHandle()
	report := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	handle.deliver(report)

	select {
	case got := <-received:
		if !bytes.Equal(got, report) {
			t.Fatalf("expected %v, got %v", report, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for data received event")
	}

	// The loop re-arms: a second read must be posted.
	handle.deliver([]byte{8, 9, 10, 11, 12, 13, 14, 15})
	select {
	case got := <-received:
		if got[0] != 8 {
			t.Fatalf("unexpected second report %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not post a second read")
	}
}

func TestReadFailureEmitsSingleRemoval(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	d := newTestDevice(t, host)

	removed := make(chan struct{}, 4)
	sent := make(chan struct{}, 4)
	d.OnRemoved(func() { removed <- struct{}{} })
	d.OnDataSend(func(*Report) { sent <- struct{}{} })

	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}
	handle := host.lastHandle()

	// Physical removal: the device disappears from enumeration and the
	// in-flight read fails.
	host.setPaths()
	handle.fail(io.ErrUnexpectedEOF)

	wait(t, removed, "removal event")
	expectQuiet(t, removed, "second removal event")
	if d.Connected() {
		t.Fatal("expected disconnected state")
	}

	// send() is now a no-op: no write, no DataSend event, no error.
	if err := d.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("send while disconnected returned %v", err)
	}
	expectQuiet(t, sent, "DataSend event while disconnected")
	if n := handle.writeCount(); n != 0 {
		t.Fatalf("expected no writes, got %d", n)
	}
}

func TestSendPadsAndEmits(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	d := newTestDevice(t, host)

	sent := make(chan struct{}, 4)
	d.OnDataSend(func(*Report) { sent <- struct{}{} })
	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}

	if err := d.Send([]byte{0xaa, 0xbb}); err != nil {
		t.Fatal(err)
	}
	wait(t, sent, "DataSend event")

	want := []byte{0xaa, 0xbb, 0, 0, 0, 0, 0, 0}
	if got := host.lastHandle().lastWrite(); !bytes.Equal(got, want) {
		t.Fatalf("expected padded write %v, got %v", want, got)
	}
}

func TestEqualityIgnoresConnectionState(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)

	a := newTestDevice(t, host)
	b := newTestDevice(t, host)
	if err := a.CheckPresent(); err != nil {
		t.Fatal(err)
	}
	if !a.Connected() || b.Connected() {
		t.Fatal("expected differing connection states")
	}
	if !a.Equal(b) || !b.Equal(a) {
		t.Fatal("devices with the same identity must be equal")
	}

	c := New(host, Identity{VendorID: 0x1234, ProductID: 0x9999}, WithRegistry(NewRegistry()))
	defer c.Dispose()
	if a.Equal(c) {
		t.Fatal("devices with different identities must not be equal")
	}
	if a.Equal(nil) {
		t.Fatal("device must not equal nil")
	}
}

func TestStaleCompletionDiscarded(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	d := newTestDevice(t, host)

	events := make(chan string, 8)
	d.OnArrived(func() { events <- "arrived" })
	d.OnRemoved(func() { events <- "removed" })
	d.OnDataReceived(func(*Report) { events <- "data" })

	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}
	d.mu.Lock()
	oldConn := d.conn
	d.mu.Unlock()
	if got := <-events; got != "arrived" {
		t.Fatalf("expected arrival, got %q", got)
	}

	// Unplug, then replug fast enough that a new connection is already
	// open when the old connection's completion is finally handled.
	host.setPaths()
	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}
	if got := <-events; got != "removed" {
		t.Fatalf("expected removal, got %q", got)
	}
	host.setPaths(testPath)
	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}
	if got := <-events; got != "arrived" {
		t.Fatalf("expected second arrival, got %q", got)
	}

	stale := readMessage{conn: oldConn, err: io.ErrClosedPipe, ack: make(chan bool, 1)}
	d.handleCompletion(stale)
	if cont := <-stale.ack; cont {
		t.Fatal("stale completion must not re-arm its read loop")
	}
	select {
	case ev := <-events:
		t.Fatalf("stale completion produced event %q", ev)
	case <-time.After(50 * time.Millisecond):
	}

	// The new connection's own loop is unaffected.
	newHandle := host.lastHandle()
	newHandle.deliver(make([]byte, 8))
	select {
	case ev := <-events:
		if ev != "data" {
			t.Fatalf("expected data event, got %q", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("new connection's read loop stalled")
	}
}

func TestRegistryNotify(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	reg := NewRegistry()

	d := New(host, testIdentity, WithRegistry(reg))
	other := New(host, Identity{VendorID: 1, ProductID: 2}, WithRegistry(reg))
	defer other.Dispose()

	arrived := make(chan struct{}, 1)
	d.OnArrived(func() { arrived <- struct{}{} })

	reg.Notify()
	wait(t, arrived, "arrival via registry notification")
	if len(reg.Devices()) != 2 {
		t.Fatalf("expected 2 registered devices, got %d", len(reg.Devices()))
	}

	d.Dispose()
	if len(reg.Devices()) != 1 {
		t.Fatalf("expected 1 registered device after dispose, got %d", len(reg.Devices()))
	}
	// Slot reuse keeps the arena compact.
	replacement := New(host, Identity{VendorID: 3, ProductID: 4}, WithRegistry(reg))
	defer replacement.Dispose()
	if len(reg.Devices()) != 2 {
		t.Fatalf("expected 2 registered devices after reuse, got %d", len(reg.Devices()))
	}
}

func TestReadLoopRestartsAfterTransientError(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	d := newTestDevice(t, host)

	received := make(chan []byte, 4)
	removed := make(chan struct{}, 4)
	d.OnDataReceived(func(r *Report) {
		received <- append([]byte(nil), r.Bytes()...)
	})
	d.OnRemoved(func() { removed <- struct{}{} })
	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}
	handle := host.lastHandle()

	// The read fails but the device is still enumerable.
	handle.fail(io.ErrUnexpectedEOF)

	// A fresh loop picks up the next report on the same connection.
	handle.deliver([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	select {
	case got := <-received:
		if got[0] != 1 {
			t.Fatalf("unexpected report %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not restart after transient error")
	}
	expectQuiet(t, removed, "removal event for a transient error")
	if !d.Connected() {
		t.Fatal("expected connected state after transient error")
	}
}

func TestDisposeDuringRemovalCheck(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	d := New(host, testIdentity, WithRegistry(NewRegistry()))
	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}

	removed := make(chan struct{}, 4)
	d.OnRemoved(func() { removed <- struct{}{} })

	// The device vanishes; Dispose lands while the presence check is
	// mid-enumeration, after the state snapshot.
	host.setPaths()
	entered, release := host.blockNextEnumeration()
	result := make(chan error, 1)
	go func() { result <- d.CheckPresent() }()
	wait(t, entered, "enumeration to start")
	d.Dispose()
	close(release)

	select {
	case err := <-result:
		if !errors.Is(err, ErrDisposed) {
			t.Fatalf("expected ErrDisposed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("presence check did not return")
	}
	expectQuiet(t, removed, "removal event after dispose")
	if !host.lastHandle().isClosed() {
		t.Fatal("connection handle not released")
	}
}

func TestDisposeDuringConnectCheck(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	d := New(host, testIdentity, WithRegistry(NewRegistry()))

	arrived := make(chan struct{}, 4)
	d.OnArrived(func() { arrived <- struct{}{} })

	// Dispose lands while the presence check is mid-enumeration; the
	// connection it goes on to open must not outlive the device.
	entered, release := host.blockNextEnumeration()
	result := make(chan error, 1)
	go func() { result <- d.CheckPresent() }()
	wait(t, entered, "enumeration to start")
	d.Dispose()
	close(release)

	select {
	case err := <-result:
		if !errors.Is(err, ErrDisposed) {
			t.Fatalf("expected ErrDisposed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("presence check did not return")
	}
	expectQuiet(t, arrived, "arrival event after dispose")
	if d.Connected() {
		t.Fatal("expected disconnected state")
	}
	if !host.lastHandle().isClosed() {
		t.Fatal("freshly opened handle leaked past dispose")
	}
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	d := newTestDevice(t, host)

	order := make(chan int, 8)
	d.OnDataReceived(func(*Report) {
		order <- 1
		// registering during dispatch must not affect the current emit
		d.OnDataReceived(func(*Report) { order <- 3 })
	})
	d.OnDataReceived(func(*Report) { order <- 2 })
	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}

	host.lastHandle().deliver(make([]byte, 8))
	for want := 1; want <= 2; want++ {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("expected handler %d, got %d", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for handlers")
		}
	}
	select {
	case got := <-order:
		t.Fatalf("handler registered during dispatch ran in the same emit: %d", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDisposeIdempotent(t *testing.T) {
	host := newFakeHost()
	host.setPaths(testPath)
	d := New(host, testIdentity, WithRegistry(NewRegistry()))
	if err := d.CheckPresent(); err != nil {
		t.Fatal(err)
	}
	d.Dispose()
	d.Dispose()
	if err := d.CheckPresent(); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
}
