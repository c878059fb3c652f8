package hiddev

import (
	"errors"
	"sync"

	"go.uber.org/atomic"
)

var errHandleClosed = errors.New("handle closed")

// fakeHost scripts the OS boundary for tests. Every Open returns a
// fresh fakeHandle so connection-instance keying can be observed.
type fakeHost struct {
	mu          sync.Mutex
	paths       []string
	openErr     error
	inLen       int
	outLen      int
	capErr      error
	handles     []*fakeHandle
	gateEntered chan struct{}
	gateRelease chan struct{}

	enumerations     atomic.Int64
	openEnumerations atomic.Int64
}

func newFakeHost() *fakeHost {
	return &fakeHost{inLen: 8, outLen: 8}
}

func (h *fakeHost) setPaths(paths ...string) {
	h.mu.Lock()
	h.paths = paths
	h.mu.Unlock()
}

// blockNextEnumeration makes the next EnumeratePaths call signal
// entered and then wait on release before returning. One-shot.
func (h *fakeHost) blockNextEnumeration() (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	h.mu.Lock()
	h.gateEntered, h.gateRelease = entered, release
	h.mu.Unlock()
	return entered, release
}

func (h *fakeHost) EnumeratePaths() ([]string, error) {
	h.enumerations.Inc()
	h.openEnumerations.Inc()
	defer h.openEnumerations.Dec()
	h.mu.Lock()
	entered, release := h.gateEntered, h.gateRelease
	h.gateEntered, h.gateRelease = nil, nil
	h.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.paths...), nil
}

func (h *fakeHost) Open(path string) (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.openErr != nil {
		return nil, h.openErr
	}
	handle := &fakeHandle{
		path:   path,
		inLen:  h.inLen,
		outLen: h.outLen,
		capErr: h.capErr,
		steps:  make(chan readStep),
		closed: make(chan struct{}),
	}
	h.handles = append(h.handles, handle)
	return handle, nil
}

func (h *fakeHost) lastHandle() *fakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.handles) == 0 {
		return nil
	}
	return h.handles[len(h.handles)-1]
}

type readStep struct {
	data []byte
	err  error
}

type fakeHandle struct {
	path   string
	inLen  int
	outLen int
	capErr error

	steps     chan readStep
	closed    chan struct{}
	closeOnce sync.Once

	reads  atomic.Int64
	mu     sync.Mutex
	writes [][]byte
}

func (f *fakeHandle) ReportLengths() (int, int, error) {
	if f.capErr != nil {
		return 0, 0, f.capErr
	}
	return f.inLen, f.outLen, nil
}

func (f *fakeHandle) Read(buf []byte) (int, error) {
	f.reads.Inc()
	select {
	case step := <-f.steps:
		if step.err != nil {
			return 0, step.err
		}
		return copy(buf, step.data), nil
	case <-f.closed:
		return 0, errHandleClosed
	}
}

func (f *fakeHandle) Write(p []byte) (int, error) {
	select {
	case <-f.closed:
		return 0, errHandleClosed
	default:
	}
	data := append([]byte(nil), p...)
	f.mu.Lock()
	f.writes = append(f.writes, data)
	f.mu.Unlock()
	return len(p), nil
}

func (f *fakeHandle) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
	})
	return nil
}

func (f *fakeHandle) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// deliver blocks until the device's read loop consumes one report.
func (f *fakeHandle) deliver(data []byte) {
	f.steps <- readStep{data: data}
}

// fail blocks until the read loop consumes one read error.
func (f *fakeHandle) fail(err error) {
	f.steps <- readStep{err: err}
}

func (f *fakeHandle) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeHandle) lastWrite() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}
