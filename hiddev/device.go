package hiddev

import (
	"sync"

	"go.uber.org/zap"
)

// Device is one logical HID device identified by vendor/product ID.
// It tracks the plug/unplug lifecycle of the matching physical device,
// pumps input reports while connected and writes output reports on
// demand. Application code observes it purely through events.
type Device struct {
	log      *zap.Logger
	host     Host
	id       Identity
	matcher  *Matcher
	reports  ReportFactory
	registry *Registry

	// checkMu serializes presence checks so that two overlapping
	// notifications cannot both open a connection.
	checkMu sync.Mutex

	mu         sync.Mutex
	conn       *connection
	regIndex   int
	disposed   bool
	onReceived []func(*Report)
	onSend     []func(*Report)
	onArrived  []func()
	onRemoved  []func()

	readCh chan readMessage
	done   chan struct{}
}

type Option func(*Device)

func WithLogger(log *zap.Logger) Option {
	return func(d *Device) {
		d.log = log
	}
}

// WithReportFactory substitutes the strategy used to build the Report
// values delivered to event handlers.
func WithReportFactory(f ReportFactory) Option {
	return func(d *Device) {
		d.reports = f
	}
}

// WithMatch substitutes the path-matching predicate, see MatchFunc.
func WithMatch(match MatchFunc) Option {
	return func(d *Device) {
		d.matcher = NewMatcher(d.host, match)
	}
}

// WithRegistry registers the device with a registry other than the
// process-wide default.
func WithRegistry(r *Registry) Option {
	return func(d *Device) {
		d.registry = r
	}
}

// New creates a disconnected device and registers it so that
// NotifyPossibleDeviceChange reaches it. Call CheckPresent (or deliver
// a hot-plug notification) to connect.
func New(host Host, id Identity, opts ...Option) *Device {
	d := &Device{
		log:      zap.NewNop(),
		host:     host,
		id:       id,
		reports:  rawReports{},
		registry: DefaultRegistry(),
		readCh:   make(chan readMessage),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.matcher == nil {
		d.matcher = NewMatcher(host, nil)
	}
	d.log = d.log.With(zap.String("device", id.String()))
	d.regIndex = d.registry.add(d)
	go d.dispatch()
	return d
}

func (d *Device) VendorID() uint16 { return d.id.VendorID }

func (d *Device) ProductID() uint16 { return d.id.ProductID }

func (d *Device) Identity() Identity { return d.id }

// Equal reports whether both devices target the same vendor/product
// identity. Connection state is ignored.
func (d *Device) Equal(other *Device) bool {
	return other != nil && d.id == other.id
}

// Connected reports whether a handle to the physical device is open.
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// InputReportLength returns the device-reported input report size in
// bytes, or zero while disconnected.
func (d *Device) InputReportLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return 0
	}
	return d.conn.inputLength
}

// OutputReportLength returns the device-reported output report size in
// bytes, or zero while disconnected.
func (d *Device) OutputReportLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return 0
	}
	return d.conn.outputLength
}

// OnDataReceived registers a handler for inbound reports. Handlers run
// in registration order on the device's dispatch context; the report
// buffer is only valid until the handler returns.
func (d *Device) OnDataReceived(fn func(*Report)) {
	d.mu.Lock()
	d.onReceived = append(d.onReceived, fn)
	d.mu.Unlock()
}

// OnDataSend registers a handler invoked after every successful write.
func (d *Device) OnDataSend(fn func(*Report)) {
	d.mu.Lock()
	d.onSend = append(d.onSend, fn)
	d.mu.Unlock()
}

// OnArrived registers a handler for the Disconnected to Connected
// transition.
func (d *Device) OnArrived(fn func()) {
	d.mu.Lock()
	d.onArrived = append(d.onArrived, fn)
	d.mu.Unlock()
}

// OnRemoved registers a handler for the Connected to Disconnected
// transition.
func (d *Device) OnRemoved(fn func()) {
	d.mu.Lock()
	d.onRemoved = append(d.onRemoved, fn)
	d.mu.Unlock()
}

// CheckPresent re-derives the presence state from a fresh enumeration
// and transitions accordingly: on appearance it opens a connection,
// starts the read loop and emits the arrival event; on disappearance
// it tears the connection down and emits the removal event. It is a
// no-op when the state is unchanged. A connect failure is returned to
// the caller and leaves the device disconnected; the next check
// retries.
func (d *Device) CheckPresent() error {
	d.checkMu.Lock()
	defer d.checkMu.Unlock()

	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return ErrDisposed
	}
	wasConnected := d.conn != nil
	d.mu.Unlock()

	path, err := d.matcher.Find(d.id)
	present := err == nil

	switch {
	case present && !wasConnected:
		conn, err := openConnection(d.host, path)
		if err != nil {
			d.log.Warn("connect attempt failed", zap.String("path", path), zap.Error(err))
			return err
		}
		d.mu.Lock()
		if d.disposed {
			// Dispose ran while the connection was being opened.
			d.mu.Unlock()
			conn.Close()
			return ErrDisposed
		}
		d.conn = conn
		d.mu.Unlock()
		d.log.Debug("device arrived",
			zap.String("path", path),
			zap.Int("inputLength", conn.inputLength),
			zap.Int("outputLength", conn.outputLength))
		go d.runReadLoop(conn)
		d.emitArrived()

	case !present && wasConnected:
		d.mu.Lock()
		conn := d.conn
		d.conn = nil
		d.mu.Unlock()
		if conn == nil {
			// Dispose already tore the connection down.
			return ErrDisposed
		}
		conn.Close()
		d.log.Debug("device removed")
		d.emitRemoved()
	}
	return nil
}

// Send writes one output report. It is a silent no-op while
// disconnected. Data shorter than the device's output report length is
// zero-padded to it.
func (d *Device) Send(data []byte) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return nil
	}
	report := d.reports.NewOutputReport(d.padOutput(data, conn.outputLength))
	return d.sendReport(conn, report)
}

// SendReport writes an already-constructed output report, bypassing
// the report factory.
func (d *Device) SendReport(report *Report) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return nil
	}
	return d.sendReport(conn, report)
}

func (d *Device) sendReport(conn *connection, report *Report) error {
	if _, err := conn.handle.Write(report.Bytes()); err != nil {
		d.log.Warn("output report write failed", zap.Error(err))
		return err
	}
	d.emitSend(report)
	return nil
}

func (d *Device) padOutput(data []byte, length int) []byte {
	if length <= len(data) {
		return data
	}
	padded := make([]byte, length)
	copy(padded, data)
	return padded
}

// Dispose tears down the connection, deregisters the device and stops
// the dispatch context. The device is unusable afterwards.
func (d *Device) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	conn := d.conn
	d.conn = nil
	d.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	d.registry.remove(d.regIndex)
	close(d.done)
}

func (d *Device) emitArrived() {
	for _, fn := range d.snapshotArrived() {
		fn()
	}
}

func (d *Device) emitRemoved() {
	for _, fn := range d.snapshotRemoved() {
		fn()
	}
}

func (d *Device) emitReceived(report *Report) {
	d.mu.Lock()
	handlers := append([]func(*Report){}, d.onReceived...)
	d.mu.Unlock()
	for _, fn := range handlers {
		fn(report)
	}
}

func (d *Device) emitSend(report *Report) {
	d.mu.Lock()
	handlers := append([]func(*Report){}, d.onSend...)
	d.mu.Unlock()
	for _, fn := range handlers {
		fn(report)
	}
}

func (d *Device) snapshotArrived() []func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]func(){}, d.onArrived...)
}

func (d *Device) snapshotRemoved() []func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]func(){}, d.onRemoved...)
}
