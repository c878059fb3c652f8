package hiddev

import "go.uber.org/zap"

// readMessage carries one read completion from the background read
// goroutine into the device's dispatch context. Completions are keyed
// to the connection they were posted against; ack reports whether the
// loop should post the next read.
type readMessage struct {
	conn *connection
	data []byte
	err  error
	ack  chan bool
}

// runReadLoop continuously reads input reports from one connection.
// Exactly one read is outstanding at a time: the next read is not
// posted until the previous completion has been dispatched and
// acknowledged. The loop never recovers from an I/O error on its own;
// the dispatcher converts the failure into a presence re-check and
// restarts the loop when the device turns out to still be there.
func (d *Device) runReadLoop(conn *connection) {
	for {
		buf := make([]byte, conn.inputLength)
		n, err := conn.handle.Read(buf)
		if conn.closed.Load() {
			// Connection torn down while the read was in flight.
			return
		}
		msg := readMessage{conn: conn, err: err, ack: make(chan bool, 1)}
		if err == nil {
			msg.data = buf[:n]
		}
		select {
		case d.readCh <- msg:
		case <-d.done:
			return
		}
		select {
		case cont := <-msg.ack:
			if !cont {
				return
			}
		case <-d.done:
			return
		}
	}
}

// dispatch is the single consumer of read completions for this device.
// It runs from construction until Dispose.
func (d *Device) dispatch() {
	for {
		select {
		case <-d.done:
			return
		case msg := <-d.readCh:
			d.handleCompletion(msg)
		}
	}
}

func (d *Device) handleCompletion(msg readMessage) {
	d.mu.Lock()
	stale := d.conn != msg.conn || msg.conn.closed.Load()
	d.mu.Unlock()
	if stale {
		// A completion from a connection that was already replaced or
		// torn down. Discard it; the buffer must not be attributed to
		// the current connection.
		msg.ack <- false
		return
	}
	if msg.err != nil {
		msg.ack <- false
		d.log.Debug("input read failed", zap.Error(msg.err))
		// Most read failures mean the device is gone. Re-derive the
		// state from a fresh enumeration; the removal event fires from
		// there. The error itself never reaches application code.
		if err := d.CheckPresent(); err != nil {
			d.log.Warn("presence check after read failure", zap.Error(err))
		}
		// The failure was transient when the connection survived the
		// check. The old loop already exited, so start a fresh one.
		d.mu.Lock()
		conn := d.conn
		d.mu.Unlock()
		if conn == msg.conn && !conn.closed.Load() {
			go d.runReadLoop(conn)
		}
		return
	}
	d.emitReceived(d.reports.NewInputReport(msg.data))
	msg.ack <- true
}
