package agent

import (
	"time"

	"github.com/kingcoyote/hid/hiddev"
	"github.com/kingcoyote/hid/pkg/bus"
)

type EventType string

const (
	EventArrived  EventType = "arrived"
	EventRemoved  EventType = "removed"
	EventReceived EventType = "received"
	EventSent     EventType = "sent"
)

// Event is what the agent republishes on its bus for every device it
// manages. Data is a copy of the report payload for received/sent
// events.
type Event struct {
	Identity hiddev.Identity `json:"-"`
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Type     EventType       `json:"type"`
	Data     []byte          `json:"data,omitempty"`
	Time     time.Time       `json:"time"`
}

type (
	EventBus       = bus.Bus[hiddev.Identity, Event]
	EventMessage   = bus.Message[hiddev.Identity, Event]
	EventPublisher = bus.Publisher[Event]
)
