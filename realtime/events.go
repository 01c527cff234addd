package realtime

import "encoding/json"

// Event names a server push or a client emit.
type Event string

const (
	EventCheckinNew         Event = "checkin:new"
	EventAppointmentCreated Event = "appointment:created"
	EventAppointmentUpdated Event = "appointment:updated"
	EventEscalationCreated  Event = "escalation:created"
	EventEscalationUpdated  Event = "escalation:updated"

	// EventJoinRooms asks the server to add this connection to the rooms of
	// a CHW or nurse profile.
	EventJoinRooms Event = "join_rooms"
)

// Frame is the wire envelope used in both directions.
type Frame struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives the raw payload of one event.
type Handler func(data json.RawMessage)

type joinRoomsPayload struct {
	ProfileID int64 `json:"profile_id"`
}

// Status is the connection state of a Channel.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}
