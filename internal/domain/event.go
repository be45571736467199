package domain

// Route keys understood by the lifecycle handler.
const (
	RouteConnect    = "$connect"
	RouteDisconnect = "$disconnect"
	RoutePost       = "post"
)

// Event is the closed set of transport events: ConnectEvent, DisconnectEvent,
// PostEvent, and UnrecognizedEvent for any route key outside that set.
type Event interface{ isEvent() }

type baseEvent struct{}

func (baseEvent) isEvent() {}

type ConnectEvent struct {
	baseEvent
	ConnectionID string
}

type DisconnectEvent struct {
	baseEvent
	ConnectionID string
}

// PostEvent carries a raw body to broadcast. Endpoint addresses the delivery
// channel the transport wants replies routed through; empty means local.
type PostEvent struct {
	baseEvent
	ConnectionID string
	Body         []byte
	Endpoint     string
}

type UnrecognizedEvent struct {
	baseEvent
	RouteKey string
}

// NewEvent maps a transport route key onto its Event variant.
func NewEvent(routeKey, connectionID string, body []byte, endpoint string) Event {
	switch routeKey {
	case RouteConnect:
		return ConnectEvent{ConnectionID: connectionID}
	case RouteDisconnect:
		return DisconnectEvent{ConnectionID: connectionID}
	case RoutePost:
		return PostEvent{ConnectionID: connectionID, Body: body, Endpoint: endpoint}
	default:
		return UnrecognizedEvent{RouteKey: routeKey}
	}
}
