package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEvent(t *testing.T) {
	tests := []struct {
		name     string
		routeKey string
		want     Event
	}{
		{"connect", RouteConnect, ConnectEvent{ConnectionID: "c1"}},
		{"disconnect", RouteDisconnect, DisconnectEvent{ConnectionID: "c1"}},
		{"post", RoutePost, PostEvent{ConnectionID: "c1", Body: []byte(`{"data":"hi"}`), Endpoint: "api.example.com/prod"}},
		{"unknown", "$default", UnrecognizedEvent{RouteKey: "$default"}},
		{"empty", "", UnrecognizedEvent{RouteKey: ""}},
		{"case sensitive", "POST", UnrecognizedEvent{RouteKey: "POST"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewEvent(tt.routeKey, "c1", []byte(`{"data":"hi"}`), "api.example.com/prod")
			assert.Equal(t, tt.want, got)
		})
	}
}
