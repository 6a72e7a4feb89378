package event

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Broadcast event names emitted by the location engine.
const (
	Location           = "location"
	MotionChange       = "motionchange"
	ActivityChange     = "activitychange"
	ProviderChange     = "providerchange"
	Geofence           = "geofence"
	GeofencesChange    = "geofenceschange"
	Heartbeat          = "heartbeat"
	HTTP               = "http"
	Schedule           = "schedule"
	Boot               = "boot"
	Terminate          = "terminate"
	ConnectivityChange = "connectivitychange"
	EnabledChange      = "enabledchange"
	PowerSaveChange    = "powersavechange"
	NotificationAction = "notificationaction"
	Authorization      = "authorization"
)

// Event is a decoded broadcast. Status and ResponseText are only meaningful
// for HTTP events.
type Event struct {
	Name         string
	Status       int
	ResponseText string
}

// EventName extracts the event name from a broadcast action such as
// "com.transistorsoft.locationmanager.event.HTTP".
func EventName(action string) string {
	if i := strings.LastIndex(action, "."); i >= 0 {
		action = action[i+1:]
	}
	return strings.ToLower(strings.TrimSpace(action))
}

// IsAuthFailure reports whether an HTTP delivery status means the bearer
// credential was rejected.
func IsAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// Refresher is triggered when a delivery is rejected for authorization.
type Refresher interface {
	Trigger(ctx context.Context) bool
}

// Gate forwards authorization failures from HTTP delivery events to the
// refresher and ignores everything else.
type Gate struct {
	refresher Refresher
	logger    zerolog.Logger
}

func NewGate(refresher Refresher, logger zerolog.Logger) *Gate {
	return &Gate{refresher: refresher, logger: logger}
}

// Handle dispatches one event. It reports whether a refresh was started.
func (g *Gate) Handle(ctx context.Context, evt Event) bool {
	name := strings.ToLower(evt.Name)
	g.logger.Debug().Str("event", name).Msg("BackgroundGeolocation event received")

	if name != HTTP || !IsAuthFailure(evt.Status) {
		return false
	}

	g.logger.Warn().
		Str("event", name).
		Int("status", evt.Status).
		Msg("🔒 HTTP delivery rejected, refreshing token")

	return g.refresher.Trigger(ctx)
}
