// Package notify delivers the user-facing "login expired" notification raised
// when a token refresh cannot complete.
package notify

import (
	"context"
	"time"
)

const (
	DefaultID    = 1
	DefaultTitle = "Attention!"
	DefaultText  = "Your login has expired.  Please open the app and log back in."
)

// Notification is the message handed to the device's local notification
// scheduler. Reason is diagnostic and not shown to the user.
type Notification struct {
	ID     int       `json:"id"`
	Title  string    `json:"title"`
	Text   string    `json:"text"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Notifier schedules a notification. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Template produces notifications with a fixed id, title and text.
type Template struct {
	ID    int
	Title string
	Text  string
}

// DefaultTemplate returns the stock login-expired message.
func DefaultTemplate() Template {
	return Template{ID: DefaultID, Title: DefaultTitle, Text: DefaultText}
}

// New builds a notification for reason, filling blanks from the defaults.
func (t Template) New(reason string) Notification {
	n := Notification{ID: t.ID, Title: t.Title, Text: t.Text, Reason: reason, At: time.Now()}
	if n.ID == 0 {
		n.ID = DefaultID
	}
	if n.Title == "" {
		n.Title = DefaultTitle
	}
	if n.Text == "" {
		n.Text = DefaultText
	}
	return n
}
