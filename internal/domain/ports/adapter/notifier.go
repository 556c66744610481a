package adapter

import "context"

type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
	NotificationInfo    NotificationLevel = "info"
)

type Notification struct {
	Level          NotificationLevel
	Title          string
	Description    string
	JobKey         string
	CorrelationTag string
}

// Notifier delivers user-facing launch notifications. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
