package types

import "time"

type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
)

// Notification is a transient user-facing message emitted by the synchronizer.
type Notification struct {
	SessionID  string            `json:"session_id"`
	ProjectRef string            `json:"project_ref"`
	Level      NotificationLevel `json:"level"`
	Message    string            `json:"message"`
	Detail     string            `json:"detail,omitempty"`
	At         time.Time         `json:"at"`
}
