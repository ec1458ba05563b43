// ABOUTME: Notification names and payload shapes emitted by the cache layer
// ABOUTME: Payloads are plain structs so subscribers can type-switch on them

package notify

import (
	"time"

	"github.com/google/uuid"
)

// Name identifies a notification.
type Name string

const (
	Configuring             Name = "configuring"
	Connecting              Name = "connecting"
	Connected               Name = "connected"
	ConnectionError         Name = "connection-error"
	UserLoggedIn            Name = "user-logged-in"
	UserLoggedOut           Name = "user-logged-out"
	UserUpdated             Name = "user-updated"
	LifecycleEventCompleted Name = "lifecycle-event-completed"
	Error                   Name = "error"
	CacheChanged            Name = "cache-changed"
)

// Notification is one emitted notification.
type Notification struct {
	ID      string
	Name    Name
	Payload any
	At      time.Time
}

// New creates a notification with a fresh ID.
func New(name Name, payload any) Notification {
	return Notification{
		ID:      uuid.New().String(),
		Name:    name,
		Payload: payload,
		At:      time.Now(),
	}
}

// ErrorPayload accompanies Error.
type ErrorPayload struct {
	Message string
	Code    string
	Stack   string
}

// LifecycleCompleted accompanies LifecycleEventCompleted.
type LifecycleCompleted struct {
	Event   string
	Actions []string // every action selected for the pass, failed ones included
}

// CacheChange accompanies CacheChanged.
type CacheChange struct {
	Subtree  string
	Mutation string
}
