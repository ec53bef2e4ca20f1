package notification

import (
	"time"

	"github.com/gatekeeperhq/gatekeeper/platform/service"
)

const entity = "notification"

// Notification is an in-app message for a single user, created by visitor
// activity like check-ins and check-outs.
type Notification struct {
	CreatedAt time.Time
	ID        uint64
	Message   string
	Read      bool
	Title     string
	UpdatedAt time.Time
	UserID    uint64
}

// Validate returns an error when a semantic check fails.
func (n *Notification) Validate() error {
	if n.Message == "" {
		return wrapError(ErrInvalidNotification, "Message must be set")
	}

	if n.UserID == 0 {
		return wrapError(ErrInvalidNotification, "UserID must be set")
	}

	return nil
}

// List is a collection of notifications.
type List []*Notification

func (l List) Len() int {
	return len(l)
}

func (l List) Less(i, j int) bool {
	return l[i].CreatedAt.After(l[j].CreatedAt)
}

func (l List) Swap(i, j int) {
	l[i], l[j] = l[j], l[i]
}

// QueryOptions is used to narrow-down notification queries.
type QueryOptions struct {
	Before  time.Time
	IDs     []uint64
	Limit   int
	Read    *bool
	UserIDs []uint64
}

// Service for notification interactions.
type Service interface {
	service.Lifecycle

	Count(namespace string, opts QueryOptions) (uint, error)
	Put(namespace string, notification *Notification) (*Notification, error)
	Query(namespace string, opts QueryOptions) (List, error)
}

// ServiceMiddleware is a chainable behaviour modifier for Service.
type ServiceMiddleware func(Service) Service
