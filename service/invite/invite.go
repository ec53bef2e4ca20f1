package invite

import (
	"time"

	"github.com/gatekeeperhq/gatekeeper/platform/service"
	"github.com/gatekeeperhq/gatekeeper/platform/source"
)

// Kind discriminates the three invite collections.
type Kind int

// Supported invite kinds.
const (
	KindOneTime Kind = iota + 1
	KindRecurring
	KindGroup
)

// Kinds holds all invite kinds in canonical lookup order.
var Kinds = []Kind{KindGroup, KindOneTime, KindRecurring}

// Status of an invite, persisted verbatim.
type Status string

// Invite lifecycle statuses.
const (
	StatusPending    Status = "pending"
	StatusCheckedIn  Status = "checked-in"
	StatusActive     Status = "active"
	StatusPaused     Status = "paused"
	StatusCheckedOut Status = "checked-out"
	StatusCompleted  Status = "completed"
)

var statuses = map[Status]struct{}{
	StatusPending:    {},
	StatusCheckedIn:  {},
	StatusActive:     {},
	StatusPaused:     {},
	StatusCheckedOut: {},
	StatusCompleted:  {},
}

// Invite is a time-boxed visitor access grant secured by an OTP. The zero
// value of EntryAt and ExitAt means the visitor has not passed the gate in
// that direction yet.
type Invite struct {
	Address          string
	CreatedAt        time.Time
	CreatedBy        uint64
	EndAt            time.Time
	EntryAt          time.Time
	EstateID         string
	ExitAt           time.Time
	GroupName        string
	ID               uint64
	Kind             Kind
	MembersCheckedIn int
	OTP              string
	ResidentName     string
	Revision         uint64
	StartAt          time.Time
	Status           Status
	UpdatedAt        time.Time
	VisitorName      string
	VisitorPhone     string
}

// GroupCapable indicates if the invite tracks a member counter.
func (i *Invite) GroupCapable() bool {
	return i.Kind == KindGroup
}

// Recurring indicates if the invite re-arms after a checkout.
func (i *Invite) Recurring() bool {
	return i.Kind == KindRecurring
}

// Validate returns an error when a semantic check fails.
func (i *Invite) Validate() error {
	switch i.Kind {
	case KindOneTime, KindRecurring:
		if i.VisitorName == "" {
			return wrapError(ErrInvalidInvite, "VisitorName must be set")
		}
	case KindGroup:
		if i.GroupName == "" {
			return wrapError(ErrInvalidInvite, "GroupName must be set")
		}
	default:
		return wrapError(ErrInvalidInvite, "Kind '%d' not supported", i.Kind)
	}

	if i.CreatedBy == 0 {
		return wrapError(ErrInvalidInvite, "CreatedBy must be set")
	}

	if len(i.OTP) != 6 {
		return wrapError(ErrInvalidInvite, "OTP must be 6 digits")
	}

	for _, r := range i.OTP {
		if r < '0' || r > '9' {
			return wrapError(ErrInvalidInvite, "OTP must be 6 digits")
		}
	}

	if i.StartAt.IsZero() || i.EndAt.IsZero() || !i.StartAt.Before(i.EndAt) {
		return wrapError(ErrInvalidInvite, "window must satisfy start < end")
	}

	if _, ok := statuses[i.Status]; !ok {
		return wrapError(ErrInvalidInvite, "Status '%s' not supported", i.Status)
	}

	if i.MembersCheckedIn < 0 {
		return wrapError(ErrInvalidInvite, "MembersCheckedIn below zero")
	}

	return nil
}

// List is a collection of Invite.
type List []*Invite

func (l List) Len() int {
	return len(l)
}

func (l List) Less(i, j int) bool {
	return l[i].CreatedAt.After(l[j].CreatedAt)
}

func (l List) Swap(i, j int) {
	l[i], l[j] = l[j], l[i]
}

// QueryOptions to narrow-down Invite queries.
type QueryOptions struct {
	Addresses  []string
	CreatedBys []uint64
	EndBefore  time.Time
	IDs        []uint64
	Kinds      []Kind
	Limit      uint
	OTPs       []string
	Statuses   []Status
}

// Service for Invite interactions.
type Service interface {
	service.Lifecycle

	Delete(namespace string, kind Kind, id uint64) error
	Put(namespace string, invite *Invite) (*Invite, error)
	Query(namespace string, opts QueryOptions) (List, error)
}

// ServiceMiddleware is a chainable behaviour modifier for Service.
type ServiceMiddleware func(Service) Service

// StateChange transports all information necessary to observe invite state
// changes.
type StateChange struct {
	AckID     string
	ID        string
	Namespace string
	New       *Invite
	Old       *Invite
	SentAt    time.Time
}

// Consumer observes state changes.
type Consumer interface {
	Consume() (*StateChange, error)
}

// Producer creates state change notifications.
type Producer interface {
	Propagate(namespace string, old, new *Invite) (string, error)
}

// Source encapsulates state change notification operations.
type Source interface {
	source.Acker
	Consumer
	Producer
}

// SourceMiddleware is a chainable behaviour modifier for Source.
type SourceMiddleware func(Source) Source
