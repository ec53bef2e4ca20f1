package device

import (
	"time"

	"github.com/gatekeeperhq/gatekeeper/platform/service"
)

const entity = "device"

// Device binds an account to one authorized client installation. LastLogin is
// touched on every sign-in from that installation.
type Device struct {
	CreatedAt time.Time
	DeviceID  string
	ID        uint64
	LastLogin time.Time
	UpdatedAt time.Time
	UserID    uint64
}

// Validate returns an error when a semantic check fails.
func (d *Device) Validate() error {
	if d.DeviceID == "" {
		return wrapError(ErrInvalidDevice, "DeviceID must be set")
	}

	if d.UserID == 0 {
		return wrapError(ErrInvalidDevice, "UserID must be set")
	}

	return nil
}

// List is a collection of devices.
type List []*Device

// QueryOptions is used to narrow-down device queries.
type QueryOptions struct {
	DeviceIDs       []string
	IDs             []uint64
	LastLoginBefore time.Time
	UserIDs         []uint64
}

// Service for device interactions.
type Service interface {
	service.Lifecycle

	Count(namespace string, opts QueryOptions) (uint, error)
	Delete(namespace string, id uint64) error
	Put(namespace string, device *Device) (*Device, error)
	Query(namespace string, opts QueryOptions) (List, error)
}

// ServiceMiddleware is a chainable behaviour modifier for Service.
type ServiceMiddleware func(Service) Service
