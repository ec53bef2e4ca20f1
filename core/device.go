package core

import (
	"strconv"
	"sync"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/gatekeeperhq/gatekeeper/platform/clock"
	"github.com/gatekeeperhq/gatekeeper/platform/generate"
	"github.com/gatekeeperhq/gatekeeper/platform/kv"
	"github.com/gatekeeperhq/gatekeeper/service/device"
	"github.com/gatekeeperhq/gatekeeper/service/session"
)

const (
	// DeviceLimit is the maximum number of authorized installations per
	// account.
	DeviceLimit = 3

	// DeviceInactivityThreshold after which an installation is considered
	// abandoned and swept.
	DeviceInactivityThreshold = 30 * 24 * time.Hour

	// DevicePeriodicCheckGate is the minimum distance between two automated
	// inactivity sweeps.
	DevicePeriodicCheckGate = 24 * time.Hour

	keyDeviceID          = "device.id"
	keyDeviceLastChecked = "device.last_checked"

	// FlagDeviceManagement gates the automated inactivity sweep.
	FlagDeviceManagement = "flags.enableDeviceManagement"
)

// DeviceActiveFunc indicates if the installation has a live device record for
// the user.
type DeviceActiveFunc func(
	namespace string,
	userID uint64,
	deviceID string,
) (bool, error)

// DeviceActive indicates if the installation has a live device record for the
// user.
func DeviceActive(devices device.Service) DeviceActiveFunc {
	return func(
		namespace string,
		userID uint64,
		deviceID string,
	) (bool, error) {
		count, err := devices.Count(namespace, device.QueryOptions{
			DeviceIDs: []string{
				deviceID,
			},
			UserIDs: []uint64{
				userID,
			},
		})
		if err != nil {
			return false, err
		}

		return count > 0, nil
	}
}

// DeviceCurrentIDFunc returns the stable id of this installation, generating
// and persisting one on first call.
type DeviceCurrentIDFunc func() (string, error)

// DeviceCurrentID returns the stable id of this installation.
func DeviceCurrentID(store kv.Store) DeviceCurrentIDFunc {
	return func() (string, error) {
		id, err := store.Get(keyDeviceID)
		if err == nil {
			return id, nil
		}

		if !kv.IsKeyNotFound(err) {
			return "", err
		}

		id = generate.RandomString(24)

		if err := store.Put(keyDeviceID, id); err != nil {
			return "", err
		}

		return id, nil
	}
}

// DeviceListUserFunc returns the authorized installations of the user.
type DeviceListUserFunc func(
	namespace string,
	userID uint64,
) (device.List, error)

// DeviceListUser returns the authorized installations of the user, newest
// first.
func DeviceListUser(devices device.Service) DeviceListUserFunc {
	return func(namespace string, userID uint64) (device.List, error) {
		return devices.Query(namespace, device.QueryOptions{
			UserIDs: []uint64{
				userID,
			},
		})
	}
}

// DeviceRegisterFunc records the installation for the user, touching
// LastLogin on repeat sign-ins and enforcing the device cap on first contact.
type DeviceRegisterFunc func(
	namespace string,
	userID uint64,
	deviceID string,
) error

// DeviceRegister records the installation for the user. Additions are
// serialized per user so concurrent sign-ins cannot exceed the cap.
func DeviceRegister(
	devices device.Service,
	now clock.NowFunc,
) DeviceRegisterFunc {
	locks := userLocks{
		locks: map[uint64]*sync.Mutex{},
	}

	return func(
		namespace string,
		userID uint64,
		deviceID string,
	) error {
		mu := locks.get(userID)

		mu.Lock()
		defer mu.Unlock()

		ds, err := devices.Query(namespace, device.QueryOptions{
			DeviceIDs: []string{
				deviceID,
			},
			UserIDs: []uint64{
				userID,
			},
		})
		if err != nil {
			return err
		}

		if len(ds) > 0 {
			d := ds[0]
			d.LastLogin = now().UTC()

			_, err := devices.Put(namespace, d)

			return err
		}

		count, err := devices.Count(namespace, device.QueryOptions{
			UserIDs: []uint64{
				userID,
			},
		})
		if err != nil {
			return err
		}

		if count >= DeviceLimit {
			return wrapError(
				ErrDeviceLimit,
				"user %d already has %d devices",
				userID,
				count,
			)
		}

		_, err = devices.Put(namespace, &device.Device{
			DeviceID:  deviceID,
			LastLogin: now().UTC(),
			UserID:    userID,
		})
		if err != nil {
			if device.IsInvalidDevice(err) {
				return wrapError(ErrInvalidEntity, "%s", err)
			}
		}

		return err
	}
}

// DeviceRemoveFunc removes the device record and revokes its sessions as one
// logical operation.
type DeviceRemoveFunc func(
	namespace string,
	userID uint64,
	deviceID string,
) error

// DeviceRemove deletes the device record and terminates the live sessions
// issued from it. Both effects are always attempted, the first error
// encountered is surfaced.
func DeviceRemove(
	devices device.Service,
	sessions session.Service,
) DeviceRemoveFunc {
	return func(
		namespace string,
		userID uint64,
		deviceID string,
	) error {
		var first error

		ds, err := devices.Query(namespace, device.QueryOptions{
			DeviceIDs: []string{
				deviceID,
			},
			UserIDs: []uint64{
				userID,
			},
		})
		if err != nil {
			first = err
		}

		for _, d := range ds {
			if err := devices.Delete(namespace, d.ID); err != nil && first == nil {
				first = err
			}
		}

		if err := revokeSessions(sessions, namespace, userID, deviceID); err != nil &&
			first == nil {
			first = err
		}

		return first
	}
}

// DeviceRemoveInactiveFunc sweeps devices unseen past the inactivity
// threshold and reports how many were removed.
type DeviceRemoveInactiveFunc func(namespace string) (int, error)

// DeviceRemoveInactive applies the unified removal to every device whose
// LastLogin is older than the inactivity threshold. Individual failures are
// logged and tolerated, the batch always runs to completion.
func DeviceRemoveInactive(
	devices device.Service,
	sessions session.Service,
	logger log.Logger,
	now clock.NowFunc,
) DeviceRemoveInactiveFunc {
	remove := DeviceRemove(devices, sessions)

	return func(namespace string) (int, error) {
		ds, err := devices.Query(namespace, device.QueryOptions{
			LastLoginBefore: now().UTC().Add(-DeviceInactivityThreshold),
		})
		if err != nil {
			return 0, err
		}

		removed := 0

		for _, d := range ds {
			if err := remove(namespace, d.UserID, d.DeviceID); err != nil {
				_ = logger.Log(
					"device_id", d.DeviceID,
					"err", err,
					"method", "DeviceRemoveInactive",
					"namespace", namespace,
					"user_id", d.UserID,
				)

				continue
			}

			removed++
		}

		return removed, nil
	}
}

// DevicePeriodicCheckFunc runs the inactivity sweep at most once per gate
// period, if the feature is enabled.
type DevicePeriodicCheckFunc func(namespace string) (int, error)

// DevicePeriodicCheck runs the inactivity sweep behind the device management
// feature flag, tracking the last run in the local store so it fires at most
// once per rolling 24 hours.
func DevicePeriodicCheck(
	store kv.Store,
	removeInactive DeviceRemoveInactiveFunc,
	now clock.NowFunc,
) DevicePeriodicCheckFunc {
	return func(namespace string) (int, error) {
		enabled, err := flagEnabled(store, FlagDeviceManagement)
		if err != nil {
			return 0, err
		}

		if !enabled {
			return 0, nil
		}

		ts := now().UTC()

		last, err := lastChecked(store)
		if err != nil {
			return 0, err
		}

		if !last.IsZero() && ts.Sub(last) < DevicePeriodicCheckGate {
			return 0, nil
		}

		removed, err := removeInactive(namespace)
		if err != nil {
			return 0, err
		}

		err = store.Put(
			keyDeviceLastChecked,
			strconv.FormatInt(ts.Unix(), 10),
		)
		if err != nil {
			return removed, err
		}

		return removed, nil
	}
}

func flagEnabled(store kv.Store, key string) (bool, error) {
	v, err := store.Get(key)
	if err != nil {
		if kv.IsKeyNotFound(err) {
			return false, nil
		}

		return false, err
	}

	return v == "true", nil
}

func lastChecked(store kv.Store) (time.Time, error) {
	v, err := store.Get(keyDeviceLastChecked)
	if err != nil {
		if kv.IsKeyNotFound(err) {
			return time.Time{}, nil
		}

		return time.Time{}, err
	}

	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, wrapError(ErrInvalidEntity, "last checked '%s'", v)
	}

	return time.Unix(secs, 0).UTC(), nil
}

func revokeSessions(
	sessions session.Service,
	namespace string,
	userID uint64,
	deviceID string,
) error {
	enabled := true

	ss, err := sessions.Query(namespace, session.QueryOptions{
		DeviceIDs: []string{
			deviceID,
		},
		Enabled: &enabled,
		UserIDs: []uint64{
			userID,
		},
	})
	if err != nil {
		return err
	}

	for _, s := range ss {
		s.Enabled = false

		if _, err := sessions.Put(namespace, s); err != nil {
			return err
		}
	}

	return nil
}

type userLocks struct {
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

func (l *userLocks) get(userID uint64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.locks[userID]; !ok {
		l.locks[userID] = &sync.Mutex{}
	}

	return l.locks[userID]
}
