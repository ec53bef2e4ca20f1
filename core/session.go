package core

import (
	"github.com/gatekeeperhq/gatekeeper/service/session"
)

// SessionCreateFunc registers the origin device and issues a session for it.
type SessionCreateFunc func(
	namespace string,
	origin Origin,
) (*session.Session, error)

// SessionCreate registers the device, enforcing the cap, and creates the
// session in one flow.
func SessionCreate(
	sessions session.Service,
	register DeviceRegisterFunc,
) SessionCreateFunc {
	return func(
		namespace string,
		origin Origin,
	) (*session.Session, error) {
		deviceID := origin.DeviceID
		if deviceID == "" {
			deviceID = session.DeviceIDUnknown
		}

		if err := register(namespace, origin.UserID, deviceID); err != nil {
			return nil, err
		}

		s, err := sessions.Put(namespace, &session.Session{
			DeviceID: deviceID,
			Enabled:  true,
			UserID:   origin.UserID,
		})
		if err != nil {
			if session.IsInvalidSession(err) {
				return nil, wrapError(ErrInvalidEntity, "%s", err)
			}

			return nil, err
		}

		return s, nil
	}
}

// SessionTerminateFunc revokes the session stored under id.
type SessionTerminateFunc func(
	namespace string,
	origin Origin,
	id string,
) error

// SessionTerminate revokes the session stored under id, if it belongs to the
// origin.
func SessionTerminate(sessions session.Service) SessionTerminateFunc {
	return func(
		namespace string,
		origin Origin,
		id string,
	) error {
		ss, err := sessions.Query(namespace, session.QueryOptions{
			IDs: []string{
				id,
			},
			UserIDs: []uint64{
				origin.UserID,
			},
		})
		if err != nil {
			return err
		}

		if len(ss) == 0 {
			return wrapError(ErrNotFound, "session %s", id)
		}

		s := ss[0]
		s.Enabled = false

		_, err = sessions.Put(namespace, s)

		return err
	}
}
