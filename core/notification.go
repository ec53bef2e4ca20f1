package core

import (
	"github.com/gatekeeperhq/gatekeeper/service/notification"
)

// defaultNotificationLimit caps the feed shown on the resident home screen.
const defaultNotificationLimit = 10

// NotificationListUserFunc returns the latest notifications of the origin.
type NotificationListUserFunc func(
	namespace string,
	origin Origin,
	limit int,
) (notification.List, error)

// NotificationListUser returns the latest notifications of the origin,
// newest first.
func NotificationListUser(
	notifications notification.Service,
) NotificationListUserFunc {
	return func(
		namespace string,
		origin Origin,
		limit int,
	) (notification.List, error) {
		if limit <= 0 {
			limit = defaultNotificationLimit
		}

		return notifications.Query(namespace, notification.QueryOptions{
			Limit: limit,
			UserIDs: []uint64{
				origin.UserID,
			},
		})
	}
}

// NotificationMarkReadFunc flips an unread notification of the origin to
// read.
type NotificationMarkReadFunc func(
	namespace string,
	origin Origin,
	id uint64,
) error

// NotificationMarkRead flips an unread notification of the origin to read.
func NotificationMarkRead(
	notifications notification.Service,
) NotificationMarkReadFunc {
	return func(
		namespace string,
		origin Origin,
		id uint64,
	) error {
		ns, err := notifications.Query(namespace, notification.QueryOptions{
			IDs: []uint64{
				id,
			},
		})
		if err != nil {
			return err
		}

		if len(ns) == 0 {
			return wrapError(ErrNotFound, "notification %d", id)
		}

		n := ns[0]

		if n.UserID != origin.UserID {
			return wrapError(ErrUnauthorized, "notification %d", id)
		}

		if n.Read {
			return nil
		}

		n.Read = true

		_, err = notifications.Put(namespace, n)

		return err
	}
}

// NotificationUnreadCountFunc returns the number of unread notifications of
// the origin.
type NotificationUnreadCountFunc func(
	namespace string,
	origin Origin,
) (uint, error)

// NotificationUnreadCount returns the number of unread notifications of the
// origin.
func NotificationUnreadCount(
	notifications notification.Service,
) NotificationUnreadCountFunc {
	return func(namespace string, origin Origin) (uint, error) {
		unread := false

		return notifications.Count(namespace, notification.QueryOptions{
			Read: &unread,
			UserIDs: []uint64{
				origin.UserID,
			},
		})
	}
}
