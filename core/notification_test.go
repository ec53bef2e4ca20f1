package core

import (
	"testing"

	"github.com/gatekeeperhq/gatekeeper/service/notification"
)

func TestNotificationListUser(t *testing.T) {
	var (
		notifications = notification.MemService()
		namespace     = "notification_list"
		origin        = testOrigin()
		fn            = NotificationListUser(notifications)
	)

	for i := 0; i < 12; i++ {
		_, err := notifications.Put(namespace, &notification.Notification{
			Message: "A visitor arrived",
			Title:   "Gate activity",
			UserID:  origin.UserID,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	_, err := notifications.Put(namespace, &notification.Notification{
		Message: "Someone else's visitor",
		Title:   "Gate activity",
		UserID:  testOrigin().UserID,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Default limit caps the feed at ten.
	list, err := fn(namespace, origin, 0)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), defaultNotificationLimit; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	for _, n := range list {
		if have, want := n.UserID, origin.UserID; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
	}
}

func TestNotificationMarkRead(t *testing.T) {
	var (
		notifications = notification.MemService()
		namespace     = "notification_mark"
		origin        = testOrigin()
		markRead      = NotificationMarkRead(notifications)
		unreadCount   = NotificationUnreadCount(notifications)
	)

	created, err := notifications.Put(namespace, &notification.Notification{
		Message: "A visitor arrived",
		Title:   "Gate activity",
		UserID:  origin.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}

	count, err := unreadCount(namespace, origin)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, uint(1); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Foreign origins must not mark.
	err = markRead(namespace, testOrigin(), created.ID)
	if have, want := err, ErrUnauthorized; !IsUnauthorized(have) {
		t.Errorf("have %v, want %v", have, want)
	}

	if err := markRead(namespace, origin, created.ID); err != nil {
		t.Fatal(err)
	}

	// Marking twice is a no-op.
	if err := markRead(namespace, origin, created.ID); err != nil {
		t.Fatal(err)
	}

	count, err = unreadCount(namespace, origin)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, uint(0); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	err = markRead(namespace, origin, created.ID+1)
	if have, want := err, ErrNotFound; !IsNotFound(have) {
		t.Errorf("have %v, want %v", have, want)
	}
}
