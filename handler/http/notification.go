package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/net/context"

	"github.com/gatekeeperhq/gatekeeper/core"
	"github.com/gatekeeperhq/gatekeeper/service/notification"
)

// NotificationListUser returns the latest notifications of the current user,
// newest first.
func NotificationListUser(fn core.NotificationListUserFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			limit     = 0
			namespace = namespaceFromContext(ctx)
			origin    = originFromContext(ctx)
		)

		if raw := r.URL.Query().Get("limit"); raw != "" {
			l, err := strconv.Atoi(raw)
			if err != nil {
				respondError(w, 0, wrapError(ErrBadRequest, "limit is invalid"))
				return
			}

			limit = l
		}

		ns, err := fn(namespace, origin, limit)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusOK, &payloadNotifications{notifications: ns})
	}
}

// NotificationMarkRead flips an unread notification of the current user to
// read.
func NotificationMarkRead(fn core.NotificationMarkReadFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			namespace = namespaceFromContext(ctx)
			origin    = originFromContext(ctx)
		)

		id, err := strconv.ParseUint(mux.Vars(r)["notificationID"], 10, 64)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		err = fn(namespace, origin, id)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusNoContent, nil)
	}
}

// NotificationUnreadCount returns the number of unread notifications of the
// current user.
func NotificationUnreadCount(fn core.NotificationUnreadCountFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			namespace = namespaceFromContext(ctx)
			origin    = originFromContext(ctx)
		)

		count, err := fn(namespace, origin)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusOK, struct {
			UnreadCount uint `json:"unread_count"`
		}{
			UnreadCount: count,
		})
	}
}

type payloadNotification struct {
	notification *notification.Notification
}

func (p *payloadNotification) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        uint64    `json:"id"`
		IDString  string    `json:"id_string"`
		Message   string    `json:"message"`
		Read      bool      `json:"read"`
		Title     string    `json:"title"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}{
		ID:        p.notification.ID,
		IDString:  strconv.FormatUint(p.notification.ID, 10),
		Message:   p.notification.Message,
		Read:      p.notification.Read,
		Title:     p.notification.Title,
		CreatedAt: p.notification.CreatedAt,
		UpdatedAt: p.notification.UpdatedAt,
	})
}

type payloadNotifications struct {
	notifications notification.List
}

func (p *payloadNotifications) MarshalJSON() ([]byte, error) {
	ns := []*payloadNotification{}

	for _, n := range p.notifications {
		ns = append(ns, &payloadNotification{notification: n})
	}

	return json.Marshal(struct {
		Notifications      []*payloadNotification `json:"notifications"`
		NotificationsCount int                    `json:"notifications_count"`
		UnreadCount        int                    `json:"unread_count"`
	}{
		Notifications:      ns,
		NotificationsCount: len(ns),
		UnreadCount:        p.unread(),
	})
}

func (p *payloadNotifications) unread() int {
	unread := 0

	for _, n := range p.notifications {
		if !n.Read {
			unread++
		}
	}

	return unread
}
