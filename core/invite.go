package core

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gatekeeperhq/gatekeeper/platform/clock"
	"github.com/gatekeeperhq/gatekeeper/platform/generate"
	"github.com/gatekeeperhq/gatekeeper/service/invite"
	"github.com/gatekeeperhq/gatekeeper/service/notification"
)

// Action applied to an invite by a gate scan or manual OTP entry.
type Action string

// Supported scan actions.
const (
	ActionFetch    Action = "fetch"
	ActionCheckin  Action = "checkin"
	ActionCheckout Action = "checkout"
)

// IsValid indicates if the action is part of the supported vocabulary.
func (a Action) IsValid() bool {
	switch a {
	case ActionFetch, ActionCheckin, ActionCheckout:
		return true
	}

	return false
}

// Scan payloads are either a URI of this shape carrying an id and otp query
// pair, or a bare OTP typed in at the gate.
const (
	scanScheme = "gatekeeper"
	scanHost   = "invite"
)

// transitionRetries bounds the read-compute-write loop when concurrent scans
// race on the same invite.
const transitionRetries = 3

// InviteCreateFunc stores a new individual or utility invite.
type InviteCreateFunc func(
	namespace string,
	origin Origin,
	input *invite.Invite,
) (*invite.Invite, error)

// InviteCreate validates the access window, equips the invite with a fresh
// OTP and persists it as pending.
func InviteCreate(invites invite.Service) InviteCreateFunc {
	return func(
		namespace string,
		origin Origin,
		input *invite.Invite,
	) (*invite.Invite, error) {
		if input.Kind == invite.KindGroup {
			return nil, wrapError(
				ErrInvalidEntity,
				"group invites are created via their own path",
			)
		}

		return createInvite(invites, namespace, origin, input)
	}
}

// InviteGroupCreateFunc stores a new group invite.
type InviteGroupCreateFunc func(
	namespace string,
	origin Origin,
	input *invite.Invite,
) (*invite.Invite, error)

// InviteGroupCreate validates the access window, equips the group invite with
// a fresh OTP and persists it as pending.
func InviteGroupCreate(invites invite.Service) InviteGroupCreateFunc {
	return func(
		namespace string,
		origin Origin,
		input *invite.Invite,
	) (*invite.Invite, error) {
		input.Kind = invite.KindGroup

		return createInvite(invites, namespace, origin, input)
	}
}

// InviteDeleteFunc removes a pending invite of the issuing resident.
type InviteDeleteFunc func(
	namespace string,
	origin Origin,
	kind invite.Kind,
	id uint64,
) error

// InviteDelete removes an invite as long as it is still pending and owned by
// the origin.
func InviteDelete(invites invite.Service) InviteDeleteFunc {
	return func(
		namespace string,
		origin Origin,
		kind invite.Kind,
		id uint64,
	) error {
		is, err := invites.Query(namespace, invite.QueryOptions{
			IDs: []uint64{
				id,
			},
			Kinds: []invite.Kind{
				kind,
			},
		})
		if err != nil {
			return err
		}

		if len(is) == 0 {
			return wrapError(ErrNotFound, "invite %d", id)
		}

		i := is[0]

		if i.CreatedBy != origin.UserID && !origin.IsBackend() {
			return wrapError(ErrUnauthorized, "invite %d", id)
		}

		if i.Status != invite.StatusPending {
			return wrapError(
				ErrInvalidEntity,
				"only pending invites can be deleted, invite %d is %s",
				id,
				i.Status,
			)
		}

		return invites.Delete(namespace, i.Kind, i.ID)
	}
}

// InviteListAllFunc returns invites across all residents, newest first.
type InviteListAllFunc func(
	namespace string,
	opts invite.QueryOptions,
) (invite.List, error)

// InviteListAll returns invites across all residents for the security side.
func InviteListAll(invites invite.Service) InviteListAllFunc {
	return func(
		namespace string,
		opts invite.QueryOptions,
	) (invite.List, error) {
		return invites.Query(namespace, opts)
	}
}

// InviteListUserFunc returns the invites issued by the origin.
type InviteListUserFunc func(
	namespace string,
	origin Origin,
	opts invite.QueryOptions,
) (invite.List, error)

// InviteListUser returns the invites issued by the origin, newest first.
func InviteListUser(invites invite.Service) InviteListUserFunc {
	return func(
		namespace string,
		origin Origin,
		opts invite.QueryOptions,
	) (invite.List, error) {
		opts.CreatedBys = []uint64{
			origin.UserID,
		}

		return invites.Query(namespace, opts)
	}
}

// InviteResolveScanFunc verifies a scan or OTP entry and applies the
// requested action to the matched invite.
type InviteResolveScanFunc func(
	namespace string,
	payload string,
	action Action,
) (*invite.Invite, error)

// InviteResolveScan resolves the payload to an invite, validates OTP and
// access window and transitions the invite according to the action. The
// issuing resident is notified after a successful transition.
func InviteResolveScan(
	invites invite.Service,
	notifications notification.Service,
	now clock.NowFunc,
) InviteResolveScanFunc {
	return func(
		namespace string,
		payload string,
		action Action,
	) (*invite.Invite, error) {
		if !action.IsValid() {
			return nil, wrapError(ErrInvalidEntity, "action '%s'", action)
		}

		id, otp := parseScanPayload(payload)

		var lastErr error

		for attempt := 0; attempt < transitionRetries; attempt++ {
			i, err := lookupInvite(invites, namespace, id, otp)
			if err != nil {
				return nil, err
			}

			if action == ActionFetch {
				return i, nil
			}

			if id != 0 && otp != "" && i.OTP != otp {
				return nil, wrapError(ErrInvalidOTP, "invite %d", i.ID)
			}

			ts := now()

			// Only pending invites are window-checked. An admitted visitor
			// must keep a check-out path even after the window closed.
			if i.Status == invite.StatusPending &&
				(ts.Before(i.StartAt) || ts.After(i.EndAt)) {
				return nil, wrapError(
					ErrOutsideWindow,
					"%s rejected for invite %d",
					action,
					i.ID,
				)
			}

			next, err := transition(i, action, ts)
			if err != nil {
				return nil, err
			}

			updated, err := invites.Put(namespace, next)
			if err != nil {
				if invite.IsConcurrentUpdate(err) {
					lastErr = err
					continue
				}

				return nil, err
			}

			notifyTransition(notifications, namespace, updated, action)

			return updated, nil
		}

		return nil, lastErr
	}
}

// InviteSweepExpiredFunc deletes invites still pending past their end time
// and reports how many were removed.
type InviteSweepExpiredFunc func(namespace string) (int, error)

// InviteSweepExpired garbage-collects pending invites whose window has
// closed. Non-pending records are never touched.
func InviteSweepExpired(
	invites invite.Service,
	now clock.NowFunc,
) InviteSweepExpiredFunc {
	return func(namespace string) (int, error) {
		is, err := invites.Query(namespace, invite.QueryOptions{
			EndBefore: now(),
			Statuses: []invite.Status{
				invite.StatusPending,
			},
		})
		if err != nil {
			return 0, err
		}

		swept := 0

		for _, i := range is {
			if err := invites.Delete(namespace, i.Kind, i.ID); err != nil {
				return swept, err
			}

			swept++
		}

		return swept, nil
	}
}

func createInvite(
	invites invite.Service,
	namespace string,
	origin Origin,
	input *invite.Invite,
) (*invite.Invite, error) {
	if input.StartAt.IsZero() ||
		input.EndAt.IsZero() ||
		!input.StartAt.Before(input.EndAt) {
		return nil, wrapError(ErrInvalidEntity, "window must satisfy start < end")
	}

	i := *input

	i.CreatedBy = origin.UserID
	i.EntryAt = time.Time{}
	i.ExitAt = time.Time{}
	i.ID = 0
	i.MembersCheckedIn = 0
	i.OTP = generate.OTP()
	i.Revision = 0
	i.Status = invite.StatusPending

	out, err := invites.Put(namespace, &i)
	if err != nil {
		if invite.IsInvalidInvite(err) {
			return nil, wrapError(ErrInvalidEntity, "%s", err)
		}

		return nil, err
	}

	return out, nil
}

func lookupInvite(
	invites invite.Service,
	namespace string,
	id uint64,
	otp string,
) (*invite.Invite, error) {
	opts := invite.QueryOptions{}

	if id != 0 {
		opts.IDs = []uint64{id}
	} else {
		if otp == "" {
			return nil, wrapError(ErrInviteNotFound, "empty payload")
		}

		opts.OTPs = []string{otp}
	}

	is, err := invites.Query(namespace, opts)
	if err != nil {
		return nil, err
	}

	if len(is) == 0 {
		return nil, wrapError(ErrInviteNotFound, "no match for scan")
	}

	return is[0], nil
}

func notifyTransition(
	notifications notification.Service,
	namespace string,
	i *invite.Invite,
	action Action,
) {
	var (
		name    = i.VisitorName
		message = ""
	)

	if i.GroupCapable() {
		name = i.GroupName
	}

	switch action {
	case ActionCheckin:
		if i.GroupCapable() {
			message = fmt.Sprintf(
				"%s checked in, %d currently inside",
				name,
				i.MembersCheckedIn,
			)
		} else {
			message = fmt.Sprintf("%s checked in", name)
		}
	case ActionCheckout:
		if i.GroupCapable() {
			message = fmt.Sprintf(
				"%s checked out, %d currently inside",
				name,
				i.MembersCheckedIn,
			)
		} else {
			message = fmt.Sprintf("%s checked out", name)
		}
	default:
		return
	}

	// Delivery is best effort, failures are observed by the service
	// middlewares and never roll back the transition.
	_, _ = notifications.Put(namespace, &notification.Notification{
		Message: message,
		Title:   "Gate activity",
		UserID:  i.CreatedBy,
	})
}

func parseScanPayload(payload string) (uint64, string) {
	u, err := url.Parse(payload)
	if err != nil || u.Scheme != scanScheme || u.Host != scanHost {
		return 0, strings.TrimSpace(payload)
	}

	q := u.Query()

	id, err := strconv.ParseUint(q.Get("id"), 10, 64)
	if err != nil {
		id = 0
	}

	return id, q.Get("otp")
}

func transition(
	current *invite.Invite,
	action Action,
	ts time.Time,
) (*invite.Invite, error) {
	next := *current

	switch {
	case current.Status == invite.StatusPending && action == ActionCheckin:
		next.EntryAt = ts

		if current.GroupCapable() {
			next.MembersCheckedIn++
			next.Status = invite.StatusActive
		} else {
			next.Status = invite.StatusCheckedIn
		}
	case current.Status == invite.StatusCheckedOut &&
		action == ActionCheckin &&
		current.Recurring():
		// Recurring invites re-arm after a checkout while the window is open.
		if ts.After(current.EndAt) {
			return nil, wrapError(
				ErrOutsideWindow,
				"%s rejected for invite %d",
				action,
				current.ID,
			)
		}

		next.EntryAt = ts
		next.Status = invite.StatusCheckedIn
	case current.Status == invite.StatusActive && action == ActionCheckin:
		next.MembersCheckedIn++
	case current.GroupCapable() &&
		action == ActionCheckout &&
		(current.Status == invite.StatusActive ||
			current.Status == invite.StatusCheckedIn) &&
		current.MembersCheckedIn > 0:
		next.MembersCheckedIn--

		if next.MembersCheckedIn > 0 {
			next.Status = invite.StatusActive
		} else {
			next.Status = invite.StatusPending
		}
	case current.Status == invite.StatusCheckedIn && action == ActionCheckout:
		next.ExitAt = ts
		next.Status = invite.StatusCheckedOut
	default:
		return nil, wrapError(
			ErrInvalidTransition,
			"%s not allowed while %s",
			action,
			current.Status,
		)
	}

	return &next, nil
}
