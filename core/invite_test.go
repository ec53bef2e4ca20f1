package core

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/gatekeeperhq/gatekeeper/service/invite"
	"github.com/gatekeeperhq/gatekeeper/service/notification"
)

func TestInviteCreate(t *testing.T) {
	var (
		invites   = invite.MemService()
		namespace = "invite_create"
		origin    = testOrigin()
		fn        = InviteCreate(invites)
	)

	created, err := fn(namespace, origin, testInviteInput(invite.KindOneTime))
	if err != nil {
		t.Fatal(err)
	}

	if have, want := created.CreatedBy, origin.UserID; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := created.Status, invite.StatusPending; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := len(created.OTP), 6; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	for _, r := range created.OTP {
		if r < '0' || r > '9' {
			t.Errorf("have %q, want digits only", created.OTP)
		}
	}

	// Group invites have a dedicated create path.
	_, err = fn(namespace, origin, testInviteInput(invite.KindGroup))
	if have, want := err, ErrInvalidEntity; !IsInvalidEntity(have) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteCreateInvalidWindow(t *testing.T) {
	var (
		invites   = invite.MemService()
		namespace = "invite_create_window"
		origin    = testOrigin()
		fn        = InviteCreate(invites)
	)

	input := testInviteInput(invite.KindOneTime)
	input.EndAt = input.StartAt.Add(-time.Hour)

	_, err := fn(namespace, origin, input)
	if have, want := err, ErrInvalidEntity; !IsInvalidEntity(have) {
		t.Errorf("have %v, want %v", have, want)
	}

	// The rejection must happen before any write.
	is, err := invites.Query(namespace, invite.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(is), 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteGroupCreate(t *testing.T) {
	var (
		invites   = invite.MemService()
		namespace = "invite_group_create"
		origin    = testOrigin()
		fn        = InviteGroupCreate(invites)
	)

	input := testInviteInput(invite.KindGroup)
	input.Kind = 0

	created, err := fn(namespace, origin, input)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := created.Kind, invite.KindGroup; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := created.Status, invite.StatusPending; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := created.MembersCheckedIn, 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteDelete(t *testing.T) {
	var (
		invites   = invite.MemService()
		namespace = "invite_delete"
		origin    = testOrigin()
		create    = InviteCreate(invites)
		fn        = InviteDelete(invites)
	)

	created, err := create(namespace, origin, testInviteInput(invite.KindOneTime))
	if err != nil {
		t.Fatal(err)
	}

	// Foreign origins must not delete.
	err = fn(namespace, testOrigin(), created.Kind, created.ID)
	if have, want := err, ErrUnauthorized; !IsUnauthorized(have) {
		t.Errorf("have %v, want %v", have, want)
	}

	err = fn(namespace, origin, created.Kind, created.ID)
	if err != nil {
		t.Fatal(err)
	}

	err = fn(namespace, origin, created.Kind, created.ID)
	if have, want := err, ErrNotFound; !IsNotFound(have) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteDeleteNonPending(t *testing.T) {
	var (
		invites       = invite.MemService()
		notifications = notification.MemService()
		namespace     = "invite_delete_nonpending"
		origin        = testOrigin()
		now           = time.Now().UTC()
		create        = InviteCreate(invites)
		scan          = InviteResolveScan(invites, notifications, fixedClock(&now))
		fn            = InviteDelete(invites)
	)

	created, err := create(namespace, origin, testInviteInput(invite.KindOneTime))
	if err != nil {
		t.Fatal(err)
	}

	_, err = scan(namespace, scanURI(created), ActionCheckin)
	if err != nil {
		t.Fatal(err)
	}

	err = fn(namespace, origin, created.Kind, created.ID)
	if have, want := err, ErrInvalidEntity; !IsInvalidEntity(have) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteListUser(t *testing.T) {
	var (
		invites   = invite.MemService()
		namespace = "invite_list_user"
		origin    = testOrigin()
		create    = InviteCreate(invites)
		fn        = InviteListUser(invites)
	)

	for i := 0; i < 3; i++ {
		_, err := create(namespace, origin, testInviteInput(invite.KindOneTime))
		if err != nil {
			t.Fatal(err)
		}
	}

	_, err := create(namespace, testOrigin(), testInviteInput(invite.KindOneTime))
	if err != nil {
		t.Fatal(err)
	}

	list, err := fn(namespace, origin, invite.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 3; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	for _, i := range list {
		if have, want := i.CreatedBy, origin.UserID; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
	}
}

func TestInviteResolveScanFetch(t *testing.T) {
	var (
		invites       = invite.MemService()
		notifications = notification.MemService()
		namespace     = "scan_fetch"
		origin        = testOrigin()
		now           = time.Now().UTC()
		create        = InviteCreate(invites)
		fn            = InviteResolveScan(invites, notifications, fixedClock(&now))
	)

	created, err := create(namespace, origin, testInviteInput(invite.KindOneTime))
	if err != nil {
		t.Fatal(err)
	}

	// Fetch via the full URI payload.
	fetched, err := fn(namespace, scanURI(created), ActionFetch)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := fetched, created; !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}

	// Fetch via bare OTP entry.
	fetched, err = fn(namespace, created.OTP, ActionFetch)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := fetched.ID, created.ID; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteResolveScanNotFound(t *testing.T) {
	var (
		invites       = invite.MemService()
		notifications = notification.MemService()
		namespace     = "scan_not_found"
		now           = time.Now().UTC()
		fn            = InviteResolveScan(invites, notifications, fixedClock(&now))
	)

	_, err := fn(namespace, "123456", ActionCheckin)
	if have, want := err, ErrInviteNotFound; !IsInviteNotFound(have) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteResolveScanInvalidOTP(t *testing.T) {
	var (
		invites       = invite.MemService()
		notifications = notification.MemService()
		namespace     = "scan_invalid_otp"
		origin        = testOrigin()
		now           = time.Now().UTC()
		create        = InviteCreate(invites)
		fn            = InviteResolveScan(invites, notifications, fixedClock(&now))
	)

	created, err := create(namespace, origin, testInviteInput(invite.KindOneTime))
	if err != nil {
		t.Fatal(err)
	}

	payload := fmt.Sprintf(
		"gatekeeper://invite?id=%d&otp=000000",
		created.ID,
	)

	_, err = fn(namespace, payload, ActionCheckin)
	if have, want := err, ErrInvalidOTP; !IsInvalidOTP(have) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteResolveScanScenario(t *testing.T) {
	var (
		invites       = invite.MemService()
		notifications = notification.MemService()
		namespace     = "scan_scenario"
		origin        = testOrigin()
		base          = time.Now().UTC()
		now           = base
		create        = InviteCreate(invites)
		fn            = InviteResolveScan(invites, notifications, fixedClock(&now))
	)

	input := testInviteInput(invite.KindOneTime)
	input.StartAt = base.Add(time.Minute)
	input.EndAt = base.Add(time.Hour)

	created, err := create(namespace, origin, input)
	if err != nil {
		t.Fatal(err)
	}

	// Too early.
	now = base.Add(30 * time.Second)

	_, err = fn(namespace, scanURI(created), ActionCheckin)
	if have, want := err, ErrOutsideWindow; !IsOutsideWindow(have) {
		t.Errorf("have %v, want %v", have, want)
	}

	// Inside the window.
	now = base.Add(2 * time.Minute)

	checkedIn, err := fn(namespace, scanURI(created), ActionCheckin)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := checkedIn.Status, invite.StatusCheckedIn; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := checkedIn.EntryAt, base.Add(2*time.Minute); !have.Equal(want) {
		t.Errorf("have %v, want %v", have, want)
	}

	now = base.Add(10 * time.Minute)

	checkedOut, err := fn(namespace, scanURI(created), ActionCheckout)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := checkedOut.Status, invite.StatusCheckedOut; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := checkedOut.ExitAt, base.Add(10*time.Minute); !have.Equal(want) {
		t.Errorf("have %v, want %v", have, want)
	}

	// Terminal, any further action is rejected.
	now = base.Add(11 * time.Minute)

	_, err = fn(namespace, scanURI(created), ActionCheckout)
	if have, want := err, ErrInvalidTransition; !IsInvalidTransition(have) {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = fn(namespace, scanURI(created), ActionCheckin)
	if have, want := err, ErrInvalidTransition; !IsInvalidTransition(have) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteResolveScanRecurring(t *testing.T) {
	var (
		invites       = invite.MemService()
		notifications = notification.MemService()
		namespace     = "scan_recurring"
		origin        = testOrigin()
		base          = time.Now().UTC()
		now           = base
		create        = InviteCreate(invites)
		fn            = InviteResolveScan(invites, notifications, fixedClock(&now))
	)

	input := testInviteInput(invite.KindRecurring)
	input.StartAt = base.Add(-time.Hour)
	input.EndAt = base.Add(time.Hour)

	created, err := create(namespace, origin, input)
	if err != nil {
		t.Fatal(err)
	}

	// Check in and out repeatedly inside the window, each cycle stamps a
	// fresh entry time.
	for cycle := 1; cycle <= 3; cycle++ {
		now = base.Add(time.Duration(cycle) * 10 * time.Minute)

		checkedIn, err := fn(namespace, scanURI(created), ActionCheckin)
		if err != nil {
			t.Fatal(err)
		}

		if have, want := checkedIn.Status, invite.StatusCheckedIn; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
		if have, want := checkedIn.EntryAt, now; !have.Equal(want) {
			t.Errorf("have %v, want %v", have, want)
		}

		checkedOut, err := fn(namespace, scanURI(created), ActionCheckout)
		if err != nil {
			t.Fatal(err)
		}

		if have, want := checkedOut.Status, invite.StatusCheckedOut; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
	}

	// Past the window the invite does not re-arm.
	now = base.Add(2 * time.Hour)

	_, err = fn(namespace, scanURI(created), ActionCheckin)
	if have, want := err, ErrOutsideWindow; !IsOutsideWindow(have) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteResolveScanGroup(t *testing.T) {
	var (
		invites       = invite.MemService()
		notifications = notification.MemService()
		namespace     = "scan_group"
		origin        = testOrigin()
		now           = time.Now().UTC()
		create        = InviteGroupCreate(invites)
		fn            = InviteResolveScan(invites, notifications, fixedClock(&now))
	)

	created, err := create(namespace, origin, testInviteInput(invite.KindGroup))
	if err != nil {
		t.Fatal(err)
	}

	// Three members in.
	for want := 1; want <= 3; want++ {
		i, err := fn(namespace, scanURI(created), ActionCheckin)
		if err != nil {
			t.Fatal(err)
		}

		if have := i.MembersCheckedIn; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
		if have, want := i.Status, invite.StatusActive; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
	}

	// Two members out, the group stays active.
	for want := 2; want >= 1; want-- {
		i, err := fn(namespace, scanURI(created), ActionCheckout)
		if err != nil {
			t.Fatal(err)
		}

		if have := i.MembersCheckedIn; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
		if have, want := i.Status, invite.StatusActive; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
	}

	// Last member out, the group is ready to restart.
	i, err := fn(namespace, scanURI(created), ActionCheckout)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := i.MembersCheckedIn, 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := i.Status, invite.StatusPending; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// The counter never goes below zero.
	_, err = fn(namespace, scanURI(created), ActionCheckout)
	if have, want := err, ErrInvalidTransition; !IsInvalidTransition(have) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteResolveScanNotifies(t *testing.T) {
	var (
		invites       = invite.MemService()
		notifications = notification.MemService()
		namespace     = "scan_notifies"
		origin        = testOrigin()
		now           = time.Now().UTC()
		create        = InviteCreate(invites)
		fn            = InviteResolveScan(invites, notifications, fixedClock(&now))
	)

	created, err := create(namespace, origin, testInviteInput(invite.KindOneTime))
	if err != nil {
		t.Fatal(err)
	}

	_, err = fn(namespace, scanURI(created), ActionCheckin)
	if err != nil {
		t.Fatal(err)
	}

	ns, err := notifications.Query(namespace, notification.QueryOptions{
		UserIDs: []uint64{
			origin.UserID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(ns), 1; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}
	if have, want := ns[0].Read, false; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteSweepExpired(t *testing.T) {
	var (
		invites       = invite.MemService()
		notifications = notification.MemService()
		namespace     = "sweep_expired"
		origin        = testOrigin()
		base          = time.Now().UTC()
		now           = base
		create        = InviteCreate(invites)
		scan          = InviteResolveScan(invites, notifications, fixedClock(&now))
		fn            = InviteSweepExpired(invites, fixedClock(&now))
	)

	// Two invites expire while pending, one is still open, one is checked in
	// past its window.
	for i := 0; i < 2; i++ {
		input := testInviteInput(invite.KindOneTime)
		input.StartAt = base.Add(-2 * time.Hour)
		input.EndAt = base.Add(-time.Hour)

		_, err := create(namespace, origin, input)
		if err != nil {
			t.Fatal(err)
		}
	}

	openInput := testInviteInput(invite.KindOneTime)
	openInput.EndAt = base.Add(4 * time.Hour)

	open, err := create(namespace, origin, openInput)
	if err != nil {
		t.Fatal(err)
	}

	admitted, err := create(namespace, origin, testInviteInput(invite.KindRecurring))
	if err != nil {
		t.Fatal(err)
	}

	_, err = scan(namespace, scanURI(admitted), ActionCheckin)
	if err != nil {
		t.Fatal(err)
	}

	now = base.Add(3 * time.Hour)

	swept, err := fn(namespace)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := swept, 2; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// The open invite and the admitted visitor survive, the latter even
	// though its window has closed.
	left, err := invites.Query(namespace, invite.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(left), 2; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}

	for _, i := range left {
		if i.ID != open.ID && i.ID != admitted.ID {
			t.Errorf("have %v, want %v or %v", i.ID, open.ID, admitted.ID)
		}
	}
}

func fixedClock(ts *time.Time) func() time.Time {
	return func() time.Time {
		return *ts
	}
}

func scanURI(i *invite.Invite) string {
	return fmt.Sprintf("gatekeeper://invite?id=%d&otp=%s", i.ID, i.OTP)
}

func testInviteInput(kind invite.Kind) *invite.Invite {
	i := &invite.Invite{
		Address:      "4 Palm Close",
		EndAt:        time.Now().UTC().Add(2 * time.Hour),
		EstateID:     "serenity-gardens",
		Kind:         kind,
		ResidentName: "A. Resident",
		StartAt:      time.Now().UTC().Add(-time.Hour),
	}

	switch kind {
	case invite.KindGroup:
		i.GroupName = "Birthday guests"
	default:
		i.VisitorName = "B. Visitor"
		i.VisitorPhone = "+2348012345678"
	}

	return i
}

func testOrigin() Origin {
	return Origin{
		DeviceID: fmt.Sprintf("install-%d", rand.Int63()),
		UserID:   uint64(rand.Int63()),
	}
}
