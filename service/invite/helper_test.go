package invite

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/gatekeeperhq/gatekeeper/platform/generate"
)

type prepareFunc func(t *testing.T, namespace string) Service

func testServiceDelete(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_delete"
		service   = p(t, namespace)
	)

	created, err := service.Put(namespace, testInvite(KindOneTime))
	if err != nil {
		t.Fatal(err)
	}

	err = service.Delete(namespace, created.Kind, created.ID)
	if err != nil {
		t.Fatal(err)
	}

	list, err := service.Query(namespace, QueryOptions{
		IDs: []uint64{
			created.ID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Deleting an absent invite is a no-op.
	err = service.Delete(namespace, KindOneTime, created.ID)
	if err != nil {
		t.Fatal(err)
	}
}

func testServicePut(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_put"
		service   = p(t, namespace)
	)

	created, err := service.Put(namespace, testInvite(KindGroup))
	if err != nil {
		t.Fatal(err)
	}

	if have, want := created.Revision, uint64(1); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	list, err := service.Query(namespace, QueryOptions{
		IDs: []uint64{
			created.ID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 1; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}
	if have, want := list[0], created; !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}

	var (
		stale = *list[0]
		next  = *list[0]
	)

	next.MembersCheckedIn = 1
	next.Status = StatusActive

	updated, err := service.Put(namespace, &next)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := updated.Revision, uint64(2); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	list, err = service.Query(namespace, QueryOptions{
		IDs: []uint64{
			updated.ID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := list[0].Status, StatusActive; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := list[0].MembersCheckedIn, 1; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// A write carrying an outdated revision must not win.
	stale.Status = StatusCheckedOut

	_, err = service.Put(namespace, &stale)
	if have, want := err, ErrConcurrentUpdate; !IsConcurrentUpdate(have) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceQuery(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_query"
		service   = p(t, namespace)
	)

	is, err := service.Query(namespace, QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(is), 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	created, err := service.Put(namespace, testInvite(KindOneTime))
	if err != nil {
		t.Fatal(err)
	}

	for _, i := range testList() {
		_, err := service.Put(namespace, i)
		if err != nil {
			t.Fatal(err)
		}
	}

	cases := map[*QueryOptions]int{
		{}: 14,
		{Addresses: []string{created.Address}}:            1,
		{CreatedBys: []uint64{created.CreatedBy}}:         1,
		{EndBefore: time.Now().UTC()}:                     2,
		{IDs: []uint64{created.ID}}:                       1,
		{Kinds: []Kind{KindGroup}}:                        4,
		{Kinds: []Kind{KindOneTime, KindRecurring}}:       10,
		{Limit: 5}:                                        5,
		{OTPs: []string{created.OTP}}:                     1,
		{Statuses: []Status{StatusCheckedOut}}:            3,
		{Statuses: []Status{StatusPending}, Limit: 100}:   9,
		{Statuses: []Status{StatusPending, StatusActive}}: 11,
	}

	for opts, want := range cases {
		list, err := service.Query(namespace, *opts)
		if err != nil {
			t.Fatal(err)
		}

		if have := len(list); have != want {
			t.Errorf("have %v, want %v for %v", have, want, opts)
		}
	}
}

func testInvite(kind Kind) *Invite {
	i := &Invite{
		Address:      generate.RandomString(16),
		CreatedBy:    uint64(rand.Int63()),
		EndAt:        time.Now().UTC().Add(2 * time.Hour),
		EstateID:     "serenity-gardens",
		Kind:         kind,
		OTP:          generate.OTP(),
		ResidentName: generate.RandomString(12),
		StartAt:      time.Now().UTC().Add(-time.Hour),
		Status:       StatusPending,
	}

	switch kind {
	case KindGroup:
		i.GroupName = generate.RandomString(10)
	default:
		i.VisitorName = generate.RandomString(10)
		i.VisitorPhone = "+2348012345678"
	}

	return i
}

func testList() []*Invite {
	is := []*Invite{}

	for i := 0; i < 4; i++ {
		is = append(is, testInvite(KindOneTime))
	}

	for i := 0; i < 3; i++ {
		is = append(is, testInvite(KindRecurring))
	}

	for i := 0; i < 2; i++ {
		in := testInvite(KindGroup)
		in.MembersCheckedIn = 2
		in.Status = StatusActive

		is = append(is, in)
	}

	for i := 0; i < 2; i++ {
		in := testInvite(KindOneTime)
		in.Status = StatusCheckedOut

		is = append(is, in)
	}

	// Expired but already used, must never show up as sweepable pending.
	in := testInvite(KindGroup)
	in.StartAt = time.Now().UTC().Add(-3 * time.Hour)
	in.EndAt = time.Now().UTC().Add(-time.Hour)
	in.Status = StatusCheckedOut

	is = append(is, in)

	// Expired and still pending.
	in = testInvite(KindGroup)
	in.StartAt = time.Now().UTC().Add(-3 * time.Hour)
	in.EndAt = time.Now().UTC().Add(-time.Hour)

	is = append(is, in)

	return is
}
