package device

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/gatekeeperhq/gatekeeper/platform/generate"
)

type prepareFunc func(t *testing.T, namespace string) Service

func testServiceCount(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_count"
		service   = p(t, namespace)
		userID    = uint64(rand.Int63())
	)

	count, err := service.Count(namespace, QueryOptions{
		UserIDs: []uint64{
			userID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, uint(0); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	for i := 0; i < 3; i++ {
		d := testDevice()
		d.UserID = userID

		_, err := service.Put(namespace, d)
		if err != nil {
			t.Fatal(err)
		}
	}

	// Devices of other users must not count towards the quota.
	_, err = service.Put(namespace, testDevice())
	if err != nil {
		t.Fatal(err)
	}

	count, err = service.Count(namespace, QueryOptions{
		UserIDs: []uint64{
			userID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, uint(3); have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceDelete(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_delete"
		service   = p(t, namespace)
	)

	created, err := service.Put(namespace, testDevice())
	if err != nil {
		t.Fatal(err)
	}

	err = service.Delete(namespace, created.ID)
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

	// Deleting an absent device is a no-op.
	err = service.Delete(namespace, created.ID)
	if err != nil {
		t.Fatal(err)
	}
}

func testServicePut(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_put"
		service   = p(t, namespace)
	)

	created, err := service.Put(namespace, testDevice())
	if err != nil {
		t.Fatal(err)
	}

	if created.LastLogin.IsZero() {
		t.Errorf("have zero LastLogin, want default to creation time")
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

	next := *list[0]
	next.LastLogin = time.Now().UTC().Add(time.Hour)

	updated, err := service.Put(namespace, &next)
	if err != nil {
		t.Fatal(err)
	}

	list, err = service.Query(namespace, QueryOptions{
		IDs: []uint64{
			updated.ID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 1; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}
	if have, want := list[0].LastLogin, created.LastLogin; !have.After(want) {
		t.Errorf("have %v, want after %v", have, want)
	}
}

func testServiceQuery(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_query"
		service   = p(t, namespace)
	)

	list, err := service.Query(namespace, QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	created, err := service.Put(namespace, testDevice())
	if err != nil {
		t.Fatal(err)
	}

	for _, d := range testList() {
		_, err := service.Put(namespace, d)
		if err != nil {
			t.Fatal(err)
		}
	}

	cases := map[*QueryOptions]int{
		{}: 10,
		{DeviceIDs: []string{created.DeviceID}}:          1,
		{IDs: []uint64{created.ID}}:                      1,
		{LastLoginBefore: time.Now().UTC().Add(-24 * time.Hour)}: 3,
		{UserIDs: []uint64{created.UserID}}:              1,
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

func testDevice() *Device {
	return &Device{
		DeviceID: generate.RandomString(24),
		UserID:   uint64(rand.Int63()),
	}
}

func testList() []*Device {
	ds := []*Device{}

	for i := 0; i < 6; i++ {
		ds = append(ds, testDevice())
	}

	// Stale installations, unseen for over a month.
	for i := 0; i < 3; i++ {
		d := testDevice()
		d.LastLogin = time.Now().UTC().Add(-31 * 24 * time.Hour)

		ds = append(ds, d)
	}

	return ds
}
