package notification

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
		unread    = false
		userID    = uint64(rand.Int63())
	)

	for i := 0; i < 4; i++ {
		n := testNotification()
		n.UserID = userID

		_, err := service.Put(namespace, n)
		if err != nil {
			t.Fatal(err)
		}
	}

	read := testNotification()
	read.Read = true
	read.UserID = userID

	_, err := service.Put(namespace, read)
	if err != nil {
		t.Fatal(err)
	}

	// Other users must not bleed into the count.
	_, err = service.Put(namespace, testNotification())
	if err != nil {
		t.Fatal(err)
	}

	count, err := service.Count(namespace, QueryOptions{
		Read: &unread,
		UserIDs: []uint64{
			userID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, uint(4); have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServicePut(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_put"
		service   = p(t, namespace)
	)

	created, err := service.Put(namespace, testNotification())
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

	if have, want := len(list), 1; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}
	if have, want := list[0], created; !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}

	next := *list[0]
	next.Read = true

	_, err = service.Put(namespace, &next)
	if err != nil {
		t.Fatal(err)
	}

	list, err = service.Query(namespace, QueryOptions{
		IDs: []uint64{
			created.ID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := list[0].Read, true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceQuery(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_query"
		read      = true
		service   = p(t, namespace)
	)

	list, err := service.Query(namespace, QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	created, err := service.Put(namespace, testNotification())
	if err != nil {
		t.Fatal(err)
	}

	for _, n := range testList() {
		_, err := service.Put(namespace, n)
		if err != nil {
			t.Fatal(err)
		}
	}

	cases := map[*QueryOptions]int{
		{}: 10,
		{IDs: []uint64{created.ID}}:         1,
		{Limit: 3}:                          3,
		{Read: &read}:                       2,
		{UserIDs: []uint64{created.UserID}}: 1,
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

	list, err = service.Query(namespace, QueryOptions{Limit: 100})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < len(list)-1; i++ {
		if list[i].CreatedAt.Before(list[i+1].CreatedAt) {
			t.Errorf(
				"have %v before %v, want descending",
				list[i].CreatedAt,
				list[i+1].CreatedAt,
			)
		}
	}
}

func testNotification() *Notification {
	return &Notification{
		CreatedAt: time.Now().UTC().Add(-time.Duration(rand.Intn(3600)) * time.Second),
		Message:   generate.RandomString(32),
		Title:     "Visitor checked in",
		UserID:    uint64(rand.Int63()),
	}
}

func testList() List {
	list := List{}

	for i := 0; i < 7; i++ {
		list = append(list, testNotification())
	}

	for i := 0; i < 2; i++ {
		n := testNotification()
		n.Read = true

		list = append(list, n)
	}

	return list
}
