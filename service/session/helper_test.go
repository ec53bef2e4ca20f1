package session

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/gatekeeperhq/gatekeeper/platform/generate"
)

type prepareFunc func(t *testing.T, namespace string) Service

func testServicePut(t *testing.T, p prepareFunc) {
	var (
		enabled   = true
		namespace = "service_put"
		service   = p(t, namespace)
	)

	created, err := service.Put(namespace, testSession())
	if err != nil {
		t.Fatal(err)
	}

	list, err := service.Query(namespace, QueryOptions{
		Enabled: &enabled,
		IDs: []string{
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

	// Revoking flips enabled and keeps the session around for audit.
	revoked := *created
	revoked.Enabled = false

	_, err = service.Put(namespace, &revoked)
	if err != nil {
		t.Fatal(err)
	}

	list, err = service.Query(namespace, QueryOptions{
		Enabled: &enabled,
		IDs: []string{
			created.ID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	list, err = service.Query(namespace, QueryOptions{
		IDs: []string{
			created.ID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 1; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceQuery(t *testing.T, p prepareFunc) {
	var (
		enabled   = true
		namespace = "service_query"
		service   = p(t, namespace)
	)

	ss, err := service.Query(namespace, QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(ss), 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	created, err := service.Put(namespace, testSession())
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range testList() {
		_, err := service.Put(namespace, s)
		if err != nil {
			t.Fatal(err)
		}
	}

	cases := map[*QueryOptions]int{
		{}: 9,
		{DeviceIDs: []string{created.DeviceID}}: 1,
		{Enabled: &enabled}:                     7,
		{IDs: []string{created.ID}}:             1,
		{UserIDs: []uint64{created.UserID}}:     1,
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

func testList() List {
	ss := List{}

	for i := 0; i < 6; i++ {
		ss = append(ss, testSession())
	}

	// Already revoked.
	for i := 0; i < 2; i++ {
		s := testSession()
		s.Enabled = false

		ss = append(ss, s)
	}

	return ss
}

func testSession() *Session {
	return &Session{
		DeviceID: generate.RandomString(24),
		Enabled:  true,
		UserID:   uint64(rand.Int63()),
	}
}
