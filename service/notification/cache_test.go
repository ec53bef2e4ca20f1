package notification

import (
	"math/rand"
	"testing"

	"github.com/gatekeeperhq/gatekeeper/platform/cache"
)

func TestCacheCount(t *testing.T) {
	var (
		counts    = cache.MemCountService()
		namespace = "cache_count"
		service   = CacheMiddleware(counts)(MemService())
		unread    = false
		userID    = uint64(rand.Int63())
	)

	opts := QueryOptions{
		Read: &unread,
		UserIDs: []uint64{
			userID,
		},
	}

	for i := 0; i < 3; i++ {
		n := testNotification()
		n.UserID = userID

		_, err := service.Put(namespace, n)
		if err != nil {
			t.Fatal(err)
		}
	}

	// First count warms the cache from the source.
	count, err := service.Count(namespace, opts)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, uint(3); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	cached, err := counts.Get(namespace, unreadKey(userID))
	if err != nil {
		t.Fatal(err)
	}

	if have, want := cached, 3; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// A fresh unread notification bumps the warm key.
	n := testNotification()
	n.UserID = userID

	created, err := service.Put(namespace, n)
	if err != nil {
		t.Fatal(err)
	}

	count, err = service.Count(namespace, opts)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, uint(4); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Marking read brings it back down.
	created.Read = true

	_, err = service.Put(namespace, created)
	if err != nil {
		t.Fatal(err)
	}

	count, err = service.Count(namespace, opts)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, uint(3); have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}
