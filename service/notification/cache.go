package notification

import (
	"strconv"
	"strings"

	"github.com/gatekeeperhq/gatekeeper/platform/cache"
)

const cacheKeyUnread = "unread"

type cacheService struct {
	counts cache.CountService
	next   Service
}

// CacheMiddleware caches per-user unread counts, the hottest read on badge
// refresh, and keeps them in sync on writes.
func CacheMiddleware(counts cache.CountService) ServiceMiddleware {
	return func(next Service) Service {
		return &cacheService{
			counts: counts,
			next:   next,
		}
	}
}

func (s *cacheService) Count(ns string, opts QueryOptions) (uint, error) {
	if !cacheableCount(opts) {
		return s.next.Count(ns, opts)
	}

	key := unreadKey(opts.UserIDs[0])

	count, err := s.counts.Get(ns, key)
	if err == nil {
		return uint(count), nil
	}

	if !cache.IsKeyNotFound(err) {
		return 0, err
	}

	unread, err := s.next.Count(ns, opts)
	if err != nil {
		return 0, err
	}

	if err := s.counts.Set(ns, key, int(unread)); err != nil {
		return 0, err
	}

	return unread, nil
}

func (s *cacheService) Put(ns string, n *Notification) (*Notification, error) {
	fresh := n.ID == 0

	out, err := s.next.Put(ns, n)
	if err != nil {
		return nil, err
	}

	key := unreadKey(out.UserID)

	// Only adjust warm keys, a cold cache is repopulated from the source on
	// the next Count.
	if _, err := s.counts.Get(ns, key); err != nil {
		if cache.IsKeyNotFound(err) {
			return out, nil
		}

		return nil, err
	}

	switch {
	case fresh && !out.Read:
		if _, err := s.counts.Incr(ns, key); err != nil {
			return nil, err
		}
	case !fresh && out.Read:
		// Callers only flip unread notifications to read, so a plain decrement
		// keeps the count honest.
		if _, err := s.counts.Decr(ns, key); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (s *cacheService) Query(ns string, opts QueryOptions) (List, error) {
	return s.next.Query(ns, opts)
}

func (s *cacheService) Setup(ns string) error {
	return s.next.Setup(ns)
}

func (s *cacheService) Teardown(ns string) error {
	return s.next.Teardown(ns)
}

func cacheableCount(opts QueryOptions) bool {
	return len(opts.UserIDs) == 1 &&
		opts.Read != nil &&
		!*opts.Read &&
		opts.Before.IsZero() &&
		len(opts.IDs) == 0
}

func unreadKey(userID uint64) string {
	return strings.Join([]string{
		entity,
		strconv.FormatUint(userID, 10),
		cacheKeyUnread,
	}, cache.KeySeparator)
}
