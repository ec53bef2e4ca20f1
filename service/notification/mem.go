package notification

import (
	"sort"
	"time"

	"github.com/gatekeeperhq/gatekeeper/platform/flake"
)

type memService struct {
	notifications map[string]map[uint64]*Notification
}

// MemService returns a memory based Service implementation.
func MemService() Service {
	return &memService{
		notifications: map[string]map[uint64]*Notification{},
	}
}

func (s *memService) Count(ns string, opts QueryOptions) (uint, error) {
	if err := s.Setup(ns); err != nil {
		return 0, err
	}

	return uint(len(filterList(s.notifications[ns], opts))), nil
}

func (s *memService) Put(ns string, n *Notification) (*Notification, error) {
	if err := s.Setup(ns); err != nil {
		return nil, err
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}

	bucket := s.notifications[ns]

	if n.ID == 0 {
		id, err := flake.NextID(flake.Namespace(ns, entity))
		if err != nil {
			return nil, err
		}

		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}

		n.ID = id
		n.UpdatedAt = n.CreatedAt
	} else {
		cur, ok := bucket[n.ID]
		if !ok {
			return nil, wrapError(ErrNotFound, "notification %d", n.ID)
		}

		n.CreatedAt = cur.CreatedAt
		n.UpdatedAt = time.Now().UTC()
	}

	bucket[n.ID] = copyNotification(n)

	return copyNotification(n), nil
}

func (s *memService) Query(ns string, opts QueryOptions) (List, error) {
	if err := s.Setup(ns); err != nil {
		return nil, err
	}

	list := filterList(s.notifications[ns], opts)

	sort.Sort(list)

	if opts.Limit > 0 && len(list) > opts.Limit {
		list = list[:opts.Limit]
	}

	return list, nil
}

func (s *memService) Setup(ns string) error {
	if _, ok := s.notifications[ns]; !ok {
		s.notifications[ns] = map[uint64]*Notification{}
	}

	return nil
}

func (s *memService) Teardown(ns string) error {
	if _, ok := s.notifications[ns]; ok {
		delete(s.notifications, ns)
	}

	return nil
}

func copyNotification(n *Notification) *Notification {
	old := *n
	return &old
}

func filterList(nm map[uint64]*Notification, opts QueryOptions) List {
	list := List{}

	for id, n := range nm {
		if !opts.Before.IsZero() && !n.CreatedAt.Before(opts.Before) {
			continue
		}

		if !inIDs(id, opts.IDs) {
			continue
		}

		if opts.Read != nil && n.Read != *opts.Read {
			continue
		}

		if !inIDs(n.UserID, opts.UserIDs) {
			continue
		}

		list = append(list, copyNotification(n))
	}

	return list
}

func inIDs(id uint64, ids []uint64) bool {
	if len(ids) == 0 {
		return true
	}

	for _, i := range ids {
		if id == i {
			return true
		}
	}

	return false
}
