package session

import "time"

type memService struct {
	sessions map[string]Map
}

// MemService returns a memory based Service implementation.
func MemService() Service {
	return &memService{
		sessions: map[string]Map{},
	}
}

func (s *memService) Put(ns string, session *Session) (*Session, error) {
	if err := s.Setup(ns); err != nil {
		return nil, err
	}

	if err := session.Validate(); err != nil {
		return nil, err
	}

	bucket := s.sessions[ns]

	if session.ID == "" {
		session.CreatedAt = time.Now().UTC()
		session.ID = generateID()
	} else {
		cur, ok := bucket[session.ID]
		if !ok {
			return nil, wrapError(ErrNotFound, "session %s", session.ID)
		}

		session.CreatedAt = cur.CreatedAt
	}

	bucket[session.ID] = copySession(session)

	return copySession(session), nil
}

func (s *memService) Query(ns string, opts QueryOptions) (List, error) {
	if err := s.Setup(ns); err != nil {
		return nil, err
	}

	return filterMap(s.sessions[ns], opts), nil
}

func (s *memService) Setup(ns string) error {
	if _, ok := s.sessions[ns]; !ok {
		s.sessions[ns] = Map{}
	}

	return nil
}

func (s *memService) Teardown(ns string) error {
	if _, ok := s.sessions[ns]; ok {
		delete(s.sessions, ns)
	}

	return nil
}

func copySession(s *Session) *Session {
	old := *s
	return &old
}

func filterMap(sm Map, opts QueryOptions) List {
	ss := List{}

	for id, s := range sm {
		if !inStrings(s.DeviceID, opts.DeviceIDs) {
			continue
		}

		if opts.Enabled != nil && s.Enabled != *opts.Enabled {
			continue
		}

		if !inStrings(id, opts.IDs) {
			continue
		}

		if !inIDs(s.UserID, opts.UserIDs) {
			continue
		}

		ss = append(ss, copySession(s))
	}

	return ss
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

func inStrings(s string, ss []string) bool {
	if len(ss) == 0 {
		return true
	}

	for _, i := range ss {
		if s == i {
			return true
		}
	}

	return false
}
