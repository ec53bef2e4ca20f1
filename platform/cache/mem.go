package cache

import "sync"

type memCountService struct {
	sync.Mutex

	counts map[string]map[string]int
}

// MemCountService returns a memory based CountService implementation.
func MemCountService() CountService {
	return &memCountService{
		counts: map[string]map[string]int{},
	}
}

func (s *memCountService) Decr(ns, key string) (int, error) {
	s.Lock()
	defer s.Unlock()

	s.setup(ns)

	s.counts[ns][key]--

	return s.counts[ns][key], nil
}

func (s *memCountService) Get(ns, key string) (int, error) {
	s.Lock()
	defer s.Unlock()

	s.setup(ns)

	count, ok := s.counts[ns][key]
	if !ok {
		return 0, wrapError(ErrKeyNotFound, "%s", key)
	}

	return count, nil
}

func (s *memCountService) Incr(ns, key string) (int, error) {
	s.Lock()
	defer s.Unlock()

	s.setup(ns)

	s.counts[ns][key]++

	return s.counts[ns][key], nil
}

func (s *memCountService) Set(ns, key string, count int) error {
	s.Lock()
	defer s.Unlock()

	s.setup(ns)

	s.counts[ns][key] = count

	return nil
}

func (s *memCountService) setup(ns string) {
	if _, ok := s.counts[ns]; !ok {
		s.counts[ns] = map[string]int{}
	}
}
