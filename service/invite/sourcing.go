package invite

type sourcingService struct {
	producer Producer
	service  Service
}

// SourcingServiceMiddleware propagates state changes for the Service via the
// given Producer.
func SourcingServiceMiddleware(producer Producer) ServiceMiddleware {
	return func(service Service) Service {
		return &sourcingService{
			producer: producer,
			service:  service,
		}
	}
}

func (s *sourcingService) Delete(ns string, kind Kind, id uint64) (err error) {
	var old *Invite

	defer func() {
		if err == nil && old != nil {
			_, _ = s.producer.Propagate(ns, old, nil)
		}
	}()

	is, err := s.service.Query(ns, QueryOptions{
		IDs: []uint64{
			id,
		},
		Kinds: []Kind{
			kind,
		},
	})
	if err != nil {
		return err
	}

	if len(is) == 1 {
		old = is[0]
	}

	return s.service.Delete(ns, kind, id)
}

func (s *sourcingService) Put(ns string, input *Invite) (new *Invite, err error) {
	var old *Invite

	defer func() {
		if err == nil {
			_, _ = s.producer.Propagate(ns, old, new)
		}
	}()

	if input.ID != 0 {
		is, err := s.service.Query(ns, QueryOptions{
			IDs: []uint64{
				input.ID,
			},
			Kinds: []Kind{
				input.Kind,
			},
		})
		if err != nil {
			return nil, err
		}

		if len(is) == 1 {
			old = is[0]
		}
	}

	return s.service.Put(ns, input)
}

func (s *sourcingService) Query(ns string, opts QueryOptions) (List, error) {
	return s.service.Query(ns, opts)
}

func (s *sourcingService) Setup(ns string) error {
	return s.service.Setup(ns)
}

func (s *sourcingService) Teardown(ns string) error {
	return s.service.Teardown(ns)
}
