package device

import (
	"time"

	"github.com/gatekeeperhq/gatekeeper/platform/flake"
)

type memService struct {
	devices map[string]map[uint64]*Device
}

// MemService returns a memory based Service implementation.
func MemService() Service {
	return &memService{
		devices: map[string]map[uint64]*Device{},
	}
}

func (s *memService) Count(ns string, opts QueryOptions) (uint, error) {
	if err := s.Setup(ns); err != nil {
		return 0, err
	}

	return uint(len(filterList(s.devices[ns], opts))), nil
}

func (s *memService) Delete(ns string, id uint64) error {
	if err := s.Setup(ns); err != nil {
		return err
	}

	delete(s.devices[ns], id)

	return nil
}

func (s *memService) Put(ns string, device *Device) (*Device, error) {
	if err := s.Setup(ns); err != nil {
		return nil, err
	}

	if err := device.Validate(); err != nil {
		return nil, err
	}

	bucket := s.devices[ns]

	if device.ID == 0 {
		id, err := flake.NextID(flake.Namespace(ns, entity))
		if err != nil {
			return nil, err
		}

		device.CreatedAt = time.Now().UTC()
		device.ID = id

		if device.LastLogin.IsZero() {
			device.LastLogin = device.CreatedAt
		}
	} else {
		cur, ok := bucket[device.ID]
		if !ok {
			return nil, wrapError(ErrNotFound, "device %d", device.ID)
		}

		device.CreatedAt = cur.CreatedAt
	}

	device.UpdatedAt = time.Now().UTC()

	bucket[device.ID] = copyDevice(device)

	return copyDevice(device), nil
}

func (s *memService) Query(ns string, opts QueryOptions) (List, error) {
	if err := s.Setup(ns); err != nil {
		return nil, err
	}

	return filterList(s.devices[ns], opts), nil
}

func (s *memService) Setup(ns string) error {
	if _, ok := s.devices[ns]; !ok {
		s.devices[ns] = map[uint64]*Device{}
	}

	return nil
}

func (s *memService) Teardown(ns string) error {
	if _, ok := s.devices[ns]; ok {
		delete(s.devices, ns)
	}

	return nil
}

func copyDevice(d *Device) *Device {
	old := *d
	return &old
}

func filterList(dm map[uint64]*Device, opts QueryOptions) List {
	ds := List{}

	for id, d := range dm {
		if !inDeviceIDs(d.DeviceID, opts.DeviceIDs) {
			continue
		}

		if !inIDs(id, opts.IDs) {
			continue
		}

		if !opts.LastLoginBefore.IsZero() && !d.LastLogin.Before(opts.LastLoginBefore) {
			continue
		}

		if !inIDs(d.UserID, opts.UserIDs) {
			continue
		}

		ds = append(ds, copyDevice(d))
	}

	return ds
}

func inDeviceIDs(id string, ids []string) bool {
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
