package invite

import (
	"sort"
	"time"

	"github.com/gatekeeperhq/gatekeeper/platform/flake"
)

type memService struct {
	invites map[string]map[Kind]map[uint64]*Invite
}

// MemService returns a memory based Service implementation.
func MemService() Service {
	return &memService{
		invites: map[string]map[Kind]map[uint64]*Invite{},
	}
}

func (s *memService) Delete(ns string, kind Kind, id uint64) error {
	if err := s.Setup(ns); err != nil {
		return err
	}

	bucket, ok := s.invites[ns][kind]
	if !ok {
		return wrapError(ErrInvalidInvite, "Kind '%d' not supported", kind)
	}

	delete(bucket, id)

	return nil
}

func (s *memService) Put(ns string, invite *Invite) (*Invite, error) {
	if err := s.Setup(ns); err != nil {
		return nil, err
	}

	if err := invite.Validate(); err != nil {
		return nil, err
	}

	bucket := s.invites[ns][invite.Kind]

	if invite.ID == 0 {
		id, err := flake.NextID(flake.Namespace(ns, entity))
		if err != nil {
			return nil, err
		}

		invite.CreatedAt = time.Now().UTC()
		invite.ID = id
		invite.Revision = 1
		invite.UpdatedAt = invite.CreatedAt
	} else {
		cur, ok := bucket[invite.ID]
		if !ok {
			return nil, wrapError(ErrNotFound, "invite %d", invite.ID)
		}

		if cur.Revision != invite.Revision {
			return nil, wrapError(
				ErrConcurrentUpdate,
				"invite %d revision %d",
				invite.ID,
				invite.Revision,
			)
		}

		invite.CreatedAt = cur.CreatedAt
		invite.Revision++
		invite.UpdatedAt = time.Now().UTC()
	}

	bucket[invite.ID] = copyInvite(invite)

	return copyInvite(invite), nil
}

func (s *memService) Query(ns string, opts QueryOptions) (List, error) {
	if err := s.Setup(ns); err != nil {
		return nil, err
	}

	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = Kinds
	}

	is := List{}

	for _, kind := range kinds {
		for _, invite := range s.invites[ns][kind] {
			if !inAddresses(invite.Address, opts.Addresses) {
				continue
			}

			if !inIDs(invite.CreatedBy, opts.CreatedBys) {
				continue
			}

			if !opts.EndBefore.IsZero() && !invite.EndAt.Before(opts.EndBefore) {
				continue
			}

			if !inIDs(invite.ID, opts.IDs) {
				continue
			}

			if !inOTPs(invite.OTP, opts.OTPs) {
				continue
			}

			if !inStatuses(invite.Status, opts.Statuses) {
				continue
			}

			is = append(is, copyInvite(invite))
		}
	}

	sort.Sort(is)

	if opts.Limit > 0 && uint(len(is)) > opts.Limit {
		is = is[:opts.Limit]
	}

	return is, nil
}

func (s *memService) Setup(ns string) error {
	if _, ok := s.invites[ns]; !ok {
		s.invites[ns] = map[Kind]map[uint64]*Invite{
			KindGroup:     {},
			KindOneTime:   {},
			KindRecurring: {},
		}
	}

	return nil
}

func (s *memService) Teardown(ns string) error {
	if _, ok := s.invites[ns]; ok {
		delete(s.invites, ns)
	}

	return nil
}

func copyInvite(i *Invite) *Invite {
	old := *i
	return &old
}

func inAddresses(address string, as []string) bool {
	if len(as) == 0 {
		return true
	}

	for _, a := range as {
		if address == a {
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

func inOTPs(otp string, otps []string) bool {
	if len(otps) == 0 {
		return true
	}

	for _, o := range otps {
		if otp == o {
			return true
		}
	}

	return false
}

func inStatuses(status Status, ss []Status) bool {
	if len(ss) == 0 {
		return true
	}

	for _, s := range ss {
		if status == s {
			return true
		}
	}

	return false
}
