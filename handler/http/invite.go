package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/gorilla/mux"
	"golang.org/x/net/context"

	"github.com/gatekeeperhq/gatekeeper/core"
	"github.com/gatekeeperhq/gatekeeper/service/invite"
)

// InviteCreate stores a new individual or utility invite issued by the
// current user.
func InviteCreate(fn core.InviteCreateFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			namespace = namespaceFromContext(ctx)
			origin    = originFromContext(ctx)
			p         = payloadInvite{}
		)

		err := json.NewDecoder(r.Body).Decode(&p)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		i, err := fn(namespace, origin, p.invite)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusCreated, &payloadInvite{invite: i})
	}
}

// InviteGroupCreate stores a new group invite issued by the current user.
func InviteGroupCreate(fn core.InviteGroupCreateFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			namespace = namespaceFromContext(ctx)
			origin    = originFromContext(ctx)
			p         = payloadInvite{}
		)

		err := json.NewDecoder(r.Body).Decode(&p)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		i, err := fn(namespace, origin, p.invite)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusCreated, &payloadInvite{invite: i})
	}
}

// InviteDelete removes a pending invite of the current user.
func InviteDelete(fn core.InviteDeleteFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			namespace = namespaceFromContext(ctx)
			origin    = originFromContext(ctx)
		)

		kind, err := extractInviteKind(r)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		id, err := extractInviteID(r)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		err = fn(namespace, origin, kind, id)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusNoContent, nil)
	}
}

// InviteListAll returns invites across all residents for the security side.
func InviteListAll(fn core.InviteListAllFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		namespace := namespaceFromContext(ctx)

		if tokenTypeFromContext(ctx) != tokenBackend {
			respondError(w, 4012, wrapError(ErrUnauthorized, "backend token required"))
			return
		}

		opts, err := extractInviteOpts(r)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		is, err := fn(namespace, opts)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusOK, &payloadInvites{invites: is})
	}
}

// InviteListUser returns the invites issued by the current user, newest
// first.
func InviteListUser(fn core.InviteListUserFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			namespace = namespaceFromContext(ctx)
			origin    = originFromContext(ctx)
		)

		opts, err := extractInviteOpts(r)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		is, err := fn(namespace, origin, opts)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusOK, &payloadInvites{invites: is})
	}
}

// InviteScan resolves a gate scan or manual OTP entry and applies the
// requested action to the matched invite.
func InviteScan(fn core.InviteResolveScanFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			namespace = namespaceFromContext(ctx)
			p         = payloadScan{}
		)

		err := json.NewDecoder(r.Body).Decode(&p)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		i, err := fn(namespace, p.payload, p.action)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusOK, &payloadInvite{invite: i})
	}
}

var inviteKinds = map[string]invite.Kind{
	"group":     invite.KindGroup,
	"one-time":  invite.KindOneTime,
	"recurring": invite.KindRecurring,
}

func inviteKindString(k invite.Kind) string {
	for s, kind := range inviteKinds {
		if kind == k {
			return s
		}
	}

	return "unknown"
}

func extractInviteID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(mux.Vars(r)["inviteID"], 10, 64)
}

func extractInviteKind(r *http.Request) (invite.Kind, error) {
	raw := mux.Vars(r)["inviteKind"]

	k, ok := inviteKinds[raw]
	if !ok {
		return 0, fmt.Errorf("invite kind '%s' not supported", raw)
	}

	return k, nil
}

func extractInviteOpts(r *http.Request) (invite.QueryOptions, error) {
	var (
		opts  = invite.QueryOptions{}
		query = r.URL.Query()
	)

	opts.Addresses = query["address"]

	for _, raw := range query["kind"] {
		k, ok := inviteKinds[raw]
		if !ok {
			return opts, fmt.Errorf("invite kind '%s' not supported", raw)
		}

		opts.Kinds = append(opts.Kinds, k)
	}

	for _, raw := range query["status"] {
		opts.Statuses = append(opts.Statuses, invite.Status(raw))
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return opts, fmt.Errorf("limit '%s' is invalid", raw)
		}

		opts.Limit = uint(limit)
	}

	return opts, nil
}

type payloadInvite struct {
	invite *invite.Invite
}

func (p *payloadInvite) MarshalJSON() ([]byte, error) {
	var (
		i       = p.invite
		entryAt *time.Time
		exitAt  *time.Time
	)

	if !i.EntryAt.IsZero() {
		entryAt = &i.EntryAt
	}

	if !i.ExitAt.IsZero() {
		exitAt = &i.ExitAt
	}

	return json.Marshal(struct {
		Address          string     `json:"address"`
		CreatedBy        uint64     `json:"created_by"`
		EndAt            time.Time  `json:"end_at"`
		EntryAt          *time.Time `json:"entry_at,omitempty"`
		EstateID         string     `json:"estate_id,omitempty"`
		ExitAt           *time.Time `json:"exit_at,omitempty"`
		GroupName        string     `json:"group_name,omitempty"`
		ID               uint64     `json:"id"`
		IDString         string     `json:"id_string"`
		Kind             string     `json:"kind"`
		MembersCheckedIn int        `json:"members_checked_in"`
		OTP              string     `json:"otp"`
		ResidentName     string     `json:"resident_name"`
		StartAt          time.Time  `json:"start_at"`
		Status           string     `json:"status"`
		VisitorName      string     `json:"visitor_name,omitempty"`
		VisitorPhone     string     `json:"visitor_phone,omitempty"`
		CreatedAt        time.Time  `json:"created_at"`
		UpdatedAt        time.Time  `json:"updated_at"`
	}{
		Address:          i.Address,
		CreatedBy:        i.CreatedBy,
		EndAt:            i.EndAt,
		EntryAt:          entryAt,
		EstateID:         i.EstateID,
		ExitAt:           exitAt,
		GroupName:        i.GroupName,
		ID:               i.ID,
		IDString:         strconv.FormatUint(i.ID, 10),
		Kind:             inviteKindString(i.Kind),
		MembersCheckedIn: i.MembersCheckedIn,
		OTP:              i.OTP,
		ResidentName:     i.ResidentName,
		StartAt:          i.StartAt,
		Status:           string(i.Status),
		VisitorName:      i.VisitorName,
		VisitorPhone:     i.VisitorPhone,
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        i.UpdatedAt,
	})
}

func (p *payloadInvite) UnmarshalJSON(raw []byte) error {
	f := struct {
		Address      string    `json:"address"`
		EndAt        time.Time `json:"end_at"`
		EstateID     string    `json:"estate_id"`
		GroupName    string    `json:"group_name"`
		Kind         string    `json:"kind"`
		ResidentName string    `json:"resident_name"`
		StartAt      time.Time `json:"start_at"`
		VisitorName  string    `json:"visitor_name"`
		VisitorPhone string    `json:"visitor_phone"`
	}{}

	err := json.Unmarshal(raw, &f)
	if err != nil {
		return err
	}

	kind := invite.KindOneTime

	if f.Kind != "" {
		k, ok := inviteKinds[f.Kind]
		if !ok {
			return fmt.Errorf("invite kind '%s' not supported", f.Kind)
		}

		kind = k
	}

	if f.VisitorPhone != "" && !govalidator.IsE164(f.VisitorPhone) {
		return fmt.Errorf("visitor_phone must be in E.164 format")
	}

	p.invite = &invite.Invite{
		Address:      f.Address,
		EndAt:        f.EndAt,
		EstateID:     f.EstateID,
		GroupName:    f.GroupName,
		Kind:         kind,
		ResidentName: f.ResidentName,
		StartAt:      f.StartAt,
		VisitorName:  f.VisitorName,
		VisitorPhone: f.VisitorPhone,
	}

	return nil
}

type payloadInvites struct {
	invites invite.List
}

func (p *payloadInvites) MarshalJSON() ([]byte, error) {
	is := []*payloadInvite{}

	for _, i := range p.invites {
		is = append(is, &payloadInvite{invite: i})
	}

	return json.Marshal(struct {
		Invites      []*payloadInvite `json:"invites"`
		InvitesCount int              `json:"invites_count"`
	}{
		Invites:      is,
		InvitesCount: len(is),
	})
}

type payloadScan struct {
	action  core.Action
	payload string
}

func (p *payloadScan) UnmarshalJSON(raw []byte) error {
	f := struct {
		Action  string `json:"action"`
		Payload string `json:"payload"`
	}{}

	err := json.Unmarshal(raw, &f)
	if err != nil {
		return err
	}

	if f.Payload == "" {
		return fmt.Errorf("payload must be set")
	}

	p.action = core.Action(f.Action)
	p.payload = f.Payload

	return nil
}
