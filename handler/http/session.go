package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/context"

	"github.com/gatekeeperhq/gatekeeper/core"
	"github.com/gatekeeperhq/gatekeeper/service/session"
)

// SessionCreate registers the calling device for the user of the payload and
// issues a session for it. Identity is asserted upstream, the payload carries
// the already verified user id.
func SessionCreate(fn core.SessionCreateFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			deviceID  = deviceIDFromContext(ctx)
			namespace = namespaceFromContext(ctx)
			p         = payloadLogin{}
		)

		err := json.NewDecoder(r.Body).Decode(&p)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		s, err := fn(namespace, createOrigin(deviceID, tokenApplication, p.userID))
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusCreated, &payloadSession{session: s})
	}
}

// SessionDelete revokes the session the request was authenticated with.
func SessionDelete(fn core.SessionTerminateFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			namespace = namespaceFromContext(ctx)
			origin    = originFromContext(ctx)
			token     = tokenFromContext(ctx)
			tokenType = tokenTypeFromContext(ctx)
		)

		if tokenType == tokenBackend {
			respondJSON(w, http.StatusNoContent, nil)
			return
		}

		err := fn(namespace, origin, token)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusNoContent, nil)
	}
}

type payloadLogin struct {
	userID uint64
}

func (p *payloadLogin) UnmarshalJSON(raw []byte) error {
	f := struct {
		UserID uint64 `json:"user_id"`
	}{}

	err := json.Unmarshal(raw, &f)
	if err != nil {
		return err
	}

	if f.UserID == 0 {
		return fmt.Errorf("user_id must be set")
	}

	p.userID = f.UserID

	return nil
}

type payloadSession struct {
	session *session.Session
}

func (p *payloadSession) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		DeviceID  string    `json:"device_id"`
		ID        string    `json:"id"`
		UserID    uint64    `json:"user_id"`
		CreatedAt time.Time `json:"created_at"`
	}{
		DeviceID:  p.session.DeviceID,
		ID:        p.session.ID,
		UserID:    p.session.UserID,
		CreatedAt: p.session.CreatedAt,
	})
}
