package http

import (
	"encoding/json"
	"net/http"

	"github.com/gomodule/redigo/redis"
	"github.com/jmoiron/sqlx"
	"golang.org/x/net/context"

	"github.com/gatekeeperhq/gatekeeper/core"
	"github.com/gatekeeperhq/gatekeeper/service/invite"
)

const pgHealthcheck = `SELECT 1`

// Handler is the gateway specific http.HandlerFunc expecting a context.Context.
type Handler func(context.Context, http.ResponseWriter, *http.Request)

// Middleware can be used to chain Handlers with different responsibilities.
type Middleware func(Handler) Handler

// Chain takes a variadic number of Middlewares and returns a combined
// Middleware.
func Chain(ms ...Middleware) Middleware {
	return func(handler Handler) Handler {
		for i := len(ms) - 1; i >= 0; i-- {
			handler = ms[i](handler)
		}

		return handler
	}
}

// Wrap takes a Middleware and Handler and returns an http.HandlerFunc.
func Wrap(
	middleware Middleware,
	handler Handler,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware(handler)(context.Background(), w, r)
	}
}

// Health checks for liveliness of backing services and responds with status.
func Health(pg *sqlx.DB, rPool *redis.Pool) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		res := struct {
			Healthy  bool            `json:"healthy"`
			Services map[string]bool `json:"services"`
		}{
			Healthy: true,
			Services: map[string]bool{
				"postgres": true,
				"redis":    true,
			},
		}

		if _, err := pg.Exec(pgHealthcheck); err != nil {
			res.Healthy = false
			res.Services["postgres"] = false

			respondJSON(w, http.StatusInternalServerError, &res)
			return
		}

		conn := rPool.Get()
		if err := conn.Err(); err != nil {
			res.Healthy = false
			res.Services["redis"] = false

			respondJSON(w, http.StatusInternalServerError, &res)
			return
		}
		defer conn.Close()

		respondJSON(w, http.StatusOK, &res)
	}
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func createOrigin(deviceID, tokenType string, userID uint64) core.Origin {
	integration := core.IntegrationApplication

	if tokenType == tokenBackend {
		integration = core.IntegrationBackend
	}

	return core.Origin{
		DeviceID:    deviceID,
		Integration: integration,
		UserID:      userID,
	}
}

func respondError(w http.ResponseWriter, code int, err error) {
	statusCode := http.StatusInternalServerError

	if invite.IsConcurrentUpdate(err) {
		statusCode = http.StatusConflict
	}

	switch unwrapError(err) {
	case ErrBadRequest:
		statusCode = http.StatusBadRequest
	case ErrLimitExceeded:
		statusCode = http.StatusTooManyRequests
	case ErrUnauthorized:
		statusCode = http.StatusUnauthorized
	case core.ErrDeviceLimit:
		statusCode = http.StatusForbidden
	case core.ErrInvalidEntity:
		statusCode = http.StatusBadRequest
	case core.ErrInvalidOTP:
		statusCode = http.StatusBadRequest
	case core.ErrInvalidTransition:
		statusCode = http.StatusConflict
	case core.ErrInviteNotFound:
		statusCode = http.StatusNotFound
	case core.ErrNotFound:
		statusCode = http.StatusNotFound
	case core.ErrOutsideWindow:
		statusCode = http.StatusForbidden
	case core.ErrUnauthorized:
		statusCode = http.StatusUnauthorized
	}

	respondJSON(w, statusCode, struct {
		Errors []apiError `json:"errors"`
	}{
		Errors: []apiError{
			{Code: code, Message: err.Error()},
		},
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
