package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/net/context"

	"github.com/gatekeeperhq/gatekeeper/core"
	"github.com/gatekeeperhq/gatekeeper/service/device"
)

// DeviceDelete removes the device record of the current user and revokes the
// sessions issued from it.
func DeviceDelete(fn core.DeviceRemoveFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			deviceID  = mux.Vars(r)["deviceID"]
			namespace = namespaceFromContext(ctx)
			origin    = originFromContext(ctx)
		)

		err := fn(namespace, origin.UserID, deviceID)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusNoContent, nil)
	}
}

// DeviceList returns the authorized installations of the current user.
func DeviceList(fn core.DeviceListUserFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			namespace = namespaceFromContext(ctx)
			origin    = originFromContext(ctx)
		)

		ds, err := fn(namespace, origin.UserID)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusOK, &payloadDevices{devices: ds})
	}
}

type payloadDevice struct {
	device *device.Device
}

func (p *payloadDevice) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		DeviceID  string    `json:"device_id"`
		ID        uint64    `json:"id"`
		IDString  string    `json:"id_string"`
		LastLogin time.Time `json:"last_login"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}{
		DeviceID:  p.device.DeviceID,
		ID:        p.device.ID,
		IDString:  strconv.FormatUint(p.device.ID, 10),
		LastLogin: p.device.LastLogin,
		CreatedAt: p.device.CreatedAt,
		UpdatedAt: p.device.UpdatedAt,
	})
}

type payloadDevices struct {
	devices device.List
}

func (p *payloadDevices) MarshalJSON() ([]byte, error) {
	ds := []*payloadDevice{}

	for _, d := range p.devices {
		ds = append(ds, &payloadDevice{device: d})
	}

	return json.Marshal(struct {
		Devices      []*payloadDevice `json:"devices"`
		DevicesCount int              `json:"devices_count"`
	}{
		Devices:      ds,
		DevicesCount: len(ds),
	})
}
