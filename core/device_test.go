package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/gatekeeperhq/gatekeeper/platform/kv"
	"github.com/gatekeeperhq/gatekeeper/service/device"
	"github.com/gatekeeperhq/gatekeeper/service/session"
)

func TestDeviceActive(t *testing.T) {
	var (
		devices   = device.MemService()
		namespace = "device_active"
		origin    = testOrigin()
		now       = time.Now().UTC()
		register  = DeviceRegister(devices, fixedClock(&now))
		fn        = DeviceActive(devices)
	)

	active, err := fn(namespace, origin.UserID, origin.DeviceID)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := active, false; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if err := register(namespace, origin.UserID, origin.DeviceID); err != nil {
		t.Fatal(err)
	}

	active, err = fn(namespace, origin.UserID, origin.DeviceID)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := active, true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestDeviceCurrentID(t *testing.T) {
	var (
		store = kv.MemStore()
		fn    = DeviceCurrentID(store)
	)

	first, err := fn()
	if err != nil {
		t.Fatal(err)
	}

	if first == "" {
		t.Fatal("have empty id, want generated")
	}

	second, err := fn()
	if err != nil {
		t.Fatal(err)
	}

	if have, want := second, first; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestDeviceRegisterCap(t *testing.T) {
	var (
		devices   = device.MemService()
		namespace = "device_cap"
		origin    = testOrigin()
		now       = time.Now().UTC()
		fn        = DeviceRegister(devices, fixedClock(&now))
	)

	for i := 0; i < DeviceLimit; i++ {
		id := fmt.Sprintf("install-%d", i)

		if err := fn(namespace, origin.UserID, id); err != nil {
			t.Fatal(err)
		}
	}

	// The cap rejects a fourth distinct installation and leaves the table
	// unchanged.
	err := fn(namespace, origin.UserID, "install-overflow")
	if have, want := err, ErrDeviceLimit; !IsDeviceLimit(have) {
		t.Errorf("have %v, want %v", have, want)
	}

	count, err := devices.Count(namespace, device.QueryOptions{
		UserIDs: []uint64{
			origin.UserID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, uint(DeviceLimit); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Re-registering a known installation touches LastLogin instead of
	// consuming a slot.
	now = now.Add(time.Hour)

	if err := fn(namespace, origin.UserID, "install-0"); err != nil {
		t.Fatal(err)
	}

	ds, err := devices.Query(namespace, device.QueryOptions{
		DeviceIDs: []string{
			"install-0",
		},
		UserIDs: []uint64{
			origin.UserID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(ds), 1; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}
	if have, want := ds[0].LastLogin, now; !have.Equal(want) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestDeviceRemove(t *testing.T) {
	var (
		devices   = device.MemService()
		sessions  = session.MemService()
		namespace = "device_remove"
		origin    = testOrigin()
		now       = time.Now().UTC()
		register  = DeviceRegister(devices, fixedClock(&now))
		create    = SessionCreate(sessions, register)
		fn        = DeviceRemove(devices, sessions)
	)

	created, err := create(namespace, origin)
	if err != nil {
		t.Fatal(err)
	}

	if err := fn(namespace, origin.UserID, origin.DeviceID); err != nil {
		t.Fatal(err)
	}

	count, err := devices.Count(namespace, device.QueryOptions{
		DeviceIDs: []string{
			origin.DeviceID,
		},
		UserIDs: []uint64{
			origin.UserID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, uint(0); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	enabled := true

	ss, err := sessions.Query(namespace, session.QueryOptions{
		Enabled: &enabled,
		IDs: []string{
			created.ID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(ss), 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestDeviceRemoveInactive(t *testing.T) {
	var (
		devices   = device.MemService()
		sessions  = session.MemService()
		namespace = "device_inactive"
		now       = time.Now().UTC()
		fn        = DeviceRemoveInactive(
			devices,
			sessions,
			log.NewNopLogger(),
			fixedClock(&now),
		)
	)

	for i := 0; i < 2; i++ {
		origin := testOrigin()

		_, err := devices.Put(namespace, &device.Device{
			DeviceID:  origin.DeviceID,
			LastLogin: now.Add(-DeviceInactivityThreshold - time.Hour),
			UserID:    origin.UserID,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	fresh := testOrigin()

	_, err := devices.Put(namespace, &device.Device{
		DeviceID:  fresh.DeviceID,
		LastLogin: now.Add(-time.Hour),
		UserID:    fresh.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}

	removed, err := fn(namespace)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := removed, 2; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	ds, err := devices.Query(namespace, device.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(ds), 1; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}
	if have, want := ds[0].DeviceID, fresh.DeviceID; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestDevicePeriodicCheck(t *testing.T) {
	var (
		devices   = device.MemService()
		sessions  = session.MemService()
		store     = kv.MemStore()
		namespace = "device_periodic"
		now       = time.Now().UTC()
		stale     = testOrigin()
		sweep     = DeviceRemoveInactive(
			devices,
			sessions,
			log.NewNopLogger(),
			fixedClock(&now),
		)
		fn = DevicePeriodicCheck(store, sweep, fixedClock(&now))
	)

	_, err := devices.Put(namespace, &device.Device{
		DeviceID:  stale.DeviceID,
		LastLogin: now.Add(-DeviceInactivityThreshold - time.Hour),
		UserID:    stale.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Disabled flag means no sweep.
	removed, err := fn(namespace)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := removed, 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if err := store.Put(FlagDeviceManagement, "true"); err != nil {
		t.Fatal(err)
	}

	removed, err = fn(namespace)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := removed, 1; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Inside the gate period nothing runs.
	now = now.Add(time.Hour)

	removed, err = fn(namespace)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := removed, 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Past the gate the sweep fires again.
	now = now.Add(24 * time.Hour)

	_, err = devices.Put(namespace, &device.Device{
		DeviceID:  "install-stale-2",
		LastLogin: now.Add(-DeviceInactivityThreshold - time.Hour),
		UserID:    stale.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}

	removed, err = fn(namespace)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := removed, 1; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}
