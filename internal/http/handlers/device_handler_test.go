package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/go-device-backend/internal/domain"
	"github.com/tbourn/go-device-backend/internal/services"
)

func TestRegisterDevice(t *testing.T) {
	var got services.RegisterInput
	dev := stubDeviceSvc{
		register: func(_ context.Context, in services.RegisterInput) (bool, error) {
			got = in
			if in.DeviceID == "" {
				return false, fmt.Errorf("%w: device_id required", services.ErrValidation)
			}
			return true, nil
		},
	}
	r := newTestRouter(newH(dev, nil, nil, nil))

	// malformed JSON
	if w := do(r, http.MethodPost, "/device/register", `{`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status=%d", w.Code)
	}

	// missing device_id
	w := do(r, http.MethodPost, "/device/register", `{"device_name":"x"}`)
	if w.Code != http.StatusBadRequest || decode[ErrorResponse](t, w).Code != ErrCodeBadRequest {
		t.Fatalf("validation: status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/device/register",
		`{"device_id":"d1","device_name":"Pixel","os_version":"14","battery_level":0,"phone_number":"+1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	resp := decode[RegisterDeviceResponse](t, w)
	if resp.Status != "success" || !resp.Created || resp.Message != "Device data received and updated." {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if got.DeviceID != "d1" || got.DeviceName != "Pixel" || got.OSVersion != "14" || got.PhoneNumber != "+1" {
		t.Fatalf("input not forwarded: %+v", got)
	}
	if got.BatteryLevel == nil || *got.BatteryLevel != 0 {
		t.Fatalf("explicit 0 battery must be forwarded, got %v", got.BatteryLevel)
	}

	// omitted battery stays nil
	do(r, http.MethodPost, "/device/register", `{"device_id":"d1"}`)
	if got.BatteryLevel != nil {
		t.Fatalf("omitted battery should be nil, got %v", *got.BatteryLevel)
	}
}

func TestRegisterDevice_StoreFailure(t *testing.T) {
	dev := stubDeviceSvc{register: func(context.Context, services.RegisterInput) (bool, error) {
		return false, errors.New("disk full")
	}}
	r := newTestRouter(newH(dev, nil, nil, nil))

	w := do(r, http.MethodPost, "/device/register", `{"device_id":"d1"}`)
	if w.Code != http.StatusInternalServerError || decode[ErrorResponse](t, w).Code != ErrCodeRegisterFailed {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestListDevices_AndGet(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	d := domain.Device{ID: 1, DeviceID: "d1", LastSeen: domain.Timestamp{Time: now.Add(-5 * time.Second)}}
	st := domain.WithStatus(d, now, domain.DefaultOnlineThreshold)

	dev := stubDeviceSvc{
		list: func(context.Context) []domain.DeviceStatus { return []domain.DeviceStatus{st} },
		get: func(_ context.Context, id string) (*domain.DeviceStatus, error) {
			if id != "d1" {
				return nil, services.ErrDeviceNotFound
			}
			return &st, nil
		},
	}
	r := newTestRouter(newH(dev, nil, nil, nil))

	w := do(r, http.MethodGet, "/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	list := decode[[]map[string]any](t, w)
	if len(list) != 1 || list[0]["device_id"] != "d1" || list[0]["is_online"] != true {
		t.Fatalf("unexpected list: %v", list)
	}

	w = do(r, http.MethodGet, "/device/d1", "")
	if w.Code != http.StatusOK || decode[map[string]any](t, w)["seconds_since_seen"].(float64) != 5 {
		t.Fatalf("get: status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/device/nope", "")
	if w.Code != http.StatusNotFound || decode[ErrorResponse](t, w).Code != ErrCodeNotFound {
		t.Fatalf("missing: status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestListDevices_EmptyIsArray(t *testing.T) {
	r := newTestRouter(newH(nil, nil, nil, nil))
	w := do(r, http.MethodGet, "/devices", "")
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestDeleteDevice(t *testing.T) {
	dev := stubDeviceSvc{del: func(_ context.Context, id string) error {
		switch id {
		case "d1":
			return nil
		case "broken":
			return errors.New("tx aborted")
		default:
			return services.ErrDeviceNotFound
		}
	}}
	r := newTestRouter(newH(dev, nil, nil, nil))

	w := do(r, http.MethodDelete, "/device/d1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if resp := decode[StatusResponse](t, w); resp.Message != "Device and all related data deleted." {
		t.Fatalf("unexpected body: %+v", resp)
	}

	if w := do(r, http.MethodDelete, "/device/ghost", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing: status=%d", w.Code)
	}
	w = do(r, http.MethodDelete, "/device/broken", "")
	if w.Code != http.StatusInternalServerError || decode[ErrorResponse](t, w).Code != ErrCodeDeleteFailed {
		t.Fatalf("failure: status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestStats(t *testing.T) {
	dev := stubDeviceSvc{stats: func(context.Context) services.FleetStats {
		return services.FleetStats{Devices: 3, Online: 1, Commands: map[string]int64{"pending": 2, "sent": 0, "executed": 5}}
	}}
	r := newTestRouter(newH(dev, nil, nil, nil))

	w := do(r, http.MethodGet, "/stats", "")
	got := decode[services.FleetStats](t, w)
	if w.Code != http.StatusOK || got.Devices != 3 || got.Online != 1 || got.Commands["executed"] != 5 {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}
