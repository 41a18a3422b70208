package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"gorm.io/datatypes"

	"github.com/tbourn/go-device-backend/internal/domain"
	"github.com/tbourn/go-device-backend/internal/services"
)

// fakeQueue records keys and replays ids for repeated keys.
type fakeQueue struct {
	next    uint
	byKey   map[string]uint
	lastDev string
	lastTyp string
	lastRaw string
}

func (q *fakeQueue) enqueue(_ context.Context, key, dev, typ string, data json.RawMessage) (uint, bool, error) {
	if dev == "" || typ == "" || len(data) == 0 {
		return 0, false, fmt.Errorf("%w: device_id, command_type and command_data are required", services.ErrValidation)
	}
	if id, found := q.byKey[key]; key != "" && found {
		return id, true, nil
	}
	q.next++
	if key != "" {
		q.byKey[key] = q.next
	}
	q.lastDev, q.lastTyp, q.lastRaw = dev, typ, string(data)
	return q.next, false, nil
}

func TestSendCommand_QueuedAndReplayed(t *testing.T) {
	q := &fakeQueue{byKey: map[string]uint{}}
	r := newTestRouter(newH(nil, stubCommandSvc{enqueue: q.enqueue}, nil, nil))

	body := `{"device_id":"d1","command_type":"open_url","command_data":{"url":"https://example.com"}}`

	w := do(r, http.MethodPost, "/command/send", body, "Idempotency-Key", "k-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	first := decode[SendCommandResponse](t, w)
	if first.Status != "success" || first.Message != "Command queued." || first.CommandID != 1 {
		t.Fatalf("unexpected body: %+v", first)
	}
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first request must not be marked replayed")
	}
	if q.lastDev != "d1" || q.lastTyp != "open_url" || q.lastRaw != `{"url":"https://example.com"}` {
		t.Fatalf("payload not forwarded verbatim: %q %q %q", q.lastDev, q.lastTyp, q.lastRaw)
	}

	w = do(r, http.MethodPost, "/command/send", body, "Idempotency-Key", "k-1")
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: status=%d hdr=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	if decode[SendCommandResponse](t, w).CommandID != first.CommandID {
		t.Fatalf("replay should return the original id")
	}

	// No key: always a new command.
	w = do(r, http.MethodPost, "/command/send", body)
	if w.Code != http.StatusCreated || decode[SendCommandResponse](t, w).CommandID != 2 {
		t.Fatalf("no key: status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestSendCommand_BadRequests(t *testing.T) {
	q := &fakeQueue{byKey: map[string]uint{}}
	r := newTestRouter(newH(nil, stubCommandSvc{enqueue: q.enqueue}, nil, nil))

	for _, body := range []string{
		`{`,
		`{"command_type":"x","command_data":{}}`,
		`{"device_id":"d1","command_data":{}}`,
		`{"device_id":"d1","command_type":"x"}`,
	} {
		w := do(r, http.MethodPost, "/command/send", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", body, w.Code)
		}
	}
}

func TestSendCommand_StoreFailure(t *testing.T) {
	svc := stubCommandSvc{enqueue: func(context.Context, string, string, string, json.RawMessage) (uint, bool, error) {
		return 0, false, errors.New("locked")
	}}
	r := newTestRouter(newH(nil, svc, nil, nil))

	w := do(r, http.MethodPost, "/command/send", `{"device_id":"d","command_type":"t","command_data":1}`)
	if w.Code != http.StatusInternalServerError || decode[ErrorResponse](t, w).Code != ErrCodeEnqueueFailed {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestPollCommands(t *testing.T) {
	svc := stubCommandSvc{poll: func(_ context.Context, dev string) ([]domain.Command, error) {
		switch dev {
		case "d1":
			return []domain.Command{{
				ID: 5, DeviceID: "d1", CommandType: "ping",
				CommandData: datatypes.JSON(`{"n":1}`), Status: domain.CommandSent,
			}}, nil
		case "broken":
			return nil, errors.New("busy")
		}
		return []domain.Command{}, nil
	}}
	r := newTestRouter(newH(nil, svc, nil, nil))

	w := do(r, http.MethodGet, "/device/d1/commands", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	got := decode[[]map[string]any](t, w)
	if len(got) != 1 || got[0]["status"] != "sent" {
		t.Fatalf("unexpected: %v", got)
	}
	// command_data is delivered as JSON, not as an encoded string.
	if data, isObj := got[0]["command_data"].(map[string]any); !isObj || data["n"].(float64) != 1 {
		t.Fatalf("command_data not an object: %#v", got[0]["command_data"])
	}

	w = do(r, http.MethodGet, "/device/idle/commands", "")
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("idle: status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/device/broken/commands", "")
	if w.Code != http.StatusInternalServerError || decode[ErrorResponse](t, w).Code != ErrCodePollFailed {
		t.Fatalf("broken: status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCommandHistory_Paginates(t *testing.T) {
	var gotPage, gotSize int
	svc := stubCommandSvc{history: func(_ context.Context, _ string, page, size int) ([]domain.Command, int64, error) {
		gotPage, gotSize = page, size
		return []domain.Command{{ID: 3}, {ID: 2}}, 5, nil
	}}
	r := newTestRouter(newH(nil, svc, nil, nil))

	w := do(r, http.MethodGet, "/device/d1/command-history?page=2&page_size=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	resp := decode[CommandHistoryResponse](t, w)
	if gotPage != 2 || gotSize != 2 {
		t.Fatalf("pagination not forwarded: %d %d", gotPage, gotSize)
	}
	if len(resp.Commands) != 2 || resp.Pagination.Total != 5 || resp.Pagination.TotalPages != 3 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected: %+v", resp)
	}
}

func TestExecuteCommand(t *testing.T) {
	svc := stubCommandSvc{execute: func(_ context.Context, id uint) error {
		if id == 7 {
			return nil
		}
		return services.ErrCommandNotFound
	}}
	r := newTestRouter(newH(nil, svc, nil, nil))

	w := do(r, http.MethodPost, "/command/7/execute", "")
	if w.Code != http.StatusOK || decode[StatusResponse](t, w).Message != "Command marked as executed." {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodPost, "/command/8/execute", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing: status=%d", w.Code)
	}
	for _, bad := range []string{"abc", "0", "-2"} {
		if w := do(r, http.MethodPost, "/command/"+bad+"/execute", ""); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", bad, w.Code)
		}
	}
}
