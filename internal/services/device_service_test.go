package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-device-backend/internal/domain"
	"github.com/tbourn/go-device-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if migrate {
		if err := repo.AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// newFileDB is used by tests that hit the store from several goroutines.
func newFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.Open(repo.Options{Path: filepath.Join(t.TempDir(), "devices.db"), Silent: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time           { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newDeviceSvc(db *gorm.DB) (*DeviceService, *clock) {
	clk := &clock{t: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	return &DeviceService{DB: db, Threshold: 20 * time.Second, Now: clk.Now}, clk
}

func intp(v int) *int { return &v }

func countRows(t *testing.T, db *gorm.DB, model any, deviceID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where("device_id = ?", deviceID).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

// ---------- Register ----------

func TestRegister_Validation(t *testing.T) {
	s, _ := newDeviceSvc(newSvcDB(t, true))
	for _, id := range []string{"", "   "} {
		_, err := s.Register(context.Background(), RegisterInput{DeviceID: id})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("device_id=%q: want ErrValidation, got %v", id, err)
		}
	}
}

func TestRegister_IdempotentSingleRow(t *testing.T) {
	db := newSvcDB(t, true)
	s, clk := newDeviceSvc(db)
	ctx := context.Background()

	in := RegisterInput{DeviceID: "dev-1", DeviceName: "Pixel", OSVersion: "14", BatteryLevel: intp(80), PhoneNumber: "+100"}

	created, err := s.Register(ctx, in)
	if err != nil || !created {
		t.Fatalf("first register: created=%v err=%v", created, err)
	}
	firstSeen := clk.Now()

	clk.Advance(5 * time.Second)
	created, err = s.Register(ctx, in)
	if err != nil || created {
		t.Fatalf("second register: created=%v err=%v", created, err)
	}

	if n := countRows(t, db, &domain.Device{}, "dev-1"); n != 1 {
		t.Fatalf("expected exactly one row, got %d", n)
	}

	got, err := s.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.LastSeen.Equal(clk.Now()) {
		t.Fatalf("last_seen not refreshed: %v", got.LastSeen.Time)
	}
	if !got.CreatedAt.Equal(firstSeen) {
		t.Fatalf("created_at changed: %v", got.CreatedAt)
	}
}

func TestRegister_PlaceholdersOnCreate(t *testing.T) {
	s, _ := newDeviceSvc(newSvcDB(t, true))
	ctx := context.Background()

	if _, err := s.Register(ctx, RegisterInput{DeviceID: "bare"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := s.Get(ctx, "bare")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.DeviceName != domain.DefaultDeviceName || got.OSVersion != domain.DefaultOSVersion ||
		got.PhoneNumber != domain.DefaultPhoneNumber || got.BatteryLevel != 0 {
		t.Fatalf("unexpected placeholders: %+v", got.Device)
	}
}

func TestRegister_PartialUpdateFallsBack(t *testing.T) {
	s, _ := newDeviceSvc(newSvcDB(t, true))
	ctx := context.Background()

	if _, err := s.Register(ctx, RegisterInput{DeviceID: "d", DeviceName: "A", OSVersion: "13", BatteryLevel: intp(50), PhoneNumber: "+1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := s.Register(ctx, RegisterInput{DeviceID: "d", BatteryLevel: intp(40)}); err != nil {
		t.Fatalf("register partial: %v", err)
	}

	got, _ := s.Get(ctx, "d")
	if got.DeviceName != "A" || got.OSVersion != "13" || got.PhoneNumber != "+1" {
		t.Fatalf("text fields should fall back to stored values: %+v", got.Device)
	}
	if got.BatteryLevel != 40 {
		t.Fatalf("expected battery 40, got %d", got.BatteryLevel)
	}

	// Absent battery keeps the stored level; zero is a real reading.
	if _, err := s.Register(ctx, RegisterInput{DeviceID: "d"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got, _ := s.Get(ctx, "d"); got.BatteryLevel != 40 {
		t.Fatalf("nil battery should keep 40, got %d", got.BatteryLevel)
	}
	if _, err := s.Register(ctx, RegisterInput{DeviceID: "d", BatteryLevel: intp(0)}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got, _ := s.Get(ctx, "d"); got.BatteryLevel != 0 {
		t.Fatalf("explicit 0 should be stored, got %d", got.BatteryLevel)
	}
}

func TestRegister_NormalizesUnicode(t *testing.T) {
	s, _ := newDeviceSvc(newSvcDB(t, true))
	ctx := context.Background()

	// "é" as e + combining acute accent.
	if _, err := s.Register(ctx, RegisterInput{DeviceID: "  d1 ", DeviceName: "Cafe\u0301"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := s.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("Get trimmed id: %v", err)
	}
	if got.DeviceName != "Caf\u00e9" {
		t.Fatalf("expected NFC name, got %q", got.DeviceName)
	}
}

func TestRegister_CountsResults(t *testing.T) {
	s, _ := newDeviceSvc(newSvcDB(t, true))
	ctx := context.Background()

	created := testutil.ToFloat64(deviceRegistrations.WithLabelValues("created"))
	updated := testutil.ToFloat64(deviceRegistrations.WithLabelValues("updated"))

	_, _ = s.Register(ctx, RegisterInput{DeviceID: "m"})
	_, _ = s.Register(ctx, RegisterInput{DeviceID: "m"})

	if got := testutil.ToFloat64(deviceRegistrations.WithLabelValues("created")) - created; got != 1 {
		t.Fatalf("created delta = %v", got)
	}
	if got := testutil.ToFloat64(deviceRegistrations.WithLabelValues("updated")) - updated; got != 1 {
		t.Fatalf("updated delta = %v", got)
	}
}

// ---------- Liveness / List ----------

func TestList_LivenessThreshold(t *testing.T) {
	s, clk := newDeviceSvc(newSvcDB(t, true))
	ctx := context.Background()

	if _, err := s.Register(ctx, RegisterInput{DeviceID: "d"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := []struct {
		after  time.Duration
		online bool
	}{
		{0, true},
		{19 * time.Second, true},
		{20 * time.Second, false},
		{21 * time.Second, false},
		{35 * time.Second, false},
	}
	start := clk.Now()
	for _, tc := range cases {
		clk.t = start.Add(tc.after)
		list := s.List(ctx)
		if len(list) != 1 {
			t.Fatalf("expected 1 device, got %d", len(list))
		}
		if list[0].IsOnline != tc.online {
			t.Fatalf("after %v: is_online=%v, want %v", tc.after, list[0].IsOnline, tc.online)
		}
		if list[0].SecondsSinceSeen != int64(tc.after/time.Second) {
			t.Fatalf("after %v: seconds_since_seen=%d", tc.after, list[0].SecondsSinceSeen)
		}
	}
}

func TestList_OrderStableAcrossHeartbeats(t *testing.T) {
	s, clk := newDeviceSvc(newSvcDB(t, true))
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		if _, err := s.Register(ctx, RegisterInput{DeviceID: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		clk.Advance(time.Second)
	}
	// A later heartbeat from the first device must not move it.
	if _, err := s.Register(ctx, RegisterInput{DeviceID: "first"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	list := s.List(ctx)
	want := []string{"first", "second", "third"}
	if len(list) != len(want) {
		t.Fatalf("expected %d devices, got %d", len(want), len(list))
	}
	for i := range want {
		if list[i].DeviceID != want[i] {
			t.Fatalf("position %d: want %s, got %s", i, want[i], list[i].DeviceID)
		}
	}
}

func TestList_MalformedLastSeenIsOffline(t *testing.T) {
	db := newSvcDB(t, true)
	s, _ := newDeviceSvc(db)
	ctx := context.Background()

	if _, err := s.Register(ctx, RegisterInput{DeviceID: "ok"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := db.Exec(`INSERT INTO devices (device_id, device_name, os_version, phone_number, battery_level, last_seen, created_at)
	                   VALUES ('broken','n','o','p',0,'garbage',?)`, time.Date(2025, 5, 1, 12, 0, 1, 0, time.UTC)).Error; err != nil {
		t.Fatalf("raw insert: %v", err)
	}

	list := s.List(ctx)
	if len(list) != 2 {
		t.Fatalf("expected both rows listed, got %d", len(list))
	}
	for _, d := range list {
		switch d.DeviceID {
		case "ok":
			if !d.IsOnline {
				t.Fatalf("valid device should be online")
			}
		case "broken":
			if d.IsOnline || d.SecondsSinceSeen != -1 {
				t.Fatalf("malformed last_seen should be offline/-1, got %+v", d)
			}
		}
	}
}

func TestList_StoreFailureIsEmpty(t *testing.T) {
	s, _ := newDeviceSvc(newSvcDB(t, false))
	list := s.List(context.Background())
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list)
	}
}

func TestGet_NotFoundAndStoreError(t *testing.T) {
	s, _ := newDeviceSvc(newSvcDB(t, true))
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("want ErrDeviceNotFound, got %v", err)
	}

	broken, _ := newDeviceSvc(newSvcDB(t, false))
	_, err := broken.Get(context.Background(), "x")
	if err == nil || errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("store error should surface, got %v", err)
	}
}

// ---------- Delete ----------

func seedOwned(t *testing.T, db *gorm.DB, deviceID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := repo.CreateCommand(ctx, db, deviceID, "ping", []byte(`{}`)); err != nil {
		t.Fatalf("seed command: %v", err)
	}
	if _, err := repo.CreateSMS(ctx, db, deviceID, "+1", "hello"); err != nil {
		t.Fatalf("seed sms: %v", err)
	}
	if _, err := repo.CreateForm(ctx, db, deviceID, `{"a":1}`); err != nil {
		t.Fatalf("seed form: %v", err)
	}
}

func TestDelete_CascadesOnlyOwnRows(t *testing.T) {
	db := newSvcDB(t, true)
	s, _ := newDeviceSvc(db)
	ctx := context.Background()

	for _, id := range []string{"victim", "bystander"} {
		if _, err := s.Register(ctx, RegisterInput{DeviceID: id}); err != nil {
			t.Fatalf("register: %v", err)
		}
		seedOwned(t, db, id)
	}

	if err := s.Delete(ctx, "victim"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	for _, m := range []any{&domain.Device{}, &domain.Command{}, &domain.SmsLog{}, &domain.FormSubmission{}} {
		if n := countRows(t, db, m, "victim"); n != 0 {
			t.Fatalf("%T rows left for victim: %d", m, n)
		}
		if n := countRows(t, db, m, "bystander"); n != 1 {
			t.Fatalf("%T rows for bystander: want 1, got %d", m, n)
		}
	}
}

func TestDelete_MissingDeviceIsStrict(t *testing.T) {
	db := newSvcDB(t, true)
	s, _ := newDeviceSvc(db)
	ctx := context.Background()

	// Orphan rows under an id that was never registered.
	seedOwned(t, db, "ghost")

	if err := s.Delete(ctx, "ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("want ErrDeviceNotFound, got %v", err)
	}
	if n := countRows(t, db, &domain.Command{}, "ghost"); n != 1 {
		t.Fatalf("rollback expected; commands left = %d", n)
	}
}

func TestDelete_AtomicOnFailure(t *testing.T) {
	db := newSvcDB(t, true)
	s, _ := newDeviceSvc(db)
	ctx := context.Background()

	if _, err := s.Register(ctx, RegisterInput{DeviceID: "d"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	seedOwned(t, db, "d")

	// Make the last cascade step fail.
	if err := db.Migrator().DropTable(&domain.FormSubmission{}); err != nil {
		t.Fatalf("drop: %v", err)
	}

	if err := s.Delete(ctx, "d"); err == nil {
		t.Fatalf("expected error from failed cascade")
	}
	if n := countRows(t, db, &domain.Device{}, "d"); n != 1 {
		t.Fatalf("device row should survive the rollback, got %d", n)
	}
	if n := countRows(t, db, &domain.Command{}, "d"); n != 1 {
		t.Fatalf("commands should survive the rollback, got %d", n)
	}
	if n := countRows(t, db, &domain.SmsLog{}, "d"); n != 1 {
		t.Fatalf("sms should survive the rollback, got %d", n)
	}
}

// ---------- Stats ----------

func TestStats(t *testing.T) {
	db := newSvcDB(t, true)
	s, clk := newDeviceSvc(db)
	ctx := context.Background()

	if _, err := s.Register(ctx, RegisterInput{DeviceID: "old"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	clk.Advance(30 * time.Second)
	if _, err := s.Register(ctx, RegisterInput{DeviceID: "fresh"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := repo.CreateCommand(ctx, db, "fresh", "ping", []byte(`{}`)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	st := s.Stats(ctx)
	if st.Devices != 2 || st.Online != 1 {
		t.Fatalf("unexpected device stats: %+v", st)
	}
	if st.Commands[domain.CommandPending] != 1 {
		t.Fatalf("expected 1 pending, got %+v", st.Commands)
	}

	empty := (&DeviceService{DB: newSvcDB(t, false)}).Stats(ctx)
	if empty.Devices != 0 || empty.Commands == nil {
		t.Fatalf("lenient stats expected zeros, got %+v", empty)
	}
}
