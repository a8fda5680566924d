package rotationservice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starford/attune/internal/apperr"
	"github.com/starford/attune/internal/models"
	"github.com/starford/attune/internal/reading"
	"github.com/starford/attune/internal/scheduler"
	"github.com/starford/attune/internal/testutil"
)

type recorder struct {
	mu    sync.Mutex
	types []string
}

func (r *recorder) publish(typ string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, typ)
}

func newService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	reg := testutil.TestRegistry(t)
	readings := reading.NewEngine()
	mgr := scheduler.NewManager(reg, readings, scheduler.WithHeartbeat(time.Millisecond))
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	rec := &recorder{}
	defaults := scheduler.Config{
		DurationPerTarget: time.Hour,
		OnlyActive:        true,
		LinkReading:       true,
		Reading:           reading.SessionParams{BaselineToneArm: 5, Sensitivity: 1},
	}
	return New(reg, readings, mgr, defaults, WithPublisher(rec.publish)), rec
}

func TestStartRequest_Apply(t *testing.T) {
	base := scheduler.Config{DurationPerTarget: time.Minute, OnlyActive: true, Reading: reading.SessionParams{BaselineToneArm: 5, Sensitivity: 1}}
	dur := int64(1500)
	cont := true
	sens := 2.5

	got := StartRequest{DurationPerTargetMs: &dur, ContinuousMode: &cont, Sensitivity: &sens}.Apply(base)
	if got.DurationPerTarget != 1500*time.Millisecond || !got.ContinuousMode || got.Reading.Sensitivity != 2.5 {
		t.Errorf("applied = %+v", got)
	}
	if !got.OnlyActive || got.Reading.BaselineToneArm != 5 {
		t.Errorf("defaults lost: %+v", got)
	}
	if empty := (StartRequest{}).Apply(base); empty != base {
		t.Errorf("empty request changed defaults: %+v", empty)
	}
}

func TestTargetEventsPublished(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	tg, err := svc.CreateTarget(ctx, models.TargetInput{Name: "a", Locator: "https://example.com/a"})
	if err != nil {
		t.Fatal(err)
	}
	name := "b"
	if _, err := svc.UpdateTarget(ctx, tg.ID, models.TargetPatch{Name: &name}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RefreshTarget(ctx, tg.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteTarget(ctx, tg.ID); err != nil {
		t.Fatal(err)
	}
	// Failed calls publish nothing.
	_ = svc.DeleteTarget(ctx, tg.ID)
	_, _ = svc.CreateTarget(ctx, models.TargetInput{})

	want := []string{EventTargetCreated, EventTargetUpdated, EventTargetUpdated, EventTargetDeleted}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.types) != len(want) {
		t.Fatalf("events = %v, want %v", rec.types, want)
	}
	for i := range want {
		if rec.types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, rec.types[i], want[i])
		}
	}
}

func TestReadingSessionLifecycle(t *testing.T) {
	svc, _ := newService(t)

	info, err := svc.OpenReadingSession(nil)
	if err != nil {
		t.Fatal(err)
	}
	if info.BaselineToneArm != 5 || info.Sensitivity != 1 {
		t.Errorf("defaults not applied: %+v", info)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.TakeReading(info.ID); err != nil {
			t.Fatal(err)
		}
	}
	sum, _ := svc.ReadingSummary(info.ID)
	if sum.Count != 3 {
		t.Errorf("summary count = %d", sum.Count)
	}
	if _, err := svc.CloseReadingSession(info.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.TakeReading(info.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("reading after close err = %v", err)
	}

	if _, err := svc.OpenReadingSession(&reading.SessionParams{BaselineToneArm: 5, Sensitivity: 9}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad params err = %v", err)
	}
}

func TestStartRotationUsesDefaults(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.StartRotation(ctx, StartRequest{}); !errors.Is(err, apperr.ErrEmptyQueue) {
		t.Fatalf("empty registry err = %v", err)
	}
	if _, err := svc.CreateTarget(ctx, models.TargetInput{Name: "a", Locator: "https://example.com/a"}); err != nil {
		t.Fatal(err)
	}
	st, err := svc.StartRotation(ctx, StartRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if st.Config.DurationPerTarget != time.Hour || !st.Config.LinkReading {
		t.Errorf("config = %+v", st.Config)
	}
	if len(svc.Rotations()) != 1 {
		t.Errorf("rotations = %d", len(svc.Rotations()))
	}
	if _, err := svc.StopRotation(ctx, st.ID); err != nil {
		t.Fatal(err)
	}
}

func TestRotationUsagePersistsInSQLite(t *testing.T) {
	reg := testutil.TestSQLiteRegistry(t)
	targets := testutil.SeedTargets(t, reg, 2)
	readings := reading.NewEngine()
	mgr := scheduler.NewManager(reg, readings, scheduler.WithHeartbeat(time.Millisecond))
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	svc := New(reg, readings, mgr, scheduler.Config{
		DurationPerTarget: 3 * time.Millisecond,
		OnlyActive:        true,
		LinkReading:       true,
		Reading:           reading.SessionParams{BaselineToneArm: 5, Sensitivity: 1},
	})

	st, err := svc.StartRotation(context.Background(), StartRequest{})
	if err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, 5*time.Millisecond, func() bool {
		s, _ := svc.RotationStatus(st.ID)
		return s.State == scheduler.StateStopped
	}, "rotation did not finish")

	for _, tg := range targets {
		got, err := svc.GetTarget(context.Background(), tg.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Usage.TotalServings != 1 || got.Usage.TotalDurationMs != 3 || got.Usage.LastServedAt == nil {
			t.Errorf("%s usage = %+v", tg.Name, got.Usage)
		}
	}
}
