package service

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"sync"
	"testing"
	"time"

	availerrors "agencydesk/internal/availability/errors"
	"agencydesk/internal/availability/repository"
	"agencydesk/internal/catalog"
	"agencydesk/pkg/clock"
	"agencydesk/pkg/config"
	apperrors "agencydesk/pkg/errors"
	"agencydesk/pkg/logger"
	"agencydesk/pkg/model"
	"agencydesk/pkg/notify"
)

const (
	agencyID = "agency-1"
	monday   = "2026-03-02"
)

var (
	staff = model.Staff{ID: "staff-a", Name: "Alice"}

	weekdayHours = []model.BusinessHours{
		{Weekday: "Monday", Open: "09:00", Close: "17:00"},
		{Weekday: "Tuesday", Open: "09:00", Close: "17:00"},
		{Weekday: "Wednesday", Open: "09:00", Close: "12:30"},
		{Weekday: "Sunday", Closed: true},
	}

	allSlots = []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"}
)

type fakeRequests struct {
	mu        sync.Mutex
	confirmed []*model.Request
	pending   []*model.Request

	FindConfirmedFunc func() error
}

func (f *fakeRequests) FindConfirmedBetween(_ context.Context, agency string, from, to time.Time) ([]*model.Request, error) {
	if f.FindConfirmedFunc != nil {
		if err := f.FindConfirmedFunc(); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return between(f.confirmed, agency, from, to, func(r *model.Request) *time.Time { return r.StartAt }), nil
}

func (f *fakeRequests) FindPendingPreferredBetween(_ context.Context, agency string, from, to time.Time) ([]*model.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return between(f.pending, agency, from, to, func(r *model.Request) *time.Time { return r.PreferredAt }), nil
}

func (f *fakeRequests) confirm(id string, start time.Time) *model.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	end := start.Add(time.Hour)
	r := &model.Request{ID: id, AgencyID: agencyID, Status: model.StatusConfirmed, StartAt: &start, EndAt: &end}
	f.confirmed = append(f.confirmed, r)
	return r
}

func between(rs []*model.Request, agency string, from, to time.Time, at func(*model.Request) *time.Time) []*model.Request {
	var out []*model.Request
	for _, r := range rs {
		t := at(r)
		if r.AgencyID == agency && t != nil && !t.Before(from) && t.Before(to) {
			out = append(out, r)
		}
	}
	return out
}

// conflictingRepo rejects the first n replaces as if another writer won.
type conflictingRepo struct {
	repository.AvailabilityRepository
	mu sync.Mutex
	n  int
}

func (r *conflictingRepo) Replace(ctx context.Context, set *model.AvailabilitySet, expected int64) error {
	r.mu.Lock()
	if r.n > 0 {
		r.n--
		r.mu.Unlock()
		return availerrors.ErrVersionConflict
	}
	r.mu.Unlock()
	return r.AvailabilityRepository.Replace(ctx, set, expected)
}

type fixture struct {
	svc      AvailabilityService
	sets     *repository.MemoryAvailabilityRepository
	blocked  *repository.MemoryBlockedSlotRepository
	requests *fakeRequests
	clock    *clock.Manual
	recorder *notify.Recorder
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{
		sets:     repository.NewMemoryAvailabilityRepository(),
		blocked:  repository.NewMemoryBlockedSlotRepository(),
		requests: &fakeRequests{},
		clock:    clock.NewManual(now),
		recorder: notify.NewRecorder(),
	}
	agencies := catalog.NewMemoryCatalog(&model.Agency{ID: agencyID, Name: "Downtown", Hours: weekdayHours})
	cfg := &config.Config{Log: logger.Discard(), AvailabilityMaxRetries: 3}
	f.svc = NewAvailabilityService(f.sets, f.blocked, agencies, f.requests, f.recorder, f.clock, cfg)
	return f
}

// sunday is the day before monday, 10:00 UTC.
var sunday = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func at(date, hhmm string) time.Time {
	t, err := time.Parse(model.DateLayout+" "+model.SlotLayout, date+" "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func mustSet(t *testing.T, svc AvailabilityService, date string) *model.AvailabilitySet {
	t.Helper()
	set, err := svc.GetOrCreate(context.Background(), agencyID, date)
	if err != nil {
		t.Fatalf("GetOrCreate(%s) error = %v", date, err)
	}
	return set
}

func assertPartition(t *testing.T, set *model.AvailabilitySet, slots []string) {
	t.Helper()
	seen := make(map[string]int)
	for _, s := range set.Available {
		seen[s]++
	}
	for _, b := range set.Booked {
		seen[b.Time]++
	}
	for _, s := range slots {
		if seen[s] != 1 {
			t.Fatalf("slot %s appears %d times in %+v", s, seen[s], set)
		}
	}
	if !slices.IsSorted(set.Available) {
		t.Fatalf("available not sorted: %v", set.Available)
	}
}

func TestGetOrCreate_BuildsFromHours(t *testing.T) {
	f := newFixture(t, sunday)

	set := mustSet(t, f.svc, monday)
	if !slices.Equal(set.Available, allSlots) {
		t.Errorf("Available = %v, want %v", set.Available, allSlots)
	}
	if set.Version != 1 {
		t.Errorf("Version = %d, want 1", set.Version)
	}

	again := mustSet(t, f.svc, monday)
	if again.Version != 1 {
		t.Errorf("second GetOrCreate rebuilt the set, version %d", again.Version)
	}
}

func TestGetOrCreate_Variants(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		date      string
		available []string
		version   int64
	}{
		{"closed day", sunday, "2026-03-08", []string{}, 1},
		{"day missing from hours", sunday, "2026-03-06", []string{}, 1},
		{"close not on the hour", sunday, "2026-03-04", []string{"09:00", "10:00", "11:00", "12:00"}, 1},
		{"past date", sunday, "2026-02-27", []string{}, 0},
		{"today drops started slots", at(monday, "11:30"), monday, []string{"12:00", "13:00", "14:00", "15:00", "16:00"}, 1},
		{"today on the hour", at(monday, "12:00"), monday, []string{"13:00", "14:00", "15:00", "16:00"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.now)
			set := mustSet(t, f.svc, tt.date)
			if !slices.Equal(set.Available, tt.available) {
				t.Errorf("Available = %v, want %v", set.Available, tt.available)
			}
			if set.Version != tt.version {
				t.Errorf("Version = %d, want %d", set.Version, tt.version)
			}
		})
	}
}

func TestGetOrCreate_ExcludesConfirmedAndBlocked(t *testing.T) {
	f := newFixture(t, sunday)
	ctx := context.Background()
	f.requests.confirm("req-1", at(monday, "10:15"))
	_ = f.blocked.Insert(ctx, &model.BlockedSlot{ID: "b-1", AgencyID: agencyID, Date: monday, Time: "15:00", Reason: "Training"})

	set := mustSet(t, f.svc, monday)

	if set.IsAvailable("10:00") || set.IsAvailable("15:00") {
		t.Fatalf("Available = %v", set.Available)
	}
	details := f.svc.SlotDetails(set)
	if details["10:00"] != "Booked: request req-1" || details["15:00"] != "Blocked: Training" {
		t.Errorf("SlotDetails = %v", details)
	}
	assertPartition(t, set, allSlots)
}

func TestGetOrCreate_UnknownAgency(t *testing.T) {
	f := newFixture(t, sunday)

	_, err := f.svc.GetOrCreate(context.Background(), "nope", monday)
	if !apperrors.HasCode(err, apperrors.CodeNotFound) || !errors.Is(err, catalog.ErrAgencyNotFound) {
		t.Fatalf("error = %v, want NotFound", err)
	}

	_, err = f.svc.GetOrCreate(context.Background(), agencyID, "02/03/2026")
	if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("error = %v, want InvalidInput", err)
	}
}

// Monday 09:00-17:00: a held slot, a blocked slot and their reversal.
func TestScenario_WorkingDay(t *testing.T) {
	f := newFixture(t, sunday)
	ctx := context.Background()

	if err := f.svc.HoldProvisionally(ctx, agencyID, at(monday, "10:30"), "req-1"); err != nil {
		t.Fatalf("HoldProvisionally() error = %v", err)
	}
	ok, err := f.svc.IsAvailable(ctx, agencyID, monday, "10:00")
	if err != nil || ok {
		t.Fatalf("IsAvailable(10:00) = %v, %v; want false", ok, err)
	}

	blocked, err := f.svc.Block(ctx, agencyID, monday, "14:00", "Staff meeting", staff)
	if err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	if blocked.BlockedByID != staff.ID || blocked.Time != "14:00" {
		t.Errorf("blocked = %+v", blocked)
	}
	if ok, _ := f.svc.IsAvailable(ctx, agencyID, monday, "14:00"); ok {
		t.Error("blocked slot reported available")
	}

	_, err = f.svc.Block(ctx, agencyID, monday, "14:00", "Again", staff)
	if !apperrors.HasCode(err, apperrors.CodeConflict) || !errors.Is(err, availerrors.ErrAlreadyBlocked) {
		t.Fatalf("second Block() error = %v, want Conflict", err)
	}

	if err := f.svc.Unblock(ctx, agencyID, monday, "14:00", staff); err != nil {
		t.Fatalf("Unblock() error = %v", err)
	}
	if ok, _ := f.svc.IsAvailable(ctx, agencyID, monday, "14:00"); !ok {
		t.Error("unblocked slot not available")
	}

	err = f.svc.Unblock(ctx, agencyID, monday, "14:00", staff)
	if !apperrors.HasCode(err, apperrors.CodeNotBlocked) || !errors.Is(err, availerrors.ErrNotBlocked) {
		t.Fatalf("second Unblock() error = %v, want NotBlocked", err)
	}

	if err := f.svc.Release(ctx, agencyID, at(monday, "10:00")); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	set := mustSet(t, f.svc, monday)
	if !slices.Equal(set.Available, allSlots) {
		t.Errorf("Available after release = %v", set.Available)
	}

	if got := len(f.recorder.Topic(notify.TopicSlotManagement)); got != 2 {
		t.Errorf("slot-management events = %d, want 2", got)
	}
	if got := len(f.recorder.Topic(notify.AvailabilityTopic(agencyID))); got != 4 {
		t.Errorf("availability events = %d, want 4", got)
	}
}

func TestIsAvailable(t *testing.T) {
	f := newFixture(t, at(monday, "11:30"))
	ctx := context.Background()

	tests := []struct {
		date, slot string
		want       bool
	}{
		{monday, "12:00", true},
		{monday, "11:00", false},
		{monday, "08:00", false},
		{monday, "17:00", false},
		{"2026-02-27", "10:00", false},
		{"2026-03-03", "9:00", true},
	}
	for _, tt := range tests {
		got, err := f.svc.IsAvailable(ctx, agencyID, tt.date, tt.slot)
		if err != nil {
			t.Fatalf("IsAvailable(%s %s) error = %v", tt.date, tt.slot, err)
		}
		if got != tt.want {
			t.Errorf("IsAvailable(%s %s) = %v, want %v", tt.date, tt.slot, got, tt.want)
		}
	}

	if _, err := f.svc.IsAvailable(ctx, agencyID, monday, "noon"); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("IsAvailable(noon) error = %v", err)
	}
}

func TestRelease_Rules(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		slot  string
		freed bool
	}{
		{
			name:  "held slot is freed",
			setup: func(f *fixture) { _ = f.svc.HoldProvisionally(context.Background(), agencyID, at(monday, "11:00"), "req-1") },
			slot:  "11:00",
			freed: true,
		},
		{
			name: "confirmed request keeps the slot",
			setup: func(f *fixture) {
				r := f.requests.confirm("req-2", at(monday, "11:00"))
				_ = f.svc.CommitConfirmed(context.Background(), r)
			},
			slot: "11:00",
		},
		{
			name: "blocked slot stays blocked",
			setup: func(f *fixture) {
				_, _ = f.svc.Block(context.Background(), agencyID, monday, "11:00", "Closed", staff)
			},
			slot: "11:00",
		},
		{
			name:  "outside hours is ignored",
			setup: func(f *fixture) {},
			slot:  "18:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, sunday)
			tt.setup(f)

			if err := f.svc.Release(context.Background(), agencyID, at(monday, tt.slot)); err != nil {
				t.Fatalf("Release() error = %v", err)
			}
			set := mustSet(t, f.svc, monday)
			if set.IsAvailable(tt.slot) != tt.freed {
				t.Errorf("IsAvailable(%s) = %v, want %v", tt.slot, !tt.freed, tt.freed)
			}
			assertPartition(t, set, allSlots)
		})
	}
}

func TestRelease_StartedSlotStaysBooked(t *testing.T) {
	f := newFixture(t, at(monday, "08:00"))
	ctx := context.Background()

	if err := f.svc.HoldProvisionally(ctx, agencyID, at(monday, "09:00"), "req-1"); err != nil {
		t.Fatal(err)
	}
	f.clock.Set(at(monday, "09:10"))

	if err := f.svc.Release(ctx, agencyID, at(monday, "09:00")); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	set := mustSet(t, f.svc, monday)
	if set.IsAvailable("09:00") {
		t.Error("started slot returned to available")
	}
}

func TestCommitConfirmed(t *testing.T) {
	f := newFixture(t, sunday)
	ctx := context.Background()
	r := f.requests.confirm("req-1", at(monday, "13:00"))

	for range 2 {
		if err := f.svc.CommitConfirmed(ctx, r); err != nil {
			t.Fatalf("CommitConfirmed() error = %v", err)
		}
	}
	set := mustSet(t, f.svc, monday)
	if b, ok := set.BookedAt("13:00"); !ok || b.Origin != model.OriginConfirmed {
		t.Errorf("BookedAt(13:00) = %+v, %v", b, ok)
	}
	if set.Version != 2 {
		t.Errorf("Version = %d, want 2 after an idempotent commit", set.Version)
	}

	_, _ = f.svc.Block(ctx, agencyID, monday, "15:00", "Inventory", staff)
	start := at(monday, "15:00")
	err := f.svc.CommitConfirmed(ctx, &model.Request{ID: "req-2", AgencyID: agencyID, StartAt: &start})
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("CommitConfirmed(blocked) error = %v, want Conflict", err)
	}

	if err := f.svc.CommitConfirmed(ctx, &model.Request{ID: "req-3", AgencyID: agencyID}); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("CommitConfirmed(no start) error = %v", err)
	}
}

func TestCommitConfirmed_ReplacesProvisionalHold(t *testing.T) {
	f := newFixture(t, sunday)
	ctx := context.Background()

	_ = f.svc.HoldProvisionally(ctx, agencyID, at(monday, "10:00"), "req-1")
	r := f.requests.confirm("req-1", at(monday, "10:00"))
	if err := f.svc.CommitConfirmed(ctx, r); err != nil {
		t.Fatal(err)
	}

	b, _ := mustSet(t, f.svc, monday).BookedAt("10:00")
	if b.Origin != model.OriginConfirmed {
		t.Errorf("origin = %s, want confirmed", b.Origin)
	}
}

func TestBlock_ConflictsWithConfirmedRequest(t *testing.T) {
	f := newFixture(t, sunday)
	f.requests.confirm("req-1", at(monday, "09:45"))

	_, err := f.svc.Block(context.Background(), agencyID, monday, "09:00", "Holiday", staff)
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("Block() error = %v, want Conflict", err)
	}
	if _, err := f.blocked.Find(context.Background(), agencyID, monday, "09:00"); !errors.Is(err, availerrors.ErrNotBlocked) {
		t.Error("blocked slot persisted despite conflict")
	}
}

func TestBlock_InvalidInput(t *testing.T) {
	f := newFixture(t, sunday)
	ctx := context.Background()

	if _, err := f.svc.Block(ctx, agencyID, monday, "10:00", "  ", staff); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("empty reason error = %v", err)
	}
	if _, err := f.svc.Block(ctx, agencyID, monday, "25:00", "Closed", staff); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("bad time error = %v", err)
	}
}

func TestUnblock_StartedSlotBecomesElapsed(t *testing.T) {
	f := newFixture(t, at(monday, "08:00"))
	ctx := context.Background()

	if _, err := f.svc.Block(ctx, agencyID, monday, "09:00", "Late opening", staff); err != nil {
		t.Fatal(err)
	}
	f.clock.Set(at(monday, "09:30"))

	if err := f.svc.Unblock(ctx, agencyID, monday, "09:00", staff); err != nil {
		t.Fatalf("Unblock() error = %v", err)
	}
	b, ok := mustSet(t, f.svc, monday).BookedAt("09:00")
	if !ok || b.Origin != model.OriginElapsed {
		t.Errorf("BookedAt(09:00) = %+v, %v; want elapsed", b, ok)
	}
}

func TestUnblock_FailedSetWriteKeepsBlock(t *testing.T) {
	f := newFixture(t, sunday)
	ctx := context.Background()

	if _, err := f.svc.Block(ctx, agencyID, monday, "10:00", "Maintenance", staff); err != nil {
		t.Fatal(err)
	}

	repo := &conflictingRepo{AvailabilityRepository: f.sets, n: 3}
	svc := NewAvailabilityService(repo, f.blocked, catalog.NewMemoryCatalog(&model.Agency{ID: agencyID, Hours: weekdayHours}),
		f.requests, f.recorder, f.clock, &config.Config{Log: logger.Discard(), AvailabilityMaxRetries: 3})

	err := svc.Unblock(ctx, agencyID, monday, "10:00", staff)
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("Unblock() error = %v, want Conflict", err)
	}
	if _, err := f.blocked.Find(ctx, agencyID, monday, "10:00"); err != nil {
		t.Fatalf("blocked record lost after failed unblock: %v", err)
	}
	b, ok := mustSet(t, f.svc, monday).BookedAt("10:00")
	if !ok || b.Origin != model.OriginBlocked {
		t.Fatalf("BookedAt(10:00) = %+v, %v; want blocked", b, ok)
	}

	if err := f.svc.Unblock(ctx, agencyID, monday, "10:00", staff); err != nil {
		t.Fatalf("retry Unblock() error = %v", err)
	}
	available, err := f.svc.IsAvailable(ctx, agencyID, monday, "10:00")
	if err != nil || !available {
		t.Errorf("IsAvailable(10:00) = %v, %v; want true", available, err)
	}
}

func TestMutate_RetriesVersionConflicts(t *testing.T) {
	tests := []struct {
		name      string
		conflicts int
		wantErr   bool
	}{
		{"succeeds after conflicts", 2, false},
		{"gives up", 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, sunday)
			mustSet(t, f.svc, monday)

			repo := &conflictingRepo{AvailabilityRepository: f.sets, n: tt.conflicts}
			svc := NewAvailabilityService(repo, f.blocked, catalog.NewMemoryCatalog(&model.Agency{ID: agencyID, Hours: weekdayHours}),
				f.requests, f.recorder, f.clock, &config.Config{Log: logger.Discard(), AvailabilityMaxRetries: 3})

			err := svc.HoldProvisionally(context.Background(), agencyID, at(monday, "09:00"), "req-1")
			if tt.wantErr {
				if !apperrors.HasCode(err, apperrors.CodeConflict) || !errors.Is(err, availerrors.ErrVersionConflict) {
					t.Fatalf("error = %v, want Conflict", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if mustSet(t, svc, monday).IsAvailable("09:00") {
				t.Error("hold was not applied")
			}
		})
	}
}

func TestConcurrentHolds_OneWinnerPerSlot(t *testing.T) {
	f := newFixture(t, sunday)
	mustSet(t, f.svc, monday)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slot := allSlots[i%len(allSlots)]
			_ = f.svc.HoldProvisionally(ctx, agencyID, at(monday, slot), "req")
		}(i)
	}
	wg.Wait()

	set := mustSet(t, f.svc, monday)
	assertPartition(t, set, allSlots)
}

func TestPartition_RandomOperations(t *testing.T) {
	f := newFixture(t, sunday)
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(42))

	for i := range 300 {
		slot := allSlots[rnd.Intn(len(allSlots))]
		switch rnd.Intn(4) {
		case 0:
			_ = f.svc.HoldProvisionally(ctx, agencyID, at(monday, slot), "req")
		case 1:
			_ = f.svc.Release(ctx, agencyID, at(monday, slot))
		case 2:
			_, _ = f.svc.Block(ctx, agencyID, monday, slot, "Random", staff)
		case 3:
			_ = f.svc.Unblock(ctx, agencyID, monday, slot, staff)
		}

		set := mustSet(t, f.svc, monday)
		assertPartition(t, set, allSlots)
		for _, b := range set.Booked {
			_, err := f.blocked.Find(ctx, agencyID, monday, b.Time)
			if blocked := err == nil; blocked != (b.Origin == model.OriginBlocked) {
				t.Fatalf("step %d: slot %s origin %s, blocked record %v", i, b.Time, b.Origin, blocked)
			}
		}
	}
}

func TestWeekAvailability(t *testing.T) {
	f := newFixture(t, sunday)

	week, err := f.svc.WeekAvailability(context.Background(), agencyID, monday)
	if err != nil {
		t.Fatalf("WeekAvailability() error = %v", err)
	}
	if len(week) != 7 {
		t.Fatalf("len = %d, want 7", len(week))
	}
	if week[0].Date != monday || week[6].Date != "2026-03-08" {
		t.Errorf("dates = %s..%s", week[0].Date, week[6].Date)
	}
	if len(week[0].Available) != 8 || len(week[2].Available) != 4 || len(week[6].Available) != 0 {
		t.Errorf("slot counts = %d, %d, %d", len(week[0].Available), len(week[2].Available), len(week[6].Available))
	}

	if _, err := f.svc.WeekAvailability(context.Background(), agencyID, "next week"); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("bad start error = %v", err)
	}
}

func TestRefresh_RebuildsFromSources(t *testing.T) {
	f := newFixture(t, sunday)
	ctx := context.Background()
	mustSet(t, f.svc, monday)

	preferred := at(monday, "16:00")
	f.requests.pending = append(f.requests.pending, &model.Request{ID: "req-9", AgencyID: agencyID, Status: model.StatusPending, PreferredAt: &preferred})
	f.requests.confirm("req-1", at(monday, "09:00"))

	set, err := f.svc.Refresh(ctx, agencyID, monday)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if set.Version != 2 {
		t.Errorf("Version = %d, want 2", set.Version)
	}
	details := f.svc.SlotDetails(set)
	if details["16:00"] != "Held: request req-9" || details["09:00"] != "Booked: request req-1" {
		t.Errorf("SlotDetails = %v", details)
	}

	fresh, err := f.svc.Refresh(ctx, agencyID, "2026-03-03")
	if err != nil || fresh.Version != 1 {
		t.Errorf("Refresh(new day) = %+v, %v", fresh, err)
	}
}

func TestRetireElapsed(t *testing.T) {
	f := newFixture(t, at(monday, "08:00"))
	ctx := context.Background()
	mustSet(t, f.svc, monday)
	mustSet(t, f.svc, "2026-03-03")

	f.clock.Set(at(monday, "11:05"))
	n, err := f.svc.RetireElapsed(ctx)
	if err != nil {
		t.Fatalf("RetireElapsed() error = %v", err)
	}
	if n != 3 {
		t.Errorf("retired = %d, want 3", n)
	}

	set := mustSet(t, f.svc, monday)
	if !slices.Equal(set.Available, allSlots[3:]) {
		t.Errorf("Available = %v", set.Available)
	}
	if f.svc.SlotDetails(set)["10:00"] != "Elapsed" {
		t.Errorf("10:00 not marked elapsed: %v", set.Booked)
	}
	assertPartition(t, set, allSlots)

	n, err = f.svc.RetireElapsed(ctx)
	if err != nil || n != 0 {
		t.Errorf("second RetireElapsed() = %d, %v; want 0", n, err)
	}

	tomorrow := mustSet(t, f.svc, "2026-03-03")
	if len(tomorrow.Available) != 8 {
		t.Errorf("tomorrow touched: %v", tomorrow.Available)
	}
}

func TestStoreFailure_IsInternal(t *testing.T) {
	f := newFixture(t, sunday)
	f.requests.FindConfirmedFunc = func() error { return errors.New("connection reset") }

	_, err := f.svc.GetOrCreate(context.Background(), agencyID, monday)
	if !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Fatalf("error = %v, want Internal", err)
	}
}
