package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	availrepo "agencydesk/internal/availability/repository"
	availservice "agencydesk/internal/availability/service"
	"agencydesk/internal/catalog"
	lockrepo "agencydesk/internal/locks/repository"
	lockservice "agencydesk/internal/locks/service"
	requesterrors "agencydesk/internal/requests/errors"
	"agencydesk/internal/requests/repository"
	"agencydesk/internal/requests/validator"
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
	staffA = model.Staff{ID: "staff-a", Name: "Alice"}
	staffB = model.Staff{ID: "staff-b", Name: "Bruno"}

	sunday = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc      RequestService
	repo     repository.RequestRepository
	locks    lockservice.LockService
	slots    availservice.AvailabilityService
	clock    *clock.Manual
	recorder *notify.Recorder
}

type options struct {
	wrapRepo func(repository.RequestRepository) repository.RequestRepository
	slots    SlotKeeper
}

func newFixture(t *testing.T, opts ...func(*options)) *fixture {
	t.Helper()
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &config.Config{Log: logger.Discard(), LockCacheSize: 16, AvailabilityMaxRetries: 3}
	clk := clock.NewManual(sunday)
	recorder := notify.NewRecorder()
	agencies := catalog.NewMemoryCatalog(&model.Agency{
		ID:    agencyID,
		Name:  "Downtown",
		Hours: []model.BusinessHours{{Weekday: "Monday", Open: "09:00", Close: "17:00"}},
	})

	var repo repository.RequestRepository = repository.NewMemoryRequestRepository()
	locks := lockservice.NewLockService(lockrepo.NewMemoryLockRepository(), recorder, clk, cfg)
	slots := availservice.NewAvailabilityService(
		availrepo.NewMemoryAvailabilityRepository(),
		availrepo.NewMemoryBlockedSlotRepository(),
		agencies, repo, recorder, clk, cfg,
	)

	var keeper SlotKeeper = slots
	if o.slots != nil {
		keeper = o.slots
	}
	store := repo
	if o.wrapRepo != nil {
		store = o.wrapRepo(repo)
	}

	return &fixture{
		svc:      NewRequestService(store, locks, keeper, agencies, validator.NewRequestValidator(cfg.Log), recorder, clk, cfg),
		repo:     repo,
		locks:    locks,
		slots:    slots,
		clock:    clk,
		recorder: recorder,
	}
}

type failingUpdateRepo struct {
	repository.RequestRepository
	err error
}

func (r *failingUpdateRepo) UpdateIfStatus(context.Context, *model.Request, model.RequestStatus) error {
	return r.err
}

type mockSlots struct {
	HoldFunc    func(ctx context.Context, agencyID string, at time.Time, requestID string) error
	ReleaseFunc func(ctx context.Context, agencyID string, at time.Time) error
	CommitFunc  func(ctx context.Context, request *model.Request) error
}

func (m *mockSlots) HoldProvisionally(ctx context.Context, agencyID string, at time.Time, requestID string) error {
	if m.HoldFunc != nil {
		return m.HoldFunc(ctx, agencyID, at, requestID)
	}
	return nil
}

func (m *mockSlots) Release(ctx context.Context, agencyID string, at time.Time) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, agencyID, at)
	}
	return nil
}

func (m *mockSlots) CommitConfirmed(ctx context.Context, request *model.Request) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx, request)
	}
	return nil
}

func at(hhmm string) time.Time {
	t, _ := time.Parse(model.DateLayout+" "+model.SlotLayout, monday+" "+hhmm)
	return t
}

func submission(requester, preferredTime string) *model.Submission {
	s := &model.Submission{RequesterID: requester, AgencyID: agencyID, ServiceID: "visa", Description: "Visa renewal"}
	if preferredTime != "" {
		s.PreferredDate = monday
		s.PreferredTime = preferredTime
	}
	return s
}

func (f *fixture) submit(t *testing.T, requester, preferredTime string) *model.Request {
	t.Helper()
	r, err := f.svc.Submit(context.Background(), submission(requester, preferredTime))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return r
}

func (f *fixture) lock(t *testing.T, requestID string, staff model.Staff) {
	t.Helper()
	granted, err := f.locks.Acquire(context.Background(), requestID, staff)
	if err != nil || !granted {
		t.Fatalf("Acquire(%s) = %v, %v", requestID, granted, err)
	}
}

func (f *fixture) confirm(t *testing.T, requestID, start string) *model.Request {
	t.Helper()
	f.lock(t, requestID, staffA)
	r, err := f.svc.Confirm(context.Background(), requestID, staffA, &model.Confirmation{StartAt: at(start), EndAt: at(start).Add(time.Hour)})
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	return r
}

func (f *fixture) available(t *testing.T, slot string) bool {
	t.Helper()
	ok, err := f.slots.IsAvailable(context.Background(), agencyID, monday, slot)
	if err != nil {
		t.Fatalf("IsAvailable(%s) error = %v", slot, err)
	}
	return ok
}

func TestSubmit_HoldsPreferredSlot(t *testing.T) {
	f := newFixture(t)

	r := f.submit(t, "client-1", "10:00")

	if r.Status != model.StatusPending || !r.Open || r.HandledByID != "" {
		t.Errorf("request = %+v", r)
	}
	if r.PreferredAt == nil || !r.PreferredAt.Equal(at("10:00")) {
		t.Errorf("PreferredAt = %v", r.PreferredAt)
	}
	if f.available(t, "10:00") {
		t.Error("preferred slot still available")
	}

	events := f.recorder.Topic(notify.TopicRequests)
	if len(events) != 1 || events[0].Payload.(model.RequestEvent).Type != model.RequestSubmitted {
		t.Errorf("requests events = %+v", events)
	}
}

func TestSubmit_Rejections(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, "client-1", "")

	tests := []struct {
		name     string
		input    *model.Submission
		wantCode string
		wantErr  error
	}{
		{name: "second open request", input: submission("client-1", ""), wantCode: apperrors.CodeConflict, wantErr: requesterrors.ErrActiveRequestExists},
		{name: "unknown agency", input: &model.Submission{RequesterID: "client-2", AgencyID: "nope"}, wantCode: apperrors.CodeNotFound, wantErr: catalog.ErrAgencyNotFound},
		{name: "missing requester", input: &model.Submission{AgencyID: agencyID}, wantCode: apperrors.CodeValidation},
		{name: "time without date", input: &model.Submission{RequesterID: "client-2", AgencyID: agencyID, PreferredTime: "10:00"}, wantCode: apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), tt.input)
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Fatalf("error = %v, want code %s", err, tt.wantCode)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	details := apperrors.AsAppError(mustErr(f.svc.Submit(context.Background(), submission("client-1", "")))).Details
	if details["request_id"] != first.ID {
		t.Errorf("conflict details = %v, want request_id %s", details, first.ID)
	}
}

func mustErr(_ *model.Request, err error) error { return err }

func TestSubmit_ConcurrentSameRequester(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Submit(context.Background(), submission("client-1", "")); err == nil {
				ok.Add(1)
			} else if !apperrors.HasCode(err, apperrors.CodeConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 {
		t.Fatalf("%d submissions succeeded, want 1", ok.Load())
	}
}

func TestSubmit_HoldFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, func(o *options) {
		o.slots = &mockSlots{HoldFunc: func(context.Context, string, time.Time, string) error {
			return apperrors.Conflict("busy")
		}}
	})

	r, err := f.svc.Submit(context.Background(), submission("client-1", "10:00"))
	if err != nil || r == nil {
		t.Fatalf("Submit() = %v, %v", r, err)
	}
}

func TestConfirm_RequiresLock(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t, "client-1", "")
	input := &model.Confirmation{StartAt: at("11:00"), EndAt: at("12:00")}

	_, err := f.svc.Confirm(context.Background(), r.ID, staffA, input)
	if !apperrors.HasCode(err, apperrors.CodeNotOwner) {
		t.Fatalf("Confirm() without lock error = %v, want NotOwner", err)
	}

	f.lock(t, r.ID, staffB)
	_, err = f.svc.Confirm(context.Background(), r.ID, staffA, input)
	if !apperrors.HasCode(err, apperrors.CodeNotOwner) {
		t.Fatalf("Confirm() with lock held by B error = %v, want NotOwner", err)
	}

	got, _ := f.svc.Get(context.Background(), r.ID)
	if got.Status != model.StatusPending || got.HandledByID != "" {
		t.Errorf("request changed after failed confirm: %+v", got)
	}
}

func TestConfirm_LockCheckedBeforeBody(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t, "client-1", "")

	_, err := f.svc.Confirm(context.Background(), r.ID, staffA, &model.Confirmation{})
	if !apperrors.HasCode(err, apperrors.CodeNotOwner) {
		t.Fatalf("Confirm() with empty body and no lock error = %v, want NotOwner", err)
	}

	f.lock(t, r.ID, staffA)
	_, err = f.svc.Confirm(context.Background(), r.ID, staffA, &model.Confirmation{})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("Confirm() with empty body error = %v, want Validation", err)
	}
}

func TestConfirm_MovesHoldToConfirmedSlot(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t, "client-1", "10:00")

	confirmed := f.confirm(t, r.ID, "14:00")

	if confirmed.Status != model.StatusConfirmed || confirmed.HandledByID != staffA.ID || confirmed.HandledByName != staffA.Name {
		t.Errorf("confirmed = %+v", confirmed)
	}
	if !f.available(t, "10:00") {
		t.Error("preferred slot not released")
	}
	if f.available(t, "14:00") {
		t.Error("confirmed slot still available")
	}

	set, _ := f.slots.GetOrCreate(context.Background(), agencyID, monday)
	if b, _ := set.BookedAt("14:00"); b.Origin != model.OriginConfirmed || b.RequestID != r.ID {
		t.Errorf("BookedAt(14:00) = %+v", b)
	}

	events := f.recorder.Topic(notify.TopicRequestUpdated)
	if len(events) != 1 || events[0].Payload.(model.RequestEvent).Type != model.RequestConfirmed {
		t.Errorf("updated events = %+v", events)
	}
}

func TestConfirm_SameSlotAsPreferred(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t, "client-1", "10:00")

	f.confirm(t, r.ID, "10:00")

	set, _ := f.slots.GetOrCreate(context.Background(), agencyID, monday)
	if b, _ := set.BookedAt("10:00"); b.Origin != model.OriginConfirmed {
		t.Errorf("BookedAt(10:00) = %+v, want confirmed", b)
	}
}

func TestConfirm_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, f *fixture, id string)
		start    time.Time
		end      time.Time
		wantCode string
	}{
		{
			name:     "end before start",
			start:    at("12:00"),
			end:      at("11:00"),
			wantCode: apperrors.CodeInvalidRange,
		},
		{
			name:     "empty range",
			start:    at("12:00"),
			end:      at("12:00"),
			wantCode: apperrors.CodeInvalidRange,
		},
		{
			name: "already canceled",
			setup: func(t *testing.T, f *fixture, id string) {
				if _, err := f.svc.Cancel(context.Background(), id, nil, &model.Cancellation{}); err != nil {
					t.Fatal(err)
				}
			},
			start:    at("12:00"),
			end:      at("13:00"),
			wantCode: apperrors.CodeInvalidState,
		},
		{
			name: "blocked slot",
			setup: func(t *testing.T, f *fixture, _ string) {
				if _, err := f.slots.Block(context.Background(), agencyID, monday, "12:00", "Audit", staffB); err != nil {
					t.Fatal(err)
				}
			},
			start:    at("12:00"),
			end:      at("13:00"),
			wantCode: apperrors.CodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			r := f.submit(t, "client-1", "")
			if tt.setup != nil {
				tt.setup(t, f, r.ID)
			}
			f.lock(t, r.ID, staffA)

			_, err := f.svc.Confirm(context.Background(), r.ID, staffA, &model.Confirmation{StartAt: tt.start, EndAt: tt.end})
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Fatalf("Confirm() error = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestConfirm_PersistFailureReleasesSlot(t *testing.T) {
	f := newFixture(t, func(o *options) {
		o.wrapRepo = func(r repository.RequestRepository) repository.RequestRepository {
			return &failingUpdateRepo{RequestRepository: r, err: errors.New("write concern timeout")}
		}
	})
	r := f.submit(t, "client-1", "")
	f.lock(t, r.ID, staffA)

	_, err := f.svc.Confirm(context.Background(), r.ID, staffA, &model.Confirmation{StartAt: at("15:00"), EndAt: at("16:00")})
	if !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Fatalf("Confirm() error = %v, want Internal", err)
	}
	if !f.available(t, "15:00") {
		t.Error("committed slot was not released after the failed write")
	}
}

func TestConfirm_PersistFailureKeepsPreferredHold(t *testing.T) {
	f := newFixture(t, func(o *options) {
		o.wrapRepo = func(r repository.RequestRepository) repository.RequestRepository {
			return &failingUpdateRepo{RequestRepository: r, err: errors.New("write concern timeout")}
		}
	})
	r := f.submit(t, "client-1", "10:00")
	f.lock(t, r.ID, staffA)

	_, err := f.svc.Confirm(context.Background(), r.ID, staffA, &model.Confirmation{StartAt: at("10:00"), EndAt: at("11:00")})
	if !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Fatalf("Confirm() error = %v, want Internal", err)
	}

	got, _ := f.svc.Get(context.Background(), r.ID)
	if got.Status != model.StatusPending {
		t.Fatalf("status = %s, want PENDING", got.Status)
	}
	set, _ := f.slots.GetOrCreate(context.Background(), agencyID, monday)
	b, ok := set.BookedAt("10:00")
	if !ok || b.Origin != model.OriginProvisional || b.RequestID != r.ID {
		t.Errorf("BookedAt(10:00) = %+v, %v; want pending hold for %s", b, ok, r.ID)
	}
}

func TestConfirm_StatusChangedConcurrently(t *testing.T) {
	f := newFixture(t, func(o *options) {
		o.wrapRepo = func(r repository.RequestRepository) repository.RequestRepository {
			return &failingUpdateRepo{RequestRepository: r, err: requesterrors.ErrStatusChanged}
		}
	})
	r := f.submit(t, "client-1", "")
	f.lock(t, r.ID, staffA)

	_, err := f.svc.Confirm(context.Background(), r.ID, staffA, &model.Confirmation{StartAt: at("15:00"), EndAt: at("16:00")})
	if !apperrors.HasCode(err, apperrors.CodeInvalidState) || !errors.Is(err, requesterrors.ErrStatusChanged) {
		t.Fatalf("Confirm() error = %v, want InvalidState", err)
	}
}

func TestCancel_RestoresSlots(t *testing.T) {
	t.Run("pending request frees its preferred slot", func(t *testing.T) {
		f := newFixture(t)
		r := f.submit(t, "client-1", "10:00")

		canceled, err := f.svc.Cancel(context.Background(), r.ID, nil, &model.Cancellation{Reason: "Changed plans"})
		if err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if canceled.Status != model.StatusCanceled || canceled.Open || canceled.HandledByID != "" {
			t.Errorf("canceled = %+v", canceled)
		}
		if !f.available(t, "10:00") {
			t.Error("preferred slot not restored")
		}
	})

	t.Run("confirmed request frees both slots", func(t *testing.T) {
		f := newFixture(t)
		r := f.submit(t, "client-1", "10:00")
		f.confirm(t, r.ID, "13:00")

		canceled, err := f.svc.Cancel(context.Background(), r.ID, &staffA, &model.Cancellation{Reason: "Agency closed"})
		if err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if canceled.HandledByID != staffA.ID || canceled.CancelReason != "Agency closed" {
			t.Errorf("canceled = %+v", canceled)
		}
		if !f.available(t, "10:00") || !f.available(t, "13:00") {
			t.Error("slots not restored after canceling a confirmed request")
		}
	})

	t.Run("blocked slot stays blocked", func(t *testing.T) {
		f := newFixture(t)
		r := f.submit(t, "client-1", "11:00")
		if _, err := f.slots.Block(context.Background(), agencyID, monday, "11:00", "Maintenance", staffB); err != nil {
			t.Fatal(err)
		}

		if _, err := f.svc.Cancel(context.Background(), r.ID, nil, &model.Cancellation{}); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if f.available(t, "11:00") {
			t.Error("blocked slot returned to available")
		}
	})
}

func TestCancel_TerminalRequest(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t, "client-1", "")
	_, _ = f.svc.Cancel(context.Background(), r.ID, nil, &model.Cancellation{})

	_, err := f.svc.Cancel(context.Background(), r.ID, nil, &model.Cancellation{})
	if !apperrors.HasCode(err, apperrors.CodeInvalidState) || !errors.Is(err, requesterrors.ErrInvalidState) {
		t.Fatalf("second Cancel() error = %v, want InvalidState", err)
	}

	_, err = f.svc.Cancel(context.Background(), "missing", nil, &model.Cancellation{})
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("Cancel(missing) error = %v, want NotFound", err)
	}
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, "client-1", "")

	_, err := f.svc.Complete(ctx, r.ID, staffA, &model.Completion{})
	if !apperrors.HasCode(err, apperrors.CodeInvalidState) {
		t.Fatalf("Complete(pending) error = %v, want InvalidState", err)
	}

	f.confirm(t, r.ID, "14:00")

	_, err = f.svc.Complete(ctx, r.ID, staffA, &model.Completion{})
	if !apperrors.HasCode(err, apperrors.CodeTooEarly) || !errors.Is(err, requesterrors.ErrTooEarly) {
		t.Fatalf("Complete() before end error = %v, want TooEarly", err)
	}

	f.clock.Set(at("15:30"))
	done, err := f.svc.Complete(ctx, r.ID, staffB, &model.Completion{Notes: "Documents handed over"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if done.Status != model.StatusCompleted || done.Open || done.HandledByID != staffB.ID || done.CompletionNotes != "Documents handed over" {
		t.Errorf("completed = %+v", done)
	}

	if _, err := f.svc.Submit(ctx, submission("client-1", "")); err != nil {
		t.Errorf("Submit() after completion error = %v", err)
	}

	if got := len(f.recorder.Topic(notify.TopicRequestUpdated)); got != 2 {
		t.Errorf("updated events = %d, want 2", got)
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "client-1", "")
	f.clock.Advance(time.Minute)
	second := f.submit(t, "client-2", "")

	list, err := f.svc.List(ctx, repository.Filter{AgencyID: agencyID, Status: model.StatusPending})
	if err != nil || len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("List() = %v, %v", list, err)
	}

	if _, err := f.svc.List(ctx, repository.Filter{Offset: -1}); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("List(negative offset) error = %v", err)
	}
}
