package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	availerrors "agencydesk/internal/availability/errors"
	"agencydesk/internal/availability/repository"
	"agencydesk/internal/catalog"
	"agencydesk/pkg/clock"
	"agencydesk/pkg/config"
	apperrors "agencydesk/pkg/errors"
	"agencydesk/pkg/model"
	"agencydesk/pkg/notify"
	"agencydesk/pkg/sanitizer"

	"github.com/google/uuid"
)

// RequestLookup is the part of the request store the engine reads to find
// which slots are taken by requests.
type RequestLookup interface {
	FindConfirmedBetween(ctx context.Context, agencyID string, from, to time.Time) ([]*model.Request, error)
	FindPendingPreferredBetween(ctx context.Context, agencyID string, from, to time.Time) ([]*model.Request, error)
}

type AvailabilityService interface {
	GetOrCreate(ctx context.Context, agencyID, date string) (*model.AvailabilitySet, error)
	HoldProvisionally(ctx context.Context, agencyID string, at time.Time, requestID string) error
	Release(ctx context.Context, agencyID string, at time.Time) error
	CommitConfirmed(ctx context.Context, request *model.Request) error
	Block(ctx context.Context, agencyID, date, slot, reason string, staff model.Staff) (*model.BlockedSlot, error)
	Unblock(ctx context.Context, agencyID, date, slot string, staff model.Staff) error
	IsAvailable(ctx context.Context, agencyID, date, slot string) (bool, error)
	WeekAvailability(ctx context.Context, agencyID, start string) ([]*model.AvailabilitySet, error)
	Refresh(ctx context.Context, agencyID, date string) (*model.AvailabilitySet, error)
	// RetireElapsed marks every started slot of today's sets as elapsed and
	// returns how many slots moved.
	RetireElapsed(ctx context.Context) (int, error)
	SlotDetails(set *model.AvailabilitySet) map[string]string
}

type availabilityService struct {
	sets      repository.AvailabilityRepository
	blocked   repository.BlockedSlotRepository
	catalog   catalog.Catalog
	requests  RequestLookup
	publisher notify.Publisher
	clock     clock.Clock
	cfg       *config.Config
}

func NewAvailabilityService(
	sets repository.AvailabilityRepository,
	blocked repository.BlockedSlotRepository,
	agencies catalog.Catalog,
	requests RequestLookup,
	publisher notify.Publisher,
	clk clock.Clock,
	cfg *config.Config,
) AvailabilityService {
	return &availabilityService{
		sets:      sets,
		blocked:   blocked,
		catalog:   agencies,
		requests:  requests,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
	}
}

func (s *availabilityService) GetOrCreate(ctx context.Context, agencyID, date string) (*model.AvailabilitySet, error) {
	d, err := s.resolveDay(ctx, agencyID, date)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, d)
}

func (s *availabilityService) HoldProvisionally(ctx context.Context, agencyID string, at time.Time, requestID string) error {
	d, err := s.dayAt(ctx, agencyID, at)
	if err != nil {
		return err
	}
	slot := d.slotFor(at)

	_, err = s.mutate(ctx, d, func(set *model.AvailabilitySet) bool {
		if !set.IsAvailable(slot) {
			return false
		}
		return set.Book(model.BookedSlot{Time: slot, Origin: model.OriginProvisional, RequestID: requestID})
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Debug("Slot held provisionally", "agency_id", agencyID, "date", d.date, "slot", slot, "request_id", requestID)
	return nil
}

func (s *availabilityService) Release(ctx context.Context, agencyID string, at time.Time) error {
	d, err := s.dayAt(ctx, agencyID, at)
	if err != nil {
		return err
	}
	slot := d.slotFor(at)

	ok, err := s.releasable(ctx, d, slot)
	if err != nil || !ok {
		return err
	}

	if _, err := s.mutate(ctx, d, func(set *model.AvailabilitySet) bool {
		return set.Free(slot)
	}); err != nil {
		return err
	}

	s.cfg.Log.Debug("Slot released", "agency_id", agencyID, "date", d.date, "slot", slot)
	return nil
}

func (s *availabilityService) CommitConfirmed(ctx context.Context, request *model.Request) error {
	if request.StartAt == nil {
		return apperrors.InvalidInput("Confirmed request has no start time")
	}

	d, err := s.dayAt(ctx, request.AgencyID, *request.StartAt)
	if err != nil {
		return err
	}
	slot := d.slotFor(*request.StartAt)

	blocked, err := s.blocked.Find(ctx, request.AgencyID, d.date, slot)
	switch {
	case err == nil:
		return apperrors.Conflict("Slot is blocked").
			WithDetails(map[string]any{"agency_id": request.AgencyID, "date": d.date, "time": slot, "reason": blocked.Reason}).
			WithCause(availerrors.ErrAlreadyBlocked)
	case !errors.Is(err, availerrors.ErrNotBlocked):
		s.cfg.Log.Error("Failed to read blocked slot", "agency_id", request.AgencyID, "date", d.date, "slot", slot, "error", err)
		return apperrors.Internal("Failed to commit slot", err)
	}

	_, err = s.mutate(ctx, d, func(set *model.AvailabilitySet) bool {
		return set.Book(model.BookedSlot{Time: slot, Origin: model.OriginConfirmed, RequestID: request.ID})
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Slot committed", "agency_id", request.AgencyID, "date", d.date, "slot", slot, "request_id", request.ID)
	return nil
}

func (s *availabilityService) Block(ctx context.Context, agencyID, date, slot, reason string, staff model.Staff) (*model.BlockedSlot, error) {
	reason = sanitizer.Line(reason)
	if reason == "" {
		return nil, apperrors.InvalidInput("Reason cannot be empty")
	}
	slot, err := normalizeSlot(slot)
	if err != nil {
		return nil, err
	}
	d, err := s.resolveDay(ctx, agencyID, date)
	if err != nil {
		return nil, err
	}

	occupant, err := s.confirmedAt(ctx, d, slot)
	if err != nil {
		return nil, err
	}
	if occupant != nil {
		return nil, apperrors.Conflict("Slot has a confirmed request").WithDetails(map[string]any{
			"agency_id":  agencyID,
			"date":       date,
			"time":       slot,
			"request_id": occupant.ID,
		})
	}

	blocked := &model.BlockedSlot{
		ID:            uuid.New().String(),
		AgencyID:      agencyID,
		Date:          date,
		Time:          slot,
		Reason:        reason,
		BlockedByID:   staff.ID,
		BlockedByName: staff.Name,
		BlockedAt:     s.clock.Now().UTC(),
	}
	if err := s.blocked.Insert(ctx, blocked); err != nil {
		if errors.Is(err, availerrors.ErrAlreadyBlocked) {
			return nil, apperrors.Conflict("Slot is already blocked").WithCause(err)
		}
		s.cfg.Log.Error("Failed to insert blocked slot", "agency_id", agencyID, "date", date, "slot", slot, "error", err)
		return nil, apperrors.Internal("Failed to block slot", err)
	}

	_, err = s.mutate(ctx, d, func(set *model.AvailabilitySet) bool {
		return set.Book(model.BookedSlot{Time: slot, Origin: model.OriginBlocked, Reason: reason})
	})
	if err != nil {
		if delErr := s.blocked.Delete(ctx, agencyID, date, slot); delErr != nil {
			s.cfg.Log.Error("Failed to roll back blocked slot", "agency_id", agencyID, "date", date, "slot", slot, "error", delErr)
		}
		return nil, err
	}

	s.cfg.Log.Info("Slot blocked", "agency_id", agencyID, "date", date, "slot", slot, "staff_id", staff.ID)
	s.publisher.Publish(ctx, notify.TopicSlotManagement, model.SlotManagement{
		AgencyID:  agencyID,
		Date:      date,
		Time:      slot,
		Blocked:   true,
		Reason:    reason,
		StaffName: staff.DisplayName(),
	})
	return blocked, nil
}

func (s *availabilityService) Unblock(ctx context.Context, agencyID, date, slot string, staff model.Staff) error {
	slot, err := normalizeSlot(slot)
	if err != nil {
		return err
	}
	d, err := s.resolveDay(ctx, agencyID, date)
	if err != nil {
		return err
	}

	blocked, err := s.blocked.Find(ctx, agencyID, date, slot)
	if err != nil {
		if errors.Is(err, availerrors.ErrNotBlocked) {
			return apperrors.NotBlocked("Slot is not blocked").WithCause(err)
		}
		return apperrors.Internal("Failed to read blocked slot", err)
	}
	if err := s.blocked.Delete(ctx, agencyID, date, slot); err != nil {
		if errors.Is(err, availerrors.ErrNotBlocked) {
			return apperrors.NotBlocked("Slot is not blocked").WithCause(err)
		}
		s.cfg.Log.Error("Failed to delete blocked slot", "agency_id", agencyID, "date", date, "slot", slot, "error", err)
		return apperrors.Internal("Failed to unblock slot", err)
	}

	release, err := s.releasable(ctx, d, slot)
	if err != nil {
		s.restoreBlocked(ctx, blocked)
		return err
	}

	_, err = s.mutate(ctx, d, func(set *model.AvailabilitySet) bool {
		if release {
			return set.Free(slot)
		}
		booked, found := set.BookedAt(slot)
		if !found || booked.Origin != model.OriginBlocked {
			return false
		}
		set.Drop(slot)
		if d.inHours(slot) {
			set.Book(model.BookedSlot{Time: slot, Origin: model.OriginElapsed})
		}
		return true
	})
	if err != nil {
		s.restoreBlocked(ctx, blocked)
		return err
	}

	s.cfg.Log.Info("Slot unblocked", "agency_id", agencyID, "date", date, "slot", slot, "staff_id", staff.ID)
	s.publisher.Publish(ctx, notify.TopicSlotManagement, model.SlotManagement{
		AgencyID:  agencyID,
		Date:      date,
		Time:      slot,
		Blocked:   false,
		StaffName: staff.DisplayName(),
	})
	return nil
}

// restoreBlocked puts back a block record whose set update did not land, so
// the record and the booked entry keep agreeing.
func (s *availabilityService) restoreBlocked(ctx context.Context, blocked *model.BlockedSlot) {
	if err := s.blocked.Insert(ctx, blocked); err != nil && !errors.Is(err, availerrors.ErrAlreadyBlocked) {
		s.cfg.Log.Error("Failed to restore blocked slot",
			"agency_id", blocked.AgencyID, "date", blocked.Date, "slot", blocked.Time, "error", err)
	}
}

func (s *availabilityService) IsAvailable(ctx context.Context, agencyID, date, slot string) (bool, error) {
	slot, err := normalizeSlot(slot)
	if err != nil {
		return false, err
	}
	d, err := s.resolveDay(ctx, agencyID, date)
	if err != nil {
		return false, err
	}
	if !d.inHours(slot) || d.hasStarted(slot) {
		return false, nil
	}

	set, err := s.load(ctx, d)
	if err != nil {
		return false, err
	}
	return set.IsAvailable(slot), nil
}

func (s *availabilityService) WeekAvailability(ctx context.Context, agencyID, start string) ([]*model.AvailabilitySet, error) {
	first, err := time.Parse(model.DateLayout, start)
	if err != nil {
		return nil, apperrors.InvalidInput("Invalid start date, expected YYYY-MM-DD")
	}

	week := make([]*model.AvailabilitySet, 0, 7)
	for i := range 7 {
		set, err := s.GetOrCreate(ctx, agencyID, first.AddDate(0, 0, i).Format(model.DateLayout))
		if err != nil {
			return nil, err
		}
		week = append(week, set)
	}
	return week, nil
}

func (s *availabilityService) Refresh(ctx context.Context, agencyID, date string) (*model.AvailabilitySet, error) {
	d, err := s.resolveDay(ctx, agencyID, date)
	if err != nil {
		return nil, err
	}
	if d.isPast() {
		return model.NewAvailabilitySet(agencyID, date), nil
	}

	for range s.maxRetries() {
		built, err := s.build(ctx, d, true)
		if err != nil {
			return nil, err
		}
		built.UpdatedAt = s.clock.Now().UTC()

		current, err := s.sets.Get(ctx, agencyID, date)
		switch {
		case errors.Is(err, availerrors.ErrSetNotFound):
			built.Version = 1
			err = s.sets.Create(ctx, built)
		case err == nil:
			built.Version = current.Version + 1
			err = s.sets.Replace(ctx, built, current.Version)
		}

		switch {
		case err == nil:
			s.cfg.Log.Info("Availability refreshed", "agency_id", agencyID, "date", date, "version", built.Version)
			s.publishSet(ctx, built)
			return built, nil
		case errors.Is(err, availerrors.ErrVersionConflict), errors.Is(err, availerrors.ErrAlreadyExists):
			continue
		default:
			s.cfg.Log.Error("Failed to refresh availability", "agency_id", agencyID, "date", date, "error", err)
			return nil, apperrors.Internal("Failed to refresh availability", err)
		}
	}
	return nil, s.conflict(agencyID, date)
}

func (s *availabilityService) RetireElapsed(ctx context.Context) (int, error) {
	agencies, err := s.catalog.List(ctx)
	if err != nil {
		return 0, apperrors.Internal("Failed to list agencies", err)
	}

	total := 0
	var errs []error
	for _, agency := range agencies {
		loc := agency.Location(s.cfg.Location())
		d, err := s.newDay(agency, loc, s.clock.Now().In(loc).Format(model.DateLayout))
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if _, err := s.sets.Get(ctx, agency.ID, d.date); err != nil {
			if !errors.Is(err, availerrors.ErrSetNotFound) {
				errs = append(errs, err)
			}
			continue
		}

		retired := 0
		_, err = s.mutate(ctx, d, func(set *model.AvailabilitySet) bool {
			retired = 0
			for _, slot := range slices.Clone(set.Available) {
				if d.hasStarted(slot) {
					set.Book(model.BookedSlot{Time: slot, Origin: model.OriginElapsed})
					retired++
				}
			}
			return retired > 0
		})
		if err != nil {
			s.cfg.Log.Warn("Failed to retire elapsed slots", "agency_id", agency.ID, "date", d.date, "error", err)
			errs = append(errs, err)
			continue
		}
		total += retired
	}

	return total, errors.Join(errs...)
}

func (s *availabilityService) SlotDetails(set *model.AvailabilitySet) map[string]string {
	return set.Details()
}

// load returns the stored set for d, building and storing it on first use.
// Past days yield an empty, unsaved set with version 0.
func (s *availabilityService) load(ctx context.Context, d *day) (*model.AvailabilitySet, error) {
	if d.isPast() {
		return model.NewAvailabilitySet(d.agency.ID, d.date), nil
	}

	set, err := s.sets.Get(ctx, d.agency.ID, d.date)
	if err == nil {
		return set, nil
	}
	if !errors.Is(err, availerrors.ErrSetNotFound) {
		s.cfg.Log.Error("Failed to read availability", "agency_id", d.agency.ID, "date", d.date, "error", err)
		return nil, apperrors.Internal("Failed to read availability", err)
	}

	built, err := s.build(ctx, d, false)
	if err != nil {
		return nil, err
	}
	built.Version = 1
	built.UpdatedAt = s.clock.Now().UTC()

	err = s.sets.Create(ctx, built)
	switch {
	case err == nil:
		s.cfg.Log.Debug("Availability created", "agency_id", d.agency.ID, "date", d.date, "slots", len(built.Available))
		return built, nil
	case errors.Is(err, availerrors.ErrAlreadyExists):
		set, err := s.sets.Get(ctx, d.agency.ID, d.date)
		if err != nil {
			return nil, apperrors.Internal("Failed to read availability", err)
		}
		return set, nil
	default:
		s.cfg.Log.Error("Failed to create availability", "agency_id", d.agency.ID, "date", d.date, "error", err)
		return nil, apperrors.Internal("Failed to create availability", err)
	}
}

// build computes a set from hours, confirmed requests and blocked slots. With
// pending set, preferred times of pending requests are held as well.
func (s *availabilityService) build(ctx context.Context, d *day, pending bool) (*model.AvailabilitySet, error) {
	set := model.NewAvailabilitySet(d.agency.ID, d.date)
	set.Available = slices.Clone(d.slots)
	if d.isToday() {
		for _, slot := range d.slots {
			if d.hasStarted(slot) {
				set.Drop(slot)
			}
		}
	}

	from, to := d.start, d.start.AddDate(0, 0, 1)
	confirmed, err := s.requests.FindConfirmedBetween(ctx, d.agency.ID, from, to)
	if err != nil {
		return nil, apperrors.Internal("Failed to read confirmed requests", err)
	}
	for _, r := range confirmed {
		if r.StartAt != nil {
			set.Book(model.BookedSlot{Time: d.slotFor(*r.StartAt), Origin: model.OriginConfirmed, RequestID: r.ID})
		}
	}

	blocked, err := s.blocked.ListByDate(ctx, d.agency.ID, d.date)
	if err != nil {
		return nil, apperrors.Internal("Failed to read blocked slots", err)
	}
	for _, b := range blocked {
		set.Book(model.BookedSlot{Time: b.Time, Origin: model.OriginBlocked, Reason: b.Reason})
	}

	if !pending {
		return set, nil
	}
	held, err := s.requests.FindPendingPreferredBetween(ctx, d.agency.ID, from, to)
	if err != nil {
		return nil, apperrors.Internal("Failed to read pending requests", err)
	}
	for _, r := range held {
		if r.PreferredAt == nil {
			continue
		}
		slot := d.slotFor(*r.PreferredAt)
		if set.IsAvailable(slot) {
			set.Book(model.BookedSlot{Time: slot, Origin: model.OriginProvisional, RequestID: r.ID})
		}
	}
	return set, nil
}

// mutate applies fn to a copy of the stored set and writes it back under a
// version check, retrying on conflicts. fn reports whether it changed the set.
func (s *availabilityService) mutate(ctx context.Context, d *day, fn func(set *model.AvailabilitySet) bool) (*model.AvailabilitySet, error) {
	for attempt := range s.maxRetries() {
		current, err := s.load(ctx, d)
		if err != nil {
			return nil, err
		}
		if current.Version == 0 {
			return current, nil
		}

		next := current.Clone()
		if !fn(next) {
			return current, nil
		}
		next.Version = current.Version + 1
		next.UpdatedAt = s.clock.Now().UTC()

		err = s.sets.Replace(ctx, next, current.Version)
		if err == nil {
			s.publishSet(ctx, next)
			return next, nil
		}
		if !errors.Is(err, availerrors.ErrVersionConflict) {
			s.cfg.Log.Error("Failed to write availability", "agency_id", d.agency.ID, "date", d.date, "error", err)
			return nil, apperrors.Internal("Failed to write availability", err)
		}
		s.cfg.Log.Debug("Availability version conflict", "agency_id", d.agency.ID, "date", d.date, "attempt", attempt+1)
	}
	return nil, s.conflict(d.agency.ID, d.date)
}

// releasable reports whether a booked slot may go back to available.
func (s *availabilityService) releasable(ctx context.Context, d *day, slot string) (bool, error) {
	if !d.inHours(slot) || d.hasStarted(slot) {
		return false, nil
	}

	_, err := s.blocked.Find(ctx, d.agency.ID, d.date, slot)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, availerrors.ErrNotBlocked):
		return false, apperrors.Internal("Failed to read blocked slot", err)
	}

	occupant, err := s.confirmedAt(ctx, d, slot)
	if err != nil {
		return false, err
	}
	return occupant == nil, nil
}

func (s *availabilityService) confirmedAt(ctx context.Context, d *day, slot string) (*model.Request, error) {
	confirmed, err := s.requests.FindConfirmedBetween(ctx, d.agency.ID, d.start, d.start.AddDate(0, 0, 1))
	if err != nil {
		return nil, apperrors.Internal("Failed to read confirmed requests", err)
	}
	for _, r := range confirmed {
		if r.StartAt != nil && d.slotFor(*r.StartAt) == slot {
			return r, nil
		}
	}
	return nil, nil
}

func (s *availabilityService) resolveDay(ctx context.Context, agencyID, date string) (*day, error) {
	agency, err := s.agency(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	return s.newDay(agency, agency.Location(s.cfg.Location()), date)
}

func (s *availabilityService) dayAt(ctx context.Context, agencyID string, at time.Time) (*day, error) {
	agency, err := s.agency(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	loc := agency.Location(s.cfg.Location())
	return s.newDay(agency, loc, at.In(loc).Format(model.DateLayout))
}

func (s *availabilityService) newDay(agency *model.Agency, loc *time.Location, date string) (*day, error) {
	start, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		return nil, apperrors.InvalidInput("Invalid date, expected YYYY-MM-DD")
	}
	slots, err := generateSlots(agency.HoursFor(start.Weekday()))
	if err != nil {
		return nil, apperrors.Internal("Invalid business hours for agency "+agency.ID, err)
	}
	return &day{
		agency: agency,
		loc:    loc,
		date:   date,
		start:  start,
		now:    s.clock.Now().In(loc),
		slots:  slots,
	}, nil
}

func (s *availabilityService) agency(ctx context.Context, agencyID string) (*model.Agency, error) {
	agency, err := s.catalog.Get(ctx, agencyID)
	if err != nil {
		if errors.Is(err, catalog.ErrAgencyNotFound) {
			return nil, apperrors.NotFoundWithID("Agency", agencyID).WithCause(err)
		}
		s.cfg.Log.Error("Failed to read agency", "agency_id", agencyID, "error", err)
		return nil, apperrors.Internal("Failed to read agency", err)
	}
	return agency, nil
}

func (s *availabilityService) publishSet(ctx context.Context, set *model.AvailabilitySet) {
	s.publisher.Publish(ctx, notify.AvailabilityTopic(set.AgencyID), set)
}

func (s *availabilityService) maxRetries() int {
	if s.cfg.AvailabilityMaxRetries > 0 {
		return s.cfg.AvailabilityMaxRetries
	}
	return config.DefaultAvailabilityMaxRetries
}

func (s *availabilityService) conflict(agencyID, date string) error {
	return apperrors.Conflict("Availability is being updated, please retry").
		WithDetails(map[string]any{"agency_id": agencyID, "date": date}).
		WithCause(availerrors.ErrVersionConflict)
}

// normalizeSlot returns slot in its canonical zero-padded "HH:MM" form.
func normalizeSlot(slot string) (string, error) {
	t, err := time.Parse(model.SlotLayout, strings.TrimSpace(slot))
	if err != nil {
		return "", apperrors.InvalidInput("Invalid time, expected HH:MM")
	}
	return t.Format(model.SlotLayout), nil
}
