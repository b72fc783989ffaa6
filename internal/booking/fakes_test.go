package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/hospital-booking/internal/config"
	redisclient "github.com/medtrack/hospital-booking/internal/redis"
	"github.com/medtrack/hospital-booking/internal/schedule"
)

// testNow is a Wednesday morning inside working hours.
var testNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

func testRules() config.BookingRules {
	return config.BookingRules{
		MinAdvance:     2 * time.Hour,
		MaxHorizon:     30 * 24 * time.Hour,
		WorkdayStart:   8 * 60,
		WorkdayEnd:     20 * 60,
		ClosedWeekdays: []time.Weekday{time.Sunday},
		PatientSpacing: 30 * time.Minute,
		DailyLimit:     3,
		CancelCutoff:   time.Hour,
	}
}

// memStore is an in-memory schedule.Store with the same conditional-increment
// semantics as the Postgres implementation.
type memStore struct {
	mu     sync.Mutex
	blocks map[uuid.UUID]*schedule.WorkScheduleBlock
}

func newMemStore() *memStore {
	return &memStore{blocks: make(map[uuid.UUID]*schedule.WorkScheduleBlock)}
}

func (s *memStore) addBlock(doctorID uuid.UUID, start, end time.Time, capacity, booked int) *schedule.WorkScheduleBlock {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := &schedule.WorkScheduleBlock{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		StartAt:     start,
		EndAt:       end,
		Capacity:    capacity,
		BookedCount: booked,
	}
	s.blocks[b.ID] = b
	return b
}

func (s *memStore) CreateBlock(ctx context.Context, block *schedule.WorkScheduleBlock) (*schedule.WorkScheduleBlock, error) {
	if err := block.Validate(testNow); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.blocks {
		if b.DoctorID == block.DoctorID && b.StartAt.Equal(block.StartAt) {
			return nil, schedule.ErrDuplicateBlock
		}
	}

	created := *block
	created.ID = uuid.New()
	s.blocks[created.ID] = &created

	out := created
	return &out, nil
}

func (s *memStore) GetBlock(ctx context.Context, id uuid.UUID) (*schedule.WorkScheduleBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[id]
	if !ok {
		return nil, schedule.ErrBlockNotFound
	}
	out := *b
	return &out, nil
}

func (s *memStore) GetRemaining(ctx context.Context, id uuid.UUID) (int, error) {
	b, err := s.GetBlock(ctx, id)
	if err != nil {
		return 0, err
	}
	return b.Remaining(), nil
}

func (s *memStore) ListBlocks(ctx context.Context, f schedule.BlockFilter) ([]schedule.WorkScheduleBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []schedule.WorkScheduleBlock
	for _, b := range s.blocks {
		if f.DoctorID != uuid.Nil && b.DoctorID != f.DoctorID {
			continue
		}
		if !f.Date.IsZero() && !sameDay(b.StartAt, f.Date) {
			continue
		}
		if !f.FromDate.IsZero() && b.Date().Before(dayOf(f.FromDate)) {
			continue
		}
		if f.AvailableOnly && b.Remaining() <= 0 {
			continue
		}
		out = append(out, *b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (s *memStore) Reserve(ctx context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[id]
	if !ok {
		return 0, schedule.ErrBlockNotFound
	}
	if b.BookedCount >= b.Capacity {
		return 0, schedule.ErrCapacityExceeded
	}
	b.BookedCount++
	return b.BookedCount, nil
}

func (s *memStore) Release(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[id]
	if !ok {
		return schedule.ErrBlockNotFound
	}
	if b.BookedCount > 0 {
		b.BookedCount--
	}
	return nil
}

// memRepo is an in-memory Repository mirroring the storage-level guarantees:
// slot uniqueness among non-cancelled rows, conditional status updates, and
// reserve/release tied to the appointment write.
type memRepo struct {
	mu       sync.Mutex
	store    *memStore
	patients map[uuid.UUID]*Patient
	doctors  map[uuid.UUID]*Doctor
	services map[uuid.UUID]*MedicalService
	appts    map[uuid.UUID]*Appointment
	sessions map[uuid.UUID]*TeleconsultationSession // keyed by appointment ID
	events   []EventLog
}

func newMemRepo(store *memStore) *memRepo {
	return &memRepo{
		store:    store,
		patients: make(map[uuid.UUID]*Patient),
		doctors:  make(map[uuid.UUID]*Doctor),
		services: make(map[uuid.UUID]*MedicalService),
		appts:    make(map[uuid.UUID]*Appointment),
		sessions: make(map[uuid.UUID]*TeleconsultationSession),
	}
}

func (r *memRepo) addPatient() *Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &Patient{ID: uuid.New(), Name: "Test Patient"}
	r.patients[p.ID] = p
	return p
}

func (r *memRepo) addDoctor() *Doctor {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := &Doctor{ID: uuid.New(), Name: "Test Doctor"}
	r.doctors[d.ID] = d
	return d
}

func (r *memRepo) addService() *MedicalService {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &MedicalService{ID: uuid.New(), Name: "Consultation", Remote: true}
	r.services[s.ID] = s
	return s
}

func (r *memRepo) addAppointment(a Appointment) *Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusAwaitingConfirmation
	}
	r.appts[a.ID] = &a
	return &a
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (r *memRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	out := *p
	return &out, nil
}

func (r *memRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	out := *d
	return &out, nil
}

func (r *memRepo) GetServiceByID(ctx context.Context, id uuid.UUID) (*MedicalService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	out := *s
	return &out, nil
}

func (r *memRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (r *memRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{Appointment: *appt}
	if detail.Patient, err = r.GetPatientByID(ctx, appt.PatientID); err != nil {
		return nil, err
	}
	if detail.Doctor, err = r.GetDoctorByID(ctx, appt.DoctorID); err != nil {
		return nil, err
	}
	if detail.Service, err = r.GetServiceByID(ctx, appt.ServiceID); err != nil {
		return nil, err
	}
	return detail, nil
}

func (r *memRepo) ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error) {
	r.mu.Lock()
	matched := make([]Appointment, 0, len(r.appts))
	for _, a := range r.appts {
		if f.PatientID != uuid.Nil && a.PatientID != f.PatientID {
			continue
		}
		if f.DoctorID != uuid.Nil && a.DoctorID != f.DoctorID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.Date.IsZero() && !sameDay(a.VisitAt, f.Date) {
			continue
		}
		matched = append(matched, *a)
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].VisitAt.After(matched[j].VisitAt) })

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[f.Offset:]
		}
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]AppointmentDetail, 0, len(matched))
	for i := range matched {
		detail, err := r.GetAppointmentDetail(ctx, matched[i].ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *detail)
	}
	return out, nil
}

func (r *memRepo) CountDoctorAt(ctx context.Context, doctorID uuid.UUID, visitAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.VisitAt.Equal(visitAt) && a.Status != StatusCancelled {
			count++
		}
	}
	return count, nil
}

func (r *memRepo) PatientAppointmentsNear(ctx context.Context, patientID uuid.UUID, visitAt time.Time, window time.Duration) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appts {
		if a.PatientID != patientID || a.Status == StatusCancelled {
			continue
		}
		if window <= 0 {
			if a.VisitAt.Equal(visitAt) {
				out = append(out, *a)
			}
			continue
		}
		if !sameDay(a.VisitAt, visitAt) {
			continue
		}
		diff := a.VisitAt.Sub(visitAt)
		if diff < 0 {
			diff = -diff
		}
		if diff < window {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) CountPatientOnDate(ctx context.Context, patientID uuid.UUID, day time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, a := range r.appts {
		if a.PatientID == patientID && sameDay(a.VisitAt, day) && a.Status != StatusCancelled {
			count++
		}
	}
	return count, nil
}

func (r *memRepo) CreateReserved(ctx context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appts {
		if a.Status == StatusCancelled || !a.VisitAt.Equal(appt.VisitAt) {
			continue
		}
		if a.DoctorID == appt.DoctorID || a.PatientID == appt.PatientID {
			return nil, ErrSlotTaken
		}
	}

	bookedCount, err := r.store.Reserve(ctx, appt.BlockID)
	if err != nil {
		return nil, err
	}

	created := *appt
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	created.QueuePosition = bookedCount
	created.Status = StatusAwaitingConfirmation
	created.CreatedAt = testNow
	created.UpdatedAt = testNow
	r.appts[created.ID] = &created

	out := created
	return &out, nil
}

func (r *memRepo) SetStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status.Terminal() {
		return nil, ErrTerminalStatus
	}
	a.Status = to
	out := *a
	return &out, nil
}

func (r *memRepo) CancelReleased(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	a.Status = StatusCancelled

	if err := r.store.Release(ctx, a.BlockID); err != nil {
		return nil, err
	}

	out := *a
	return &out, nil
}

func (r *memRepo) FindOverdueAwaiting(ctx context.Context, before time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appts {
		if a.Status == StatusAwaitingConfirmation && dayOf(a.VisitAt).Before(dayOf(before)) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) CreateSession(ctx context.Context, s *TeleconsultationSession) (*TeleconsultationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.AppointmentID]; exists {
		return nil, ErrSessionExists
	}

	created := *s
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	r.sessions[created.AppointmentID] = &created

	out := created
	return &out, nil
}

func (r *memRepo) GetSessionByAppointment(ctx context.Context, appointmentID uuid.UUID) (*TeleconsultationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[appointmentID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := *s
	return &out, nil
}

func (r *memRepo) EndSession(ctx context.Context, appointmentID uuid.UUID, notes *string) (*TeleconsultationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[appointmentID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Status != SessionInProgress {
		return nil, ErrSessionNotInProgress
	}

	endedAt := testNow
	s.Status = SessionEnded
	s.EndedAt = &endedAt
	if notes != nil {
		s.DoctorNotes = notes
	}

	if a, ok := r.appts[appointmentID]; ok {
		a.Status = StatusCompleted
	}

	out := *s
	return &out, nil
}

func (r *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// fakeLocker grants the lock immediately. beforeFn, when set, runs inside the
// lock before the protected section, standing in for a concurrent winner.
type fakeLocker struct {
	busy     bool
	beforeFn func(ctx context.Context)
}

func (l *fakeLocker) WithBlockLock(ctx context.Context, blockID uuid.UUID, fn func(ctx context.Context) error) error {
	if l.busy {
		return redisclient.ErrLockNotAcquired
	}
	if l.beforeFn != nil {
		l.beforeFn(ctx)
	}
	return fn(ctx)
}

type fixture struct {
	svc    *Service
	repo   *memRepo
	store  *memStore
	locker *fakeLocker
}

func newFixture() *fixture {
	store := newMemStore()
	repo := newMemRepo(store)
	locker := &fakeLocker{}

	svc := NewService(repo, store, locker, testRules(), zerolog.Nop())
	svc.nowFn = func() time.Time { return testNow }

	return &fixture{svc: svc, repo: repo, store: store, locker: locker}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
