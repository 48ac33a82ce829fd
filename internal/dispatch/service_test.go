package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/access"
	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
	"github.com/WailSalutem-Health-Care/referral-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/referral-service/internal/referral"
	"github.com/WailSalutem-Health-Care/referral-service/internal/testutil"
)

const (
	sender    = "11111111-1111-1111-1111-111111111111"
	receiver  = "22222222-2222-2222-2222-222222222222"
	bystander = "44444444-4444-4444-4444-444444444444"
	patientID = "33333333-3333-3333-3333-333333333333"
	etaOffset = 30 * time.Minute
)

// memStore implements RepositoryInterface in memory
type memStore struct {
	ambulances []*Ambulance
	dispatches map[string]*Dispatch
}

func newMemStore() *memStore {
	return &memStore{dispatches: map[string]*Dispatch{}}
}

func (m *memStore) WithTx(tx db.DBTX) RepositoryInterface { return m }

func (m *memStore) ambulance(id string) *Ambulance {
	for _, a := range m.ambulances {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (m *memStore) InsertAmbulance(ctx context.Context, a *Ambulance) (*Ambulance, error) {
	for _, existing := range m.ambulances {
		if existing.HospitalID == a.HospitalID && existing.CallSign == a.CallSign {
			return nil, fmt.Errorf("%w: call sign %s already exists", apperrors.ErrConflict, a.CallSign)
		}
	}
	cp := *a
	cp.CreatedAt = time.Now()
	m.ambulances = append(m.ambulances, &cp)
	out := cp
	return &out, nil
}

func (m *memStore) GetAmbulanceForUpdate(ctx context.Context, id string) (*Ambulance, error) {
	a := m.ambulance(id)
	if a == nil {
		return nil, fmt.Errorf("%w: ambulance %s", apperrors.ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListAmbulances(ctx context.Context, hospitalID string) ([]Ambulance, error) {
	out := []Ambulance{}
	for _, a := range m.ambulances {
		if a.HospitalID == hospitalID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) ClaimAvailableAmbulance(ctx context.Context, hospitalID string) (*Ambulance, error) {
	for _, a := range m.ambulances {
		if a.HospitalID == hospitalID && a.Status == AmbulanceAvailable {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: no ambulance available at hospital %s", apperrors.ErrNoAvailableResource, hospitalID)
}

func (m *memStore) SetAmbulanceStatus(ctx context.Context, id string, status AmbulanceStatus) (*Ambulance, error) {
	a := m.ambulance(id)
	if a == nil {
		return nil, fmt.Errorf("%w: ambulance %s", apperrors.ErrNotFound, id)
	}
	a.Status = status
	cp := *a
	return &cp, nil
}

func (m *memStore) InsertDispatch(ctx context.Context, d *Dispatch) (*Dispatch, error) {
	if _, ok := m.dispatches[d.ReferralID]; ok {
		return nil, fmt.Errorf("%w: referral %s already has a dispatch", apperrors.ErrConflict, d.ReferralID)
	}
	cp := *d
	cp.UpdatedAt = d.DispatchTime
	m.dispatches[d.ReferralID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) GetByReferral(ctx context.Context, referralID string) (*Dispatch, error) {
	d, ok := m.dispatches[referralID]
	if !ok {
		return nil, fmt.Errorf("%w: dispatch for referral %s", apperrors.ErrNotFound, referralID)
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) GetByReferralForUpdate(ctx context.Context, referralID string) (*Dispatch, error) {
	return m.GetByReferral(ctx, referralID)
}

func (m *memStore) UpdateDispatch(ctx context.Context, id string, ch Changes) (*Dispatch, error) {
	for _, d := range m.dispatches {
		if d.ID != id {
			continue
		}
		d.Status = ch.Status
		if ch.CurrentLocation != nil {
			d.CurrentLocation = *ch.CurrentLocation
		}
		if ch.DriverName != nil {
			d.DriverName = *ch.DriverName
		}
		if ch.DriverPhone != nil {
			d.DriverPhone = *ch.DriverPhone
		}
		if ch.Notes != nil {
			d.Notes = *ch.Notes
		}
		if ch.CompletedAt != nil {
			d.CompletedAt = ch.CompletedAt
		}
		d.UpdatedAt = time.Now()
		cp := *d
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: dispatch %s", apperrors.ErrNotFound, id)
}

func (m *memStore) UpdateLocationByAmbulance(ctx context.Context, ambulanceID, location string) (bool, error) {
	for _, d := range m.dispatches {
		if d.AmbulanceID == ambulanceID && !d.Status.IsTerminal() {
			d.CurrentLocation = location
			return true, nil
		}
	}
	return false, nil
}

// activeFor counts non-terminal dispatches served by ambulanceID
func (m *memStore) activeFor(ambulanceID string) int {
	n := 0
	for _, d := range m.dispatches {
		if d.AmbulanceID == ambulanceID && !d.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// memReferrals implements referral.RepositoryInterface in memory
type memReferrals struct {
	refs    map[string]*referral.Referral
	history []referral.StatusChange
	seq     int
}

func newMemReferrals() *memReferrals {
	return &memReferrals{refs: map[string]*referral.Referral{}}
}

func (m *memReferrals) WithTx(tx db.DBTX) referral.RepositoryInterface { return m }

func (m *memReferrals) add(id string, status referral.Status) {
	m.refs[id] = &referral.Referral{
		ID: id, PatientID: patientID, FromHospitalID: sender, ToHospitalID: receiver,
		Status: status, Priority: referral.PriorityUrgent, RequiresAmbulance: true, CreatedAt: time.Now(),
	}
}

func (m *memReferrals) Insert(ctx context.Context, ref *referral.Referral) (*referral.Referral, error) {
	m.seq++
	cp := *ref
	cp.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Second)
	m.refs[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memReferrals) Get(ctx context.Context, id string) (*referral.Referral, error) {
	ref, ok := m.refs[id]
	if !ok {
		return nil, fmt.Errorf("%w: referral %s", apperrors.ErrNotFound, id)
	}
	cp := *ref
	return &cp, nil
}

func (m *memReferrals) GetForUpdate(ctx context.Context, id string) (*referral.Referral, error) {
	return m.Get(ctx, id)
}

func (m *memReferrals) UpdateStatus(ctx context.Context, id string, status referral.Status, notes *string, completedAt *time.Time) (*referral.Referral, error) {
	ref, ok := m.refs[id]
	if !ok {
		return nil, fmt.Errorf("%w: referral %s", apperrors.ErrNotFound, id)
	}
	ref.Status = status
	if completedAt != nil {
		ref.CompletedAt = completedAt
	}
	cp := *ref
	return &cp, nil
}

func (m *memReferrals) List(ctx context.Context, hospitalID string, filter referral.ListFilter) ([]referral.Referral, error) {
	out := []referral.Referral{}
	for _, ref := range m.refs {
		if ref.IsParty(hospitalID) {
			out = append(out, *ref)
		}
	}
	return out, nil
}

func (m *memReferrals) AppendHistory(ctx context.Context, change referral.StatusChange) error {
	m.history = append(m.history, change)
	return nil
}

func (m *memReferrals) History(ctx context.Context, referralID string) ([]referral.StatusChange, error) {
	return m.history, nil
}

type partyGate struct{}

func (partyGate) CanAccessPatient(ctx context.Context, hospitalID, patientID string, level access.Level) (bool, error) {
	return hospitalID == sender, nil
}

func (partyGate) RequirePatient(ctx context.Context, hospitalID, patientID string, level access.Level) error {
	if hospitalID == sender {
		return nil
	}
	return apperrors.ErrNotFound
}

func (partyGate) CanAccessReferral(hospitalID string, ref access.ReferralParties) bool {
	return ref.IsParty(hospitalID)
}

type recordingOps struct {
	ops []string
}

func (r *recordingOps) RecordDispatchOperation(ctx context.Context, operation, outcome string) {
	r.ops = append(r.ops, operation+":"+outcome)
}

type fixture struct {
	coord     *Coordinator
	store     *memStore
	referrals *memReferrals
	publisher *testutil.MockPublisher
	metrics   *recordingOps
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMemStore(),
		referrals: newMemReferrals(),
		publisher: testutil.NewMockPublisher(),
		metrics:   &recordingOps{},
		now:       time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	f.coord = NewCoordinator(f.store, f.referrals, &testutil.FakeTxRunner{}, partyGate{}, f.publisher, f.metrics, etaOffset, zap.NewNop())
	f.coord.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addAmbulance(t *testing.T, hospitalID, callSign string) *Ambulance {
	t.Helper()
	a, err := f.coord.CreateAmbulance(context.Background(), hospitalID, CreateAmbulanceRequest{CallSign: callSign})
	if err != nil {
		t.Fatalf("Failed to create ambulance: %v", err)
	}
	return a
}

func senderActor() referral.Actor   { return referral.Actor{UserID: "disp-1", HospitalID: sender} }
func receiverActor() referral.Actor { return referral.Actor{UserID: "doc-2", HospitalID: receiver} }

const (
	referralA = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	referralB = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
)

func TestCanTransition_Grid(t *testing.T) {
	all := []Status{StatusDispatched, StatusEnRoute, StatusArrived, StatusCompleted, StatusCancelled}
	allowed := map[string]bool{
		"DISPATCHED->EN_ROUTE":  true,
		"DISPATCHED->ARRIVED":   true,
		"DISPATCHED->COMPLETED": true,
		"DISPATCHED->CANCELLED": true,
		"EN_ROUTE->ARRIVED":     true,
		"EN_ROUTE->COMPLETED":   true,
		"EN_ROUTE->CANCELLED":   true,
		"ARRIVED->COMPLETED":    true,
		"ARRIVED->CANCELLED":    true,
	}
	for _, from := range all {
		for _, to := range all {
			key := string(from) + "->" + string(to)
			if got := CanTransition(from, to); got != allowed[key] {
				t.Errorf("CanTransition(%s) = %v, want %v", key, got, allowed[key])
			}
		}
	}
}

func TestRequestDispatch_Success(t *testing.T) {
	f := newFixture(t)
	f.referrals.add(referralA, referral.StatusAccepted)
	f.addAmbulance(t, receiver, "RCV-1")
	amb := f.addAmbulance(t, sender, "SND-1")

	d, err := f.coord.RequestDispatch(context.Background(), receiverActor(), referralA, RequestDispatchRequest{PickupLocation: " Ward 3 "})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if d.AmbulanceID != amb.ID {
		t.Errorf("Expected the sending hospital's ambulance, got %s", d.AmbulanceID)
	}
	if d.Status != StatusDispatched {
		t.Errorf("Expected DISPATCHED, got %s", d.Status)
	}
	if !d.EstimatedArrival.Equal(f.now.Add(etaOffset)) || !d.DispatchTime.Equal(f.now) {
		t.Errorf("Unexpected times: dispatch %v eta %v", d.DispatchTime, d.EstimatedArrival)
	}
	if d.PickupLocation != "Ward 3" {
		t.Errorf("Expected trimmed pickup, got %q", d.PickupLocation)
	}
	if f.store.ambulance(amb.ID).Status != AmbulanceDispatched {
		t.Error("Expected the ambulance to be DISPATCHED")
	}

	var event messaging.DispatchCreatedEvent
	f.publisher.LastByKey(t, messaging.EventDispatchCreated, &event)
	if event.Data.HospitalID != sender || event.Data.AmbulanceID != amb.ID {
		t.Errorf("Unexpected event data %+v", event.Data)
	}
}

func TestRequestDispatch_ConflictWhenDispatchExists(t *testing.T) {
	f := newFixture(t)
	f.referrals.add(referralA, referral.StatusPending)
	f.addAmbulance(t, sender, "SND-1")
	f.addAmbulance(t, sender, "SND-2")

	if _, err := f.coord.RequestDispatch(context.Background(), senderActor(), referralA, RequestDispatchRequest{}); err != nil {
		t.Fatalf("First dispatch failed: %v", err)
	}
	_, err := f.coord.RequestDispatch(context.Background(), senderActor(), referralA, RequestDispatchRequest{})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}

	dispatched := 0
	for _, a := range f.store.ambulances {
		if a.Status == AmbulanceDispatched {
			dispatched++
		}
	}
	if dispatched != 1 {
		t.Errorf("Expected exactly one dispatched ambulance, got %d", dispatched)
	}
}

func TestRequestDispatch_NoAvailableAmbulance(t *testing.T) {
	f := newFixture(t)
	f.referrals.add(referralA, referral.StatusPending)
	amb := f.addAmbulance(t, sender, "SND-1")
	if _, err := f.coord.SetAmbulanceStatus(context.Background(), sender, amb.ID, UpdateAmbulanceStatusRequest{Status: "OUT_OF_SERVICE"}); err != nil {
		t.Fatalf("Failed to take ambulance out of service: %v", err)
	}

	_, err := f.coord.RequestDispatch(context.Background(), senderActor(), referralA, RequestDispatchRequest{})
	if !errors.Is(err, apperrors.ErrNoAvailableResource) {
		t.Fatalf("Expected no available resource, got %v", err)
	}
	if apperrors.HTTPStatus(err) != 400 {
		t.Errorf("Expected 400, got %d", apperrors.HTTPStatus(err))
	}
	if len(f.store.dispatches) != 0 {
		t.Error("Expected no dispatch to be stored")
	}
	if got := f.metrics.ops[len(f.metrics.ops)-1]; got != "request:no_available_resource" {
		t.Errorf("Unexpected metric %q", got)
	}
}

func TestRequestDispatch_RejectsTerminalAndForeignReferrals(t *testing.T) {
	f := newFixture(t)
	f.referrals.add(referralA, referral.StatusRejected)
	f.referrals.add(referralB, referral.StatusPending)
	f.addAmbulance(t, sender, "SND-1")

	_, err := f.coord.RequestDispatch(context.Background(), senderActor(), referralA, RequestDispatchRequest{})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("Expected conflict for a terminal referral, got %v", err)
	}

	_, err = f.coord.RequestDispatch(context.Background(), referral.Actor{UserID: "x", HospitalID: bystander}, referralB, RequestDispatchRequest{})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found for a non-party, got %v", err)
	}

	_, err = f.coord.RequestDispatch(context.Background(), senderActor(), "cccccccc-cccc-cccc-cccc-cccccccccccc", RequestDispatchRequest{})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found for a missing referral, got %v", err)
	}
}

func TestRequestDispatch_ReferralWithoutAmbulanceFlag(t *testing.T) {
	f := newFixture(t)
	f.referrals.add(referralA, referral.StatusAccepted)
	f.referrals.refs[referralA].RequiresAmbulance = false
	amb := f.addAmbulance(t, sender, "SND-1")

	_, err := f.coord.RequestDispatch(context.Background(), senderActor(), referralA, RequestDispatchRequest{})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if f.store.ambulance(amb.ID).Status != AmbulanceAvailable {
		t.Error("Expected the ambulance to stay available")
	}
	if _, ok := f.store.dispatches[referralA]; ok {
		t.Error("Expected no dispatch to be created")
	}
	f.publisher.AssertEventCount(t, messaging.EventDispatchCreated, 0)
}

func TestAmbulanceExclusivity(t *testing.T) {
	f := newFixture(t)
	f.referrals.add(referralA, referral.StatusAccepted)
	f.referrals.add(referralB, referral.StatusAccepted)
	amb := f.addAmbulance(t, sender, "SND-1")
	ctx := context.Background()

	if _, err := f.coord.RequestDispatch(ctx, senderActor(), referralA, RequestDispatchRequest{}); err != nil {
		t.Fatalf("First dispatch failed: %v", err)
	}
	if _, err := f.coord.RequestDispatch(ctx, senderActor(), referralB, RequestDispatchRequest{}); !errors.Is(err, apperrors.ErrNoAvailableResource) {
		t.Fatalf("Expected the only ambulance to be busy, got %v", err)
	}
	if n := f.store.activeFor(amb.ID); n != 1 {
		t.Fatalf("Expected exactly one active dispatch, got %d", n)
	}

	if _, err := f.coord.UpdateDispatch(ctx, senderActor(), referralA, UpdateDispatchRequest{Status: "COMPLETED"}); err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}
	if f.store.ambulance(amb.ID).Status != AmbulanceAvailable {
		t.Fatal("Expected the ambulance to be AVAILABLE again")
	}

	d, err := f.coord.RequestDispatch(ctx, senderActor(), referralB, RequestDispatchRequest{})
	if err != nil {
		t.Fatalf("Expected the freed ambulance to be reused, got %v", err)
	}
	if d.AmbulanceID != amb.ID || f.store.activeFor(amb.ID) != 1 {
		t.Error("Ambulance must serve exactly one active dispatch")
	}
}

func TestUpdateDispatch_Lifecycle(t *testing.T) {
	f := newFixture(t)
	f.referrals.add(referralA, referral.StatusAccepted)
	amb := f.addAmbulance(t, sender, "SND-1")
	ctx := context.Background()

	if _, err := f.coord.RequestDispatch(ctx, senderActor(), referralA, RequestDispatchRequest{}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	driver := "Sam Driver"
	d, err := f.coord.UpdateDispatch(ctx, senderActor(), referralA, UpdateDispatchRequest{Status: "en_route", DriverName: &driver})
	if err != nil {
		t.Fatalf("Failed to go en route: %v", err)
	}
	if d.Status != StatusEnRoute || d.DriverName != driver {
		t.Errorf("Unexpected dispatch %+v", d)
	}

	location := "52.37,4.89"
	d, err = f.coord.UpdateDispatch(ctx, receiverActor(), referralA, UpdateDispatchRequest{CurrentLocation: &location})
	if err != nil {
		t.Fatalf("Failed to update location: %v", err)
	}
	if d.Status != StatusEnRoute || d.CurrentLocation != location {
		t.Errorf("Expected a location-only update, got %+v", d)
	}
	f.publisher.AssertEventCount(t, messaging.EventDispatchStatusChanged, 1)

	_, err = f.coord.UpdateDispatch(ctx, senderActor(), referralA, UpdateDispatchRequest{Status: "DISPATCHED"})
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Errorf("Expected backwards move to fail, got %v", err)
	}

	d, err = f.coord.UpdateDispatch(ctx, senderActor(), referralA, UpdateDispatchRequest{Status: "COMPLETED"})
	if err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}
	if d.CompletedAt == nil {
		t.Error("Expected completedAt to be set")
	}
	if f.store.ambulance(amb.ID).Status != AmbulanceAvailable {
		t.Error("Expected the ambulance to be released")
	}

	_, err = f.coord.UpdateDispatch(ctx, senderActor(), referralA, UpdateDispatchRequest{CurrentLocation: &location})
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Errorf("Expected a terminal dispatch to reject updates, got %v", err)
	}
}

func TestUpdateDispatch_Errors(t *testing.T) {
	f := newFixture(t)
	f.referrals.add(referralA, referral.StatusAccepted)
	ctx := context.Background()

	_, err := f.coord.UpdateDispatch(ctx, senderActor(), referralA, UpdateDispatchRequest{Status: "EN_ROUTE"})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found without a dispatch, got %v", err)
	}

	_, err = f.coord.UpdateDispatch(ctx, senderActor(), referralA, UpdateDispatchRequest{Status: "FLYING"})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}

	_, err = f.coord.UpdateDispatch(ctx, referral.Actor{HospitalID: bystander}, referralA, UpdateDispatchRequest{Status: "EN_ROUTE"})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found for a non-party, got %v", err)
	}
}

func TestDispatchRoutes_HideReferralFromNonParties(t *testing.T) {
	f := newFixture(t)
	f.referrals.add(referralA, referral.StatusAccepted)
	f.addAmbulance(t, sender, "SND-1")
	ctx := context.Background()
	if _, err := f.coord.RequestDispatch(ctx, senderActor(), referralA, RequestDispatchRequest{}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	outsider := referral.Actor{UserID: "x", HospitalID: bystander}
	_, requestErr := f.coord.RequestDispatch(ctx, outsider, referralA, RequestDispatchRequest{})
	_, getErr := f.coord.GetDispatch(ctx, bystander, referralA)
	_, updateErr := f.coord.UpdateDispatch(ctx, outsider, referralA, UpdateDispatchRequest{Status: "EN_ROUTE"})

	for name, err := range map[string]error{"request": requestErr, "get": getErr, "update": updateErr} {
		if !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("%s: expected not found, got %v", name, err)
		}
	}
}

func TestCancelForReferral(t *testing.T) {
	f := newFixture(t)
	f.referrals.add(referralA, referral.StatusAccepted)
	amb := f.addAmbulance(t, sender, "SND-1")
	ctx := context.Background()

	none, err := f.coord.CancelForReferral(ctx, nil, referralA)
	if err != nil || none != nil {
		t.Fatalf("Expected nothing to cancel, got %v, %v", none, err)
	}

	if _, err := f.coord.RequestDispatch(ctx, senderActor(), referralA, RequestDispatchRequest{}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	active, _ := f.coord.HasActiveDispatch(ctx, nil, referralA)
	if !active {
		t.Fatal("Expected an active dispatch")
	}

	cancelled, err := f.coord.CancelForReferral(ctx, nil, referralA)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled == nil || cancelled.AmbulanceID != amb.ID || cancelled.OldStatus != string(StatusDispatched) {
		t.Errorf("Unexpected cancellation %+v", cancelled)
	}
	if f.store.ambulance(amb.ID).Status != AmbulanceAvailable {
		t.Error("Expected the ambulance to be released")
	}
	active, _ = f.coord.HasActiveDispatch(ctx, nil, referralA)
	if active {
		t.Error("Expected no active dispatch after cancellation")
	}

	again, err := f.coord.CancelForReferral(ctx, nil, referralA)
	if err != nil || again != nil {
		t.Errorf("Expected a second cancel to be a no-op, got %v, %v", again, err)
	}
}

func TestSetAmbulanceStatus(t *testing.T) {
	f := newFixture(t)
	f.referrals.add(referralA, referral.StatusAccepted)
	amb := f.addAmbulance(t, sender, "SND-1")
	ctx := context.Background()

	if _, err := f.coord.SetAmbulanceStatus(ctx, sender, amb.ID, UpdateAmbulanceStatusRequest{Status: "DISPATCHED"}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Expected DISPATCHED to be refused, got %v", err)
	}
	if _, err := f.coord.SetAmbulanceStatus(ctx, receiver, amb.ID, UpdateAmbulanceStatusRequest{Status: "OUT_OF_SERVICE"}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected another hospital's ambulance to be hidden, got %v", err)
	}

	if _, err := f.coord.RequestDispatch(ctx, senderActor(), referralA, RequestDispatchRequest{}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if _, err := f.coord.SetAmbulanceStatus(ctx, sender, amb.ID, UpdateAmbulanceStatusRequest{Status: "AVAILABLE"}); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("Expected a dispatched ambulance to be locked, got %v", err)
	}
}

func TestCreateAmbulance(t *testing.T) {
	f := newFixture(t)

	if _, err := f.coord.CreateAmbulance(context.Background(), sender, CreateAmbulanceRequest{}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}

	a := f.addAmbulance(t, sender, "SND-1")
	if a.Status != AmbulanceAvailable || a.VehicleType != defaultVehicleType {
		t.Errorf("Unexpected ambulance %+v", a)
	}

	if _, err := f.coord.CreateAmbulance(context.Background(), sender, CreateAmbulanceRequest{CallSign: "SND-1"}); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("Expected duplicate call sign conflict, got %v", err)
	}
}

func TestRecordLocation(t *testing.T) {
	f := newFixture(t)
	f.referrals.add(referralA, referral.StatusAccepted)
	amb := f.addAmbulance(t, sender, "SND-1")

	ok, err := f.coord.RecordLocation(context.Background(), amb.ID, "52.1,4.3")
	if err != nil || ok {
		t.Fatalf("Expected no active dispatch, got %v, %v", ok, err)
	}

	if _, err := f.coord.RequestDispatch(context.Background(), senderActor(), referralA, RequestDispatchRequest{}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	ok, err = f.coord.RecordLocation(context.Background(), amb.ID, "52.1,4.3")
	if err != nil || !ok {
		t.Fatalf("Expected the location to be stored, got %v, %v", ok, err)
	}
	if f.store.dispatches[referralA].CurrentLocation != "52.1,4.3" {
		t.Error("Location was not recorded")
	}
}

type allHospitals struct{}

func (allHospitals) Exists(ctx context.Context, id string) (bool, error) { return true, nil }

// The referral state machine and the coordinator share one transaction
func TestReferralLifecycleWithDispatch(t *testing.T) {
	f := newFixture(t)
	amb := f.addAmbulance(t, sender, "SND-1")
	ctx := context.Background()

	refs := referral.NewService(f.referrals, &testutil.FakeTxRunner{}, allHospitals{}, partyGate{}, f.coord, f.publisher, nil, zap.NewNop())

	ref, err := refs.CreateReferral(ctx, senderActor(), referral.CreateReferralRequest{
		PatientID: patientID, ToHospitalID: receiver, Reason: "Stroke unit", Priority: "EMERGENCY", RequiresAmbulance: true,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := refs.UpdateReferral(ctx, receiverActor(), ref.ID, referral.UpdateReferralRequest{Status: "ACCEPTED"}); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if _, err := f.coord.RequestDispatch(ctx, senderActor(), ref.ID, RequestDispatchRequest{}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	_, err = refs.UpdateReferral(ctx, receiverActor(), ref.ID, referral.UpdateReferralRequest{Status: "COMPLETED"})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("Expected completion to wait for the dispatch, got %v", err)
	}

	cancelled, err := refs.CancelReferral(ctx, senderActor(), ref.ID, nil)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != referral.StatusCancelled {
		t.Errorf("Expected CANCELLED, got %s", cancelled.Status)
	}
	if f.store.dispatches[ref.ID].Status != StatusCancelled {
		t.Error("Expected the dispatch to be cancelled with the referral")
	}
	if f.store.ambulance(amb.ID).Status != AmbulanceAvailable {
		t.Error("Expected the ambulance to be released")
	}

	var event messaging.DispatchStatusChangedEvent
	f.publisher.LastByKey(t, messaging.EventDispatchStatusChanged, &event)
	if event.Data.AmbulanceID != amb.ID || event.Data.NewStatus != "CANCELLED" {
		t.Errorf("Unexpected cascade event %+v", event.Data)
	}
}

func TestRejectedReferralReleasesAmbulance(t *testing.T) {
	f := newFixture(t)
	amb := f.addAmbulance(t, sender, "SND-1")
	ctx := context.Background()

	refs := referral.NewService(f.referrals, &testutil.FakeTxRunner{}, allHospitals{}, partyGate{}, f.coord, f.publisher, nil, zap.NewNop())

	ref, err := refs.CreateReferral(ctx, senderActor(), referral.CreateReferralRequest{
		PatientID: patientID, ToHospitalID: receiver, Reason: "Burns unit", Priority: "EMERGENCY", RequiresAmbulance: true,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.coord.RequestDispatch(ctx, senderActor(), ref.ID, RequestDispatchRequest{}); err != nil {
		t.Fatalf("Dispatch of a pending referral failed: %v", err)
	}

	rejected, err := refs.UpdateReferral(ctx, receiverActor(), ref.ID, referral.UpdateReferralRequest{Status: "REJECTED"})
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != referral.StatusRejected {
		t.Errorf("Expected REJECTED, got %s", rejected.Status)
	}
	if f.store.dispatches[ref.ID].Status != StatusCancelled {
		t.Errorf("Expected the dispatch to be cancelled, got %s", f.store.dispatches[ref.ID].Status)
	}
	if f.store.ambulance(amb.ID).Status != AmbulanceAvailable {
		t.Errorf("Expected the ambulance to be released, got %s", f.store.ambulance(amb.ID).Status)
	}
	if n := f.store.activeFor(amb.ID); n != 0 {
		t.Errorf("Expected no active dispatch on the ambulance, got %d", n)
	}

	var event messaging.DispatchStatusChangedEvent
	f.publisher.LastByKey(t, messaging.EventDispatchStatusChanged, &event)
	if event.Data.NewStatus != "CANCELLED" || event.Data.OldStatus != "DISPATCHED" {
		t.Errorf("Unexpected cascade event %+v", event.Data)
	}
}
