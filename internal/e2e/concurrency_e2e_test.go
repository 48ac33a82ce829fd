//go:build integration

package e2e

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/dispatch"
	"github.com/WailSalutem-Health-Care/referral-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/referral-service/internal/testutil"
)

// raceRequests starts every call in its own goroutine, releases them together
// and returns the response status codes in call order.
func raceRequests(t *testing.T, calls ...func() (*http.Response, error)) []int {
	t.Helper()

	codes := make([]int, len(calls))
	errs := make([]error, len(calls))
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call func() (*http.Response, error)) {
			defer wg.Done()
			<-start
			resp, err := call()
			if err != nil {
				errs[i] = err
				return
			}
			codes[i] = resp.StatusCode
			resp.Body.Close()
		}(i, call)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
	}
	return codes
}

func tally(codes []int) map[int]int {
	out := make(map[int]int)
	for _, c := range codes {
		out[c]++
	}
	return out
}

func (ts *TestServer) openReferral(t *testing.T, from, to, patientID string) string {
	t.Helper()

	resp := ts.Doctor(t, from).POST(t, "/hospitals/"+from+"/referrals", map[string]interface{}{
		"patientId":         patientID,
		"toHospitalId":      to,
		"reason":            "Transfer",
		"priority":          "EMERGENCY",
		"requiresAmbulance": true,
	})
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
	var created referralBody
	testutil.DecodeJSON(t, resp, &created)
	return created.Referral.ID
}

func (ts *TestServer) addAmbulance(t *testing.T, hospitalID, callSign string) string {
	t.Helper()

	resp := ts.Dispatcher(t, hospitalID).POST(t, "/hospitals/"+hospitalID+"/ambulances", map[string]interface{}{"callSign": callSign})
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
	var body struct {
		Ambulance struct {
			ID string `json:"id"`
		} `json:"ambulance"`
	}
	testutil.DecodeJSON(t, resp, &body)
	return body.Ambulance.ID
}

func (ts *TestServer) countActiveDispatches(t *testing.T, ambulanceID string) int {
	t.Helper()

	var n int
	err := ts.DB.QueryRow(`
		SELECT COUNT(*) FROM referral.ambulance_dispatches
		WHERE ambulance_id = $1 AND status IN ('DISPATCHED', 'EN_ROUTE', 'ARRIVED')`, ambulanceID).Scan(&n)
	if err != nil {
		t.Fatalf("Failed to count dispatches: %v", err)
	}
	return n
}

// TestE2E_ConcurrentDispatchRequests sends two dispatch requests for one
// referral at the same time: exactly one succeeds.
func TestE2E_ConcurrentDispatchRequests(t *testing.T) {
	ts := SetupE2ETest(t)
	defer ts.Cleanup(t)

	sender := testutil.CreateTestHospital(t, ts.DB, "SEND")
	receiver := testutil.CreateTestHospital(t, ts.DB, "RECV")
	patientID, _ := ts.registerPatient(t, sender, "Curie")
	ambulanceA := ts.addAmbulance(t, sender, "AMB-1")
	ambulanceB := ts.addAmbulance(t, sender, "AMB-2")
	referralID := ts.openReferral(t, sender, receiver, patientID)

	path := "/hospitals/" + sender + "/referrals/" + referralID + "/ambulance"
	senderClient := ts.Dispatcher(t, sender)
	receiverClient := ts.Dispatcher(t, receiver)

	codes := raceRequests(t,
		func() (*http.Response, error) { return senderClient.Send(http.MethodPost, path, nil) },
		func() (*http.Response, error) {
			return receiverClient.Send(http.MethodPost, "/hospitals/"+receiver+"/referrals/"+referralID+"/ambulance", nil)
		},
	)

	got := tally(codes)
	if got[http.StatusCreated] != 1 || got[http.StatusConflict] != 1 {
		t.Fatalf("Expected one 201 and one 409, got %v", codes)
	}

	// One ambulance was taken; the other one stays free
	if n := ts.countActiveDispatches(t, ambulanceA) + ts.countActiveDispatches(t, ambulanceB); n != 1 {
		t.Errorf("Expected exactly one active dispatch, got %d", n)
	}
	var dispatched int
	if err := ts.DB.QueryRow(`SELECT COUNT(*) FROM referral.ambulances WHERE hospital_id = $1 AND status = 'DISPATCHED'`, sender).Scan(&dispatched); err != nil {
		t.Fatalf("Failed to count ambulances: %v", err)
	}
	if dispatched != 1 {
		t.Errorf("Expected one DISPATCHED ambulance, got %d", dispatched)
	}
	ts.MockPublisher.AssertEventCount(t, messaging.EventDispatchCreated, 1)
}

// TestE2E_ConcurrentDispatchSingleAmbulance races two referrals for the only
// ambulance of the sending hospital.
func TestE2E_ConcurrentDispatchSingleAmbulance(t *testing.T) {
	ts := SetupE2ETest(t)
	defer ts.Cleanup(t)

	sender := testutil.CreateTestHospital(t, ts.DB, "SEND")
	receiver := testutil.CreateTestHospital(t, ts.DB, "RECV")
	patientID, _ := ts.registerPatient(t, sender, "Meitner")
	ambulanceID := ts.addAmbulance(t, sender, "AMB-1")
	first := ts.openReferral(t, sender, receiver, patientID)
	second := ts.openReferral(t, sender, receiver, patientID)

	client := ts.Dispatcher(t, sender)
	base := "/hospitals/" + sender + "/referrals/"
	codes := raceRequests(t,
		func() (*http.Response, error) { return client.Send(http.MethodPost, base+first+"/ambulance", nil) },
		func() (*http.Response, error) { return client.Send(http.MethodPost, base+second+"/ambulance", nil) },
	)

	got := tally(codes)
	if got[http.StatusCreated] != 1 || got[http.StatusBadRequest] != 1 {
		t.Fatalf("Expected one 201 and one 400, got %v", codes)
	}
	if n := ts.countActiveDispatches(t, ambulanceID); n != 1 {
		t.Errorf("Expected the ambulance to serve exactly one dispatch, got %d", n)
	}
}

// TestE2E_ActiveAmbulanceIndex writes past the coordinator to check that the
// database itself refuses a second active dispatch for one ambulance.
func TestE2E_ActiveAmbulanceIndex(t *testing.T) {
	ts := SetupE2ETest(t)
	defer ts.Cleanup(t)

	sender := testutil.CreateTestHospital(t, ts.DB, "SEND")
	receiver := testutil.CreateTestHospital(t, ts.DB, "RECV")
	patientID, _ := ts.registerPatient(t, sender, "Franklin")
	ambulanceID := ts.addAmbulance(t, sender, "AMB-1")
	first := ts.openReferral(t, sender, receiver, patientID)
	second := ts.openReferral(t, sender, receiver, patientID)

	repo := dispatch.NewRepository(ts.DB)
	now := time.Now().UTC()
	insert := func(referralID string, status dispatch.Status) error {
		_, err := repo.InsertDispatch(context.Background(), &dispatch.Dispatch{
			ID:               uuid.NewString(),
			ReferralID:       referralID,
			AmbulanceID:      ambulanceID,
			Status:           status,
			DispatchTime:     now,
			EstimatedArrival: now.Add(30 * time.Minute),
		})
		return err
	}

	if err := insert(first, dispatch.StatusEnRoute); err != nil {
		t.Fatalf("First dispatch failed: %v", err)
	}
	if err := insert(second, dispatch.StatusDispatched); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("Expected conflict for a second active dispatch, got %v", err)
	}
}

// TestE2E_ConcurrentReferralTransitions races ACCEPTED against REJECTED from
// PENDING: one wins, the other sees the new state.
func TestE2E_ConcurrentReferralTransitions(t *testing.T) {
	ts := SetupE2ETest(t)
	defer ts.Cleanup(t)

	sender := testutil.CreateTestHospital(t, ts.DB, "SEND")
	receiver := testutil.CreateTestHospital(t, ts.DB, "RECV")
	patientID, _ := ts.registerPatient(t, sender, "Noether")
	referralID := ts.openReferral(t, sender, receiver, patientID)

	path := "/hospitals/" + receiver + "/referrals/" + referralID
	accepter := ts.Doctor(t, receiver)
	rejecter := ts.Doctor(t, receiver)

	codes := raceRequests(t,
		func() (*http.Response, error) {
			return accepter.Send(http.MethodPut, path, map[string]interface{}{"status": "ACCEPTED"})
		},
		func() (*http.Response, error) {
			return rejecter.Send(http.MethodPut, path, map[string]interface{}{"status": "REJECTED"})
		},
	)

	got := tally(codes)
	if got[http.StatusOK] != 1 || got[http.StatusUnprocessableEntity] != 1 {
		t.Fatalf("Expected one 200 and one 422, got %v", codes)
	}

	resp := accepter.GET(t, path)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var final referralBody
	testutil.DecodeJSON(t, resp, &final)

	winner := "ACCEPTED"
	if codes[1] == http.StatusOK {
		winner = "REJECTED"
	}
	if final.Referral.Status != winner {
		t.Errorf("Expected %s, got %s", winner, final.Referral.Status)
	}
	if len(final.Referral.History) != 2 {
		t.Errorf("Expected 2 history rows, got %d", len(final.Referral.History))
	}
	ts.MockPublisher.AssertEventCount(t, messaging.EventReferralStatusChanged, 1)
}
