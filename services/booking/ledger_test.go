package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	bookingRepo "findmycoach/database/repository/booking"
	"findmycoach/models"
	"findmycoach/services/payment"
)

// In-memory BookingRepository with real compare-and-swap semantics, safe for
// concurrent use so race scenarios can be exercised.
type memBookingRepo struct {
	mu    sync.Mutex
	items map[string]*models.Booking
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{items: make(map[string]*models.Booking)}
}

func (m *memBookingRepo) Create(ctx context.Context, bk *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *bk
	m.items[bk.ID] = &cp
	return nil
}

func (m *memBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bk, ok := m.items[id]
	if !ok {
		return nil, bookingRepo.ErrNotFound
	}
	cp := *bk
	return &cp, nil
}

func (m *memBookingRepo) Transition(ctx context.Context, id, expectedStatus string, expectedVersion int64, set bookingRepo.TransitionSet) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bk, ok := m.items[id]
	if !ok {
		return nil, bookingRepo.ErrNotFound
	}
	if bk.Status != expectedStatus || bk.Version != expectedVersion {
		return nil, bookingRepo.ErrConflict
	}
	if set.AuthorizationRef != "" && bk.AuthorizationRef != "" && bk.AuthorizationRef != set.AuthorizationRef {
		return nil, bookingRepo.ErrConflict
	}
	bk.Status = set.Status
	if set.AuthorizationRef != "" {
		bk.AuthorizationRef = set.AuthorizationRef
	}
	bk.Version++
	bk.UpdatedAt = time.Now().UTC()
	cp := *bk
	return &cp, nil
}

func (m *memBookingRepo) AttachPayoutRef(ctx context.Context, id, payoutRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bk, ok := m.items[id]
	if !ok || bk.Status != models.BookingStatusCompleted || bk.PayoutRef != "" {
		return false, nil
	}
	bk.PayoutRef = payoutRef
	bk.Version++
	return true, nil
}

func (m *memBookingRepo) CountOverlapping(ctx context.Context, coachID string, start, end time.Time, statuses []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, bk := range m.items {
		if bk.CoachID != coachID || !bk.Start.Before(end) || !bk.End.After(start) {
			continue
		}
		for _, s := range statuses {
			if bk.Status == s {
				n++
				break
			}
		}
	}
	return n, nil
}

func (m *memBookingRepo) FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, bk := range m.items {
		if bk.Status == models.BookingStatusPending && bk.CreatedAt.Before(cutoff) {
			out = append(out, *bk)
		}
	}
	return out, nil
}

func (m *memBookingRepo) ListByParty(ctx context.Context, userID string) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, bk := range m.items {
		if bk.PlayerID == userID || bk.CoachID == userID {
			out = append(out, *bk)
		}
	}
	return out, nil
}

// Audit sink recording appended events.
type memAuditRepo struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (m *memAuditRepo) Append(ctx context.Context, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *memAuditRepo) ListByEntity(ctx context.Context, entity, entityID string) ([]models.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditEvent
	for _, ev := range m.events {
		if ev.Entity == entity && ev.EntityID == entityID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memAuditRepo) countType(t string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// Gateway mock with function fields.
type mockGateway struct {
	authorizeFunc func(ctx context.Context, p payment.AuthorizationParams) (*payment.Authorization, error)
	captureFunc   func(ctx context.Context, ref string) error
	cancelFunc    func(ctx context.Context, ref string) error
	lookupFunc    func(ctx context.Context, bookingID string) (*payment.HoldState, error)
}

func (m *mockGateway) Authorize(ctx context.Context, p payment.AuthorizationParams) (*payment.Authorization, error) {
	if m.authorizeFunc != nil {
		return m.authorizeFunc(ctx, p)
	}
	return &payment.Authorization{Ref: "pi_test", ClientSecret: "pi_test_secret"}, nil
}

func (m *mockGateway) Capture(ctx context.Context, ref string) error {
	if m.captureFunc != nil {
		return m.captureFunc(ctx, ref)
	}
	return nil
}

func (m *mockGateway) Cancel(ctx context.Context, ref string) error {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, ref)
	}
	return nil
}

func (m *mockGateway) Retrieve(ctx context.Context, ref string) (*payment.HoldState, error) {
	return &payment.HoldState{Ref: ref, Status: payment.HoldAuthorized}, nil
}

func (m *mockGateway) LookupByBookingID(ctx context.Context, bookingID string) (*payment.HoldState, error) {
	if m.lookupFunc != nil {
		return m.lookupFunc(ctx, bookingID)
	}
	return nil, payment.ErrHoldNotFound
}

type mockCoachDirectory struct {
	coaches map[string]*models.CoachProfile
}

func (m *mockCoachDirectory) GetByUserID(ctx context.Context, userID string) (*models.CoachProfile, error) {
	if c, ok := m.coaches[userID]; ok {
		return c, nil
	}
	return nil, bookingRepo.ErrNotFound
}

func (m *mockCoachDirectory) SetPayoutAccount(ctx context.Context, userID, accountID string) error {
	m.coaches[userID].PayoutAccountID = accountID
	return nil
}

func newTestLedger(repo *memBookingRepo, gw *mockGateway, audit *memAuditRepo) *DefaultBookingLedger {
	return &DefaultBookingLedger{
		Repo: repo,
		Coaches: &mockCoachDirectory{coaches: map[string]*models.CoachProfile{
			"coach-1": {UserID: "coach-1", PayoutAccountID: "acct_1", PricePerHourCents: 10000},
			"coach-2": {UserID: "coach-2"},
		}},
		Gateway:    gw,
		Audit:      audit,
		FeePercent: 0.12,
		Logger:     zap.NewNop(),
	}
}

func createReq() CreateBookingRequest {
	start := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Hour)
	return CreateBookingRequest{
		PlayerID: "player-1",
		CoachID:  "coach-1",
		Start:    start,
		End:      start.Add(time.Hour),
		Price:    "100.00",
		Currency: "usd",
	}
}

func TestCreateBooking_AuthorizedBecomesConfirmed(t *testing.T) {
	repo := newMemBookingRepo()
	audit := &memAuditRepo{}
	ledger := newTestLedger(repo, &mockGateway{}, audit)

	result, err := ledger.CreateBooking(context.Background(), createReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Booking.Status != models.BookingStatusConfirmed {
		t.Errorf("expected CONFIRMED, got %s", result.Booking.Status)
	}
	if result.Booking.AuthorizationRef != "pi_test" {
		t.Errorf("expected authorization ref pi_test, got %q", result.Booking.AuthorizationRef)
	}
	if result.ClientSecret != "pi_test_secret" {
		t.Errorf("expected client secret, got %q", result.ClientSecret)
	}
	if result.Booking.AmountCents != 10000 {
		t.Errorf("expected 10000 cents, got %d", result.Booking.AmountCents)
	}
	if audit.countType(models.AuditBookingCreated) != 1 || audit.countType(models.AuditBookingConfirmed) != 1 {
		t.Errorf("expected created+confirmed audit entries, got %+v", audit.events)
	}
}

func TestCreateBooking_DeclinedBecomesCanceled(t *testing.T) {
	repo := newMemBookingRepo()
	audit := &memAuditRepo{}
	gw := &mockGateway{
		authorizeFunc: func(ctx context.Context, p payment.AuthorizationParams) (*payment.Authorization, error) {
			return nil, payment.ErrDeclined
		},
	}
	ledger := newTestLedger(repo, gw, audit)

	_, err := ledger.CreateBooking(context.Background(), createReq())
	if CodeOf(err) != CodeGatewayDeclined {
		t.Fatalf("expected GatewayDeclined, got %v", err)
	}

	bookings, _ := repo.ListByParty(context.Background(), "player-1")
	if len(bookings) != 1 {
		t.Fatalf("expected write-ahead row to exist, got %d", len(bookings))
	}
	if bookings[0].Status != models.BookingStatusCanceled {
		t.Errorf("expected CANCELED, got %s", bookings[0].Status)
	}
	if bookings[0].AuthorizationRef != "" {
		t.Errorf("declined booking must have no authorization ref, got %q", bookings[0].AuthorizationRef)
	}
	if audit.countType(models.AuditBookingCanceled) != 1 {
		t.Errorf("expected exactly one canceled audit entry")
	}
}

func TestCreateBooking_DeclinedAfterRacingCancelAuditsNothing(t *testing.T) {
	repo := newMemBookingRepo()
	audit := &memAuditRepo{}
	gw := &mockGateway{
		authorizeFunc: func(ctx context.Context, p payment.AuthorizationParams) (*payment.Authorization, error) {
			// A failure webhook lands before the decline response makes it
			// back; the row is already CANCELED when the ledger reacts.
			if _, err := repo.Transition(ctx, p.IdempotencyKey, models.BookingStatusPending, 1,
				bookingRepo.TransitionSet{Status: models.BookingStatusCanceled}); err != nil {
				t.Fatalf("racing cancel failed: %v", err)
			}
			return nil, payment.ErrDeclined
		},
	}
	ledger := newTestLedger(repo, gw, audit)

	_, err := ledger.CreateBooking(context.Background(), createReq())
	if CodeOf(err) != CodeGatewayDeclined {
		t.Fatalf("expected GatewayDeclined, got %v", err)
	}

	bookings, _ := repo.ListByParty(context.Background(), "player-1")
	if bookings[0].Status != models.BookingStatusCanceled {
		t.Fatalf("expected CANCELED, got %s", bookings[0].Status)
	}
	// The race winner owns the audit trail; losing the guarded transition
	// must not add a second canceled entry.
	if audit.countType(models.AuditBookingCanceled) != 0 {
		t.Errorf("expected no canceled audit entry from the race loser, got %d", audit.countType(models.AuditBookingCanceled))
	}
}

func TestCreateBooking_GatewayUnavailableLeavesPending(t *testing.T) {
	repo := newMemBookingRepo()
	gw := &mockGateway{
		authorizeFunc: func(ctx context.Context, p payment.AuthorizationParams) (*payment.Authorization, error) {
			return nil, payment.ErrUnavailable
		},
	}
	ledger := newTestLedger(repo, gw, &memAuditRepo{})

	_, err := ledger.CreateBooking(context.Background(), createReq())
	if CodeOf(err) != CodeGatewayUnavailable {
		t.Fatalf("expected GatewayUnavailable, got %v", err)
	}
	if !Retryable(err) {
		t.Error("GatewayUnavailable must be retryable")
	}

	bookings, _ := repo.ListByParty(context.Background(), "player-1")
	if len(bookings) != 1 || bookings[0].Status != models.BookingStatusPending {
		t.Fatalf("booking must stay PENDING for the sweep, got %+v", bookings)
	}
}

func TestCreateBooking_CoachNotPayable(t *testing.T) {
	ledger := newTestLedger(newMemBookingRepo(), &mockGateway{}, &memAuditRepo{})
	req := createReq()
	req.CoachID = "coach-2"

	_, err := ledger.CreateBooking(context.Background(), req)
	if CodeOf(err) != CodeCoachNotPayable {
		t.Fatalf("expected CoachNotPayable, got %v", err)
	}
}

func TestCreateBooking_RejectsInvalidPrice(t *testing.T) {
	ledger := newTestLedger(newMemBookingRepo(), &mockGateway{}, &memAuditRepo{})

	for _, price := range []string{"0", "-5", "abc", "10.005"} {
		req := createReq()
		req.Price = price
		if _, err := ledger.CreateBooking(context.Background(), req); CodeOf(err) != CodeValidation {
			t.Errorf("price %q: expected ValidationError, got %v", price, err)
		}
	}
}

func TestCreateBooking_WindowConflict(t *testing.T) {
	repo := newMemBookingRepo()
	ledger := newTestLedger(repo, &mockGateway{}, &memAuditRepo{})

	if _, err := ledger.CreateBooking(context.Background(), createReq()); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	_, err := ledger.CreateBooking(context.Background(), createReq())
	if CodeOf(err) != CodeConflict {
		t.Fatalf("expected Conflict for overlapping window, got %v", err)
	}
}

func TestRequestCapture_CompletesConfirmedBooking(t *testing.T) {
	repo := newMemBookingRepo()
	audit := &memAuditRepo{}
	ledger := newTestLedger(repo, &mockGateway{}, audit)

	result, err := ledger.CreateBooking(context.Background(), createReq())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	bk, err := ledger.RequestCapture(context.Background(), result.Booking.ID, "coach-1")
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if bk.Status != models.BookingStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", bk.Status)
	}
	if audit.countType(models.AuditBookingCompleted) != 1 {
		t.Errorf("expected exactly one completed audit entry")
	}

	// Price and currency must be untouched by the whole flow.
	if bk.AmountCents != 10000 || bk.Currency != "usd" {
		t.Errorf("price/currency changed: %d %s", bk.AmountCents, bk.Currency)
	}
}

func TestRequestCapture_AlreadyCapturedIsFatal(t *testing.T) {
	repo := newMemBookingRepo()
	gw := &mockGateway{
		captureFunc: func(ctx context.Context, ref string) error { return payment.ErrAlreadyCaptured },
	}
	ledger := newTestLedger(repo, gw, &memAuditRepo{})

	result, err := ledger.CreateBooking(context.Background(), createReq())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = ledger.RequestCapture(context.Background(), result.Booking.ID, "coach-1")
	if CodeOf(err) != CodeAlreadyCaptured {
		t.Fatalf("expected AlreadyCaptured, got %v", err)
	}
	bk, _ := repo.GetByID(context.Background(), result.Booking.ID)
	if bk.Status != models.BookingStatusConfirmed {
		t.Errorf("status must be untouched after fatal conflict, got %s", bk.Status)
	}
}

func TestRequestCancel_ReleasesHold(t *testing.T) {
	repo := newMemBookingRepo()
	ledger := newTestLedger(repo, &mockGateway{}, &memAuditRepo{})

	result, err := ledger.CreateBooking(context.Background(), createReq())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	bk, err := ledger.RequestCancel(context.Background(), result.Booking.ID, "player-1")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if bk.Status != models.BookingStatusCanceled {
		t.Errorf("expected CANCELED, got %s", bk.Status)
	}
}

func TestRequestCancel_NeverOverridesCapturedCharge(t *testing.T) {
	repo := newMemBookingRepo()
	gw := &mockGateway{
		cancelFunc: func(ctx context.Context, ref string) error { return payment.ErrAlreadyCaptured },
	}
	ledger := newTestLedger(repo, gw, &memAuditRepo{})

	result, err := ledger.CreateBooking(context.Background(), createReq())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = ledger.RequestCancel(context.Background(), result.Booking.ID, "player-1")
	if CodeOf(err) != CodeAlreadyCaptured {
		t.Fatalf("expected AlreadyCaptured, got %v", err)
	}
	bk, _ := repo.GetByID(context.Background(), result.Booking.ID)
	if bk.Status != models.BookingStatusConfirmed {
		t.Errorf("cancel must not override a captured charge, got %s", bk.Status)
	}
}

func TestRequestCancel_PendingNeedsNoGatewayCall(t *testing.T) {
	repo := newMemBookingRepo()
	gatewayCalled := false
	gw := &mockGateway{
		authorizeFunc: func(ctx context.Context, p payment.AuthorizationParams) (*payment.Authorization, error) {
			return nil, payment.ErrUnavailable
		},
		cancelFunc: func(ctx context.Context, ref string) error {
			gatewayCalled = true
			return nil
		},
	}
	ledger := newTestLedger(repo, gw, &memAuditRepo{})

	_, _ = ledger.CreateBooking(context.Background(), createReq())
	bookings, _ := repo.ListByParty(context.Background(), "player-1")

	bk, err := ledger.RequestCancel(context.Background(), bookings[0].ID, "player-1")
	if err != nil {
		t.Fatalf("pending cancel failed: %v", err)
	}
	if bk.Status != models.BookingStatusCanceled {
		t.Errorf("expected CANCELED, got %s", bk.Status)
	}
	if gatewayCalled {
		t.Error("pending cancel must not call the gateway")
	}
}

func TestGuardedTransition_ExactlyOneConcurrentWinner(t *testing.T) {
	repo := newMemBookingRepo()
	now := time.Now().UTC()
	repo.Create(context.Background(), &models.Booking{
		ID:        "bk-race",
		PlayerID:  "player-1",
		CoachID:   "coach-1",
		Status:    models.BookingStatusConfirmed,
		CreatedAt: now,
		Version:   2,
	})

	const writers = 16
	var wins, conflicts int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		target := models.BookingStatusCompleted
		if i%2 == 0 {
			target = models.BookingStatusCanceled
		}
		go func(target string) {
			defer wg.Done()
			_, err := repo.Transition(context.Background(), "bk-race", models.BookingStatusConfirmed, 2,
				bookingRepo.TransitionSet{Status: target})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if err == bookingRepo.ErrConflict {
				conflicts++
			}
		}(target)
	}
	wg.Wait()

	if wins != 1 || conflicts != writers-1 {
		t.Fatalf("expected exactly one winner, got %d wins / %d conflicts", wins, conflicts)
	}
	bk, _ := repo.GetByID(context.Background(), "bk-race")
	if !models.TerminalStatus(bk.Status) {
		t.Errorf("expected a terminal status after the race, got %s", bk.Status)
	}
	if bk.Version != 3 {
		t.Errorf("expected exactly one version bump, got %d", bk.Version)
	}
}

func TestCaptureRacesWithCancel_LoserObservesConflict(t *testing.T) {
	repo := newMemBookingRepo()
	ledger := newTestLedger(repo, &mockGateway{}, &memAuditRepo{})

	result, err := ledger.CreateBooking(context.Background(), createReq())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	id := result.Booking.ID

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = ledger.RequestCapture(context.Background(), id, "coach-1")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = ledger.RequestCancel(context.Background(), id, "player-1")
	}()
	wg.Wait()

	bk, _ := repo.GetByID(context.Background(), id)
	if !models.TerminalStatus(bk.Status) {
		t.Fatalf("expected terminal status, got %s", bk.Status)
	}
	// Exactly one of the two may fail, and only with a conflict-class code;
	// there is no double transition.
	failures := 0
	for _, e := range errs {
		if e == nil {
			continue
		}
		failures++
		switch CodeOf(e) {
		case CodeConflict, CodeAlreadyCaptured, CodeAlreadyCanceled:
		default:
			t.Errorf("unexpected race error: %v", e)
		}
	}
	if failures > 1 {
		t.Errorf("expected at most one loser, got %d failures", failures)
	}
}
