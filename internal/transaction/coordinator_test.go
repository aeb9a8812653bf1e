package transaction

import (
	"sync"
	"testing"
	"time"

	"proxpay/internal/domain"
	"proxpay/internal/registry"
	"proxpay/internal/store"
	pkgerrors "proxpay/pkg/errors"
	"proxpay/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type fakeChannel struct {
	mu     sync.Mutex
	id     string
	events []string
	rooms  []string
}

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) Send(event string, payload interface{}) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeChannel) Join(room string) {
	f.mu.Lock()
	f.rooms = append(f.rooms, room)
	f.mu.Unlock()
}

func (f *fakeChannel) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

type fakeSessions struct {
	channels map[string]registry.Channel
}

func (f *fakeSessions) Lookup(cardToken string) (registry.Channel, error) {
	ch, ok := f.channels[cardToken]
	if !ok {
		return nil, pkgerrors.ErrDeviceNotConnected
	}
	return ch, nil
}

type published struct {
	room  string
	event string
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []published
}

func (f *fakeBroadcaster) Publish(room, event string, payload interface{}) {
	f.mu.Lock()
	f.events = append(f.events, published{room: room, event: event})
	f.mu.Unlock()
}

func (f *fakeBroadcaster) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.event == event {
			n++
		}
	}
	return n
}

type fakeVerifier struct {
	result domain.ValidationResult
}

func (f *fakeVerifier) Verify(p *domain.LocationProof, pos domain.Location, amount decimal.Decimal) domain.ValidationResult {
	return f.result
}

// --- Helpers ---

const testToken = "4532-1234-5678-9012"

type fixture struct {
	coordinator *Coordinator
	sessions    *fakeSessions
	channel     *fakeChannel
	broadcast   *fakeBroadcaster
	verifier    *fakeVerifier
	pending     *store.PendingStore
	history     *store.HistoryStore
}

func newFixture(t *testing.T, confirmationTimeout time.Duration) *fixture {
	t.Helper()

	ch := &fakeChannel{id: "sess-1"}
	sessions := &fakeSessions{channels: map[string]registry.Channel{testToken: ch}}
	broadcast := &fakeBroadcaster{}
	verifier := &fakeVerifier{}
	pending := store.NewPendingStore()
	history := store.NewHistoryStore()

	c := NewCoordinator(sessions, verifier, pending, history, broadcast, confirmationTimeout, logger.NewNop())

	return &fixture{
		coordinator: c,
		sessions:    sessions,
		channel:     ch,
		broadcast:   broadcast,
		verifier:    verifier,
		pending:     pending,
		history:     history,
	}
}

func proofRequest(id string) *ProofRequest {
	return &ProofRequest{
		CardToken:        testToken,
		TransactionID:    id,
		TransactionNonce: "nonce123",
		POSLocation:      domain.Location{Lat: 42.3770, Lon: -71.1167},
		Amount:           decimal.NewFromInt(50),
		MerchantName:     "Coffee Shop",
	}
}

// --- Tests ---

func TestRequestProof_PushesToDevice(t *testing.T) {
	f := newFixture(t, time.Second)

	require.NoError(t, f.coordinator.RequestProof(proofRequest("tx_1")))

	assert.Equal(t, []string{"location_proof_request"}, f.channel.sent())
	_, err := f.pending.Get("tx_1")
	assert.NoError(t, err)
}

func TestRequestProof_DeviceNotConnected(t *testing.T) {
	f := newFixture(t, time.Second)

	req := proofRequest("tx_1")
	req.CardToken = "5412-0000-0000-0000"

	err := f.coordinator.RequestProof(req)
	assert.ErrorIs(t, err, pkgerrors.ErrDeviceNotConnected)
	assert.Equal(t, 0, f.pending.Len())
}

func TestSubmitProof_UnknownTransaction(t *testing.T) {
	f := newFixture(t, time.Second)

	err := f.coordinator.SubmitProof("missing", &domain.LocationProof{})
	assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
}

func TestSubmitProof_AcceptFinalizesAndNotifies(t *testing.T) {
	f := newFixture(t, time.Second)
	require.NoError(t, f.coordinator.RequestProof(proofRequest("tx_1")))

	f.verifier.result = domain.ValidationResult{
		Success:        true,
		Decision:       domain.DecisionAccept,
		Reason:         "Co-located low-value transaction",
		DistanceMeters: 1.5,
	}

	require.NoError(t, f.coordinator.SubmitProof("tx_1", &domain.LocationProof{}))

	assert.Equal(t, 1, f.broadcast.count("transaction_result"))
	assert.Equal(t, 1, f.broadcast.count("transaction_completed"))

	list := f.history.ListByCard(testToken, 10)
	require.Len(t, list, 1)
	assert.Equal(t, domain.DecisionAccept, list[0].Result.Decision)
	assert.Equal(t, 0, f.pending.Len())
}

func TestSubmitProof_ConfirmRequiredEscalates(t *testing.T) {
	f := newFixture(t, time.Minute)
	require.NoError(t, f.coordinator.RequestProof(proofRequest("tx_1")))

	f.verifier.result = domain.ValidationResult{
		Success:        true,
		Decision:       domain.DecisionConfirmRequired,
		Reason:         "Location mismatch - confirmation required",
		DistanceMeters: 300,
	}

	require.NoError(t, f.coordinator.SubmitProof("tx_1", &domain.LocationProof{}))

	assert.Equal(t, 1, f.broadcast.count("confirmation_request"))
	assert.Equal(t, 0, f.broadcast.count("transaction_result"))
	assert.Equal(t, 1, f.coordinator.escalator.Pending())

	tx, err := f.pending.Get("tx_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingConfirmation, tx.Status)
}

func TestSubmitConfirmation_ConfirmPreservesDistance(t *testing.T) {
	f := newFixture(t, time.Minute)
	require.NoError(t, f.coordinator.RequestProof(proofRequest("tx_1")))
	f.verifier.result = domain.ValidationResult{
		Success:        true,
		Decision:       domain.DecisionConfirmRequired,
		Reason:         "Location mismatch - confirmation required",
		DistanceMeters: 300,
	}
	require.NoError(t, f.coordinator.SubmitProof("tx_1", &domain.LocationProof{}))

	require.NoError(t, f.coordinator.SubmitConfirmation("tx_1", true))

	list := f.history.ListByCard(testToken, 10)
	require.Len(t, list, 1)
	assert.Equal(t, domain.DecisionAccept, list[0].Result.Decision)
	assert.Equal(t, "User confirmed transaction", list[0].Result.Reason)
	assert.Equal(t, 300.0, list[0].Result.DistanceMeters)
	assert.Equal(t, 0, f.coordinator.escalator.Pending())
}

func TestSubmitConfirmation_DenyRecordsDenial(t *testing.T) {
	f := newFixture(t, time.Minute)
	require.NoError(t, f.coordinator.RequestProof(proofRequest("tx_1")))
	f.verifier.result = domain.ValidationResult{
		Success:        true,
		Decision:       domain.DecisionConfirmRequired,
		DistanceMeters: 42,
	}
	require.NoError(t, f.coordinator.SubmitProof("tx_1", &domain.LocationProof{}))

	require.NoError(t, f.coordinator.SubmitConfirmation("tx_1", false))

	list := f.history.ListByCard(testToken, 10)
	require.Len(t, list, 1)
	assert.Equal(t, domain.DecisionDeny, list[0].Result.Decision)
	assert.Equal(t, "User denied transaction", list[0].Result.Reason)
}

func TestSubmitConfirmation_NotEscalated(t *testing.T) {
	f := newFixture(t, time.Minute)
	require.NoError(t, f.coordinator.RequestProof(proofRequest("tx_1")))

	err := f.coordinator.SubmitConfirmation("tx_1", true)
	assert.ErrorIs(t, err, pkgerrors.ErrNotAwaitingConfirmation)
}

func TestSubmitConfirmation_IdempotenceAfterCompletion(t *testing.T) {
	f := newFixture(t, time.Minute)
	require.NoError(t, f.coordinator.RequestProof(proofRequest("tx_1")))
	f.verifier.result = domain.ValidationResult{
		Success:        true,
		Decision:       domain.DecisionConfirmRequired,
		DistanceMeters: 42,
	}
	require.NoError(t, f.coordinator.SubmitProof("tx_1", &domain.LocationProof{}))
	require.NoError(t, f.coordinator.SubmitConfirmation("tx_1", true))

	// Re-submitting an identical confirmation must not change the stored
	// result or double-notify.
	err := f.coordinator.SubmitConfirmation("tx_1", true)
	assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)

	list := f.history.ListByCard(testToken, 10)
	require.Len(t, list, 1)
	assert.Equal(t, domain.DecisionAccept, list[0].Result.Decision)
	assert.Equal(t, 1, f.broadcast.count("transaction_result"))
}

func TestConfirmationTimeout_AutoDenies(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	require.NoError(t, f.coordinator.RequestProof(proofRequest("tx_1")))
	f.verifier.result = domain.ValidationResult{
		Success:        true,
		Decision:       domain.DecisionConfirmRequired,
		DistanceMeters: 123,
	}
	require.NoError(t, f.coordinator.SubmitProof("tx_1", &domain.LocationProof{}))

	assert.Eventually(t, func() bool {
		return len(f.history.ListByCard(testToken, 10)) == 1
	}, time.Second, 5*time.Millisecond)

	list := f.history.ListByCard(testToken, 10)
	assert.Equal(t, domain.DecisionDeny, list[0].Result.Decision)
	assert.Equal(t, "Confirmation timeout - user did not respond", list[0].Result.Reason)
	assert.Equal(t, 123.0, list[0].Result.DistanceMeters)

	// A confirmation arriving after the auto-deny is rejected.
	err := f.coordinator.SubmitConfirmation("tx_1", true)
	assert.Error(t, err)
}

func TestConfirmationTimeoutRace_ExactlyOneTerminal(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	require.NoError(t, f.coordinator.RequestProof(proofRequest("tx_1")))
	f.verifier.result = domain.ValidationResult{
		Success:        true,
		Decision:       domain.DecisionConfirmRequired,
		DistanceMeters: 42,
	}
	require.NoError(t, f.coordinator.SubmitProof("tx_1", &domain.LocationProof{}))

	// Race the explicit confirmation against the timer.
	time.Sleep(8 * time.Millisecond)
	_ = f.coordinator.SubmitConfirmation("tx_1", true)

	assert.Eventually(t, func() bool {
		return len(f.history.ListByCard(testToken, 10)) == 1
	}, time.Second, 5*time.Millisecond)

	// Whoever won, exactly one terminal result exists and exactly one
	// POS notification went out.
	list := f.history.ListByCard(testToken, 10)
	require.Len(t, list, 1)
	assert.Equal(t, 1, f.broadcast.count("transaction_result"))
}

func TestDuplicateTransactionID_Rejected(t *testing.T) {
	f := newFixture(t, time.Second)
	require.NoError(t, f.coordinator.RequestProof(proofRequest("tx_1")))

	err := f.coordinator.RequestProof(proofRequest("tx_1"))
	assert.Error(t, err)
}
