package bus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/snaplink/hookrelay/app"
	"github.com/snaplink/hookrelay/db"
	"github.com/snaplink/hookrelay/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// fakeAcknowledger records Ack/Nack/Reject calls made against a Delivery so
// tests can assert on router behavior without a live bus connection.
type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []ackCall
	rejects []uint64
}

type ackCall struct {
	tag      uint64
	multiple bool
	requeue  bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, ackCall{tag, multiple, requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects = append(f.rejects, tag)
	return nil
}

func newDelivery(ack *fakeAcknowledger, body []byte, headers amqp.Table) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		Body:         body,
		Headers:      headers,
		DeliveryTag:  1,
	}
}

func newTestConsumer(mockDB *testutil.MockQuerier) *Consumer {
	a := testutil.NewTestApp(mockDB)
	return &Consumer{
		app:        a,
		tenants:    newTenantReverseCache(),
		maxRequeue: a.Config.MaxRequeueCount,
	}
}

func TestHandleDelivery_MalformedMessageIsAcked(t *testing.T) {
	mockDB := new(testutil.MockQuerier)
	c := newTestConsumer(mockDB)
	ack := &fakeAcknowledger{}
	d := newDelivery(ack, []byte(`not json`), nil)

	c.handleDelivery(context.Background(), d)

	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Empty(t, ack.nacked)
}

func TestHandleDelivery_UnmappedUpstreamTypeIsAcked(t *testing.T) {
	mockDB := new(testutil.MockQuerier)
	c := newTestConsumer(mockDB)
	ack := &fakeAcknowledger{}
	d := newDelivery(ack, []byte(`{"id":"evt_1","type":"not.a.real.upstream.type","data":{"teamId":"tenant-1"}}`), nil)

	c.handleDelivery(context.Background(), d)

	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Empty(t, ack.nacked)
}

func TestHandleDelivery_UnresolvableTenantIsAcked(t *testing.T) {
	mockDB := new(testutil.MockQuerier)
	c := newTestConsumer(mockDB)
	ack := &fakeAcknowledger{}
	// click.recorded with no teamId and no prior observed link for its linkId.
	d := newDelivery(ack, []byte(`{"id":"evt_1","type":"click.recorded","data":{"linkId":"link-unknown"}}`), nil)

	c.handleDelivery(context.Background(), d)

	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Empty(t, ack.nacked)
	mockDB.AssertNotCalled(t, "FindMatchingSubscriptions", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleDelivery_FindMatchesErrorDeadLettersAfterMaxRetries(t *testing.T) {
	mockDB := new(testutil.MockQuerier)
	c := newTestConsumer(mockDB)
	ack := &fakeAcknowledger{}
	d := newDelivery(ack, []byte(`{"id":"evt_1","type":"link.created","data":{"teamId":"tenant-1"}}`), amqp.Table{"x-retry-count": int32(5)})

	mockDB.On("FindMatchingSubscriptions", mock.Anything, "tenant-1", "link.created").
		Return([]db.Subscription(nil), assertingError{})

	c.handleDelivery(context.Background(), d)

	// retry count already at/above maxRequeue (3) so this dead-letters rather
	// than republishing, avoiding the need for a live channel to publish on.
	assert.Empty(t, ack.acked)
	assert.Equal(t, []ackCall{{1, false, false}}, ack.nacked)
}

func TestHandleDelivery_NoMatchingSubscriptionsIsAcked(t *testing.T) {
	mockDB := new(testutil.MockQuerier)
	c := newTestConsumer(mockDB)
	ack := &fakeAcknowledger{}
	d := newDelivery(ack, []byte(`{"id":"evt_1","type":"link.created","data":{"teamId":"tenant-1"}}`), nil)

	mockDB.On("FindMatchingSubscriptions", mock.Anything, "tenant-1", "link.created").
		Return([]db.Subscription{}, nil)

	c.handleDelivery(context.Background(), d)

	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Empty(t, ack.nacked)
}

func TestHandleDelivery_DispatchesToMatchingSubscriptionsAndAcks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	mockDB := new(testutil.MockQuerier)
	c := newTestConsumer(mockDB)
	ack := &fakeAcknowledger{}
	d := newDelivery(ack, []byte(`{"id":"evt_1","type":"link.created","timestamp":"2026-01-01T00:00:00Z","data":{"teamId":"tenant-1","linkId":"link-1"}}`), nil)

	sub := testutil.NewSubscription(func(s *db.Subscription) { s.TargetURL = server.URL })
	mockDB.On("FindMatchingSubscriptions", mock.Anything, "tenant-1", "link.created").
		Return([]db.Subscription{sub}, nil)
	mockDB.On("RecordDeliverySuccess", mock.Anything, sub.ID, mock.AnythingOfType("pgtype.Timestamptz")).
		Return(nil)

	c.handleDelivery(context.Background(), d)

	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Empty(t, ack.nacked)
	mockDB.AssertExpectations(t)
}

func TestHandleDelivery_FilteredOutSubscriptionIsNotDispatched(t *testing.T) {
	mockDB := new(testutil.MockQuerier)
	c := newTestConsumer(mockDB)
	ack := &fakeAcknowledger{}
	d := newDelivery(ack, []byte(`{"id":"evt_1","type":"link.created","timestamp":"2026-01-01T00:00:00Z","data":{"teamId":"tenant-1","linkId":"link-1"}}`), nil)

	sub := testutil.NewSubscription(testutil.WithFilter(app.Filter{LinkIDs: []string{"some-other-link"}}))
	mockDB.On("FindMatchingSubscriptions", mock.Anything, "tenant-1", "link.created").
		Return([]db.Subscription{sub}, nil)

	c.handleDelivery(context.Background(), d)

	assert.Equal(t, []uint64{1}, ack.acked)
	mockDB.AssertNotCalled(t, "RecordDeliverySuccess", mock.Anything, mock.Anything, mock.Anything)
	mockDB.AssertNotCalled(t, "RecordDeliveryFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequeueOrDeadLetter_ExhaustedRetriesDeadLetters(t *testing.T) {
	mockDB := new(testutil.MockQuerier)
	c := newTestConsumer(mockDB)
	ack := &fakeAcknowledger{}
	d := newDelivery(ack, []byte(`{}`), amqp.Table{"x-retry-count": int32(3)})

	c.requeueOrDeadLetter(d, assertingError{})

	assert.Empty(t, ack.acked)
	assert.Equal(t, []ackCall{{1, false, false}}, ack.nacked)
}

// assertingError is a minimal error used where only the requeue/dead-letter
// branch matters, not the error message.
type assertingError struct{}

func (assertingError) Error() string { return "simulated transient failure" }
