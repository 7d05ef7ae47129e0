package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/report-export/internal/artifact"
	"github.com/cuongbtq/report-export/internal/domain"
	"github.com/cuongbtq/report-export/internal/render"
	"github.com/cuongbtq/report-export/internal/report"
	"github.com/cuongbtq/report-export/internal/report/category"
	"github.com/cuongbtq/report-export/shared/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/goleak"
)

type fakeBroker struct {
	deliveries chan amqp.Delivery
	consumeErr error
	closeOnce  sync.Once

	mu       sync.Mutex
	canceled bool
	autoAck  bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{deliveries: make(chan amqp.Delivery, 16)}
}

func (b *fakeBroker) Consume(_ string, _ int, autoAck bool) (<-chan amqp.Delivery, error) {
	if b.consumeErr != nil {
		return nil, b.consumeErr
	}
	b.mu.Lock()
	b.autoAck = autoAck
	b.mu.Unlock()
	return b.deliveries, nil
}

func (b *fakeBroker) CancelConsumer(string) error {
	b.mu.Lock()
	b.canceled = true
	b.mu.Unlock()
	b.close()
	return nil
}

func (b *fakeBroker) close() {
	b.closeOnce.Do(func() { close(b.deliveries) })
}

func (b *fakeBroker) wasCanceled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canceled
}

// fakeAcknowledger records the ack action taken per delivery tag
type fakeAcknowledger struct {
	mu      sync.Mutex
	actions map[uint64]string
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{actions: make(map[uint64]string)}
}

func (a *fakeAcknowledger) record(tag uint64, action string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions[tag] = action
	return nil
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	return a.record(tag, "ack")
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	if requeue {
		return a.record(tag, "requeue")
	}
	return a.record(tag, "reject")
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.actions)
}

func (a *fakeAcknowledger) action(tag uint64) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.actions[tag]
}

type fakeStatusRecorder struct {
	mu       sync.Mutex
	statuses []domain.JobStatus
}

func (r *fakeStatusRecorder) SetJobStatus(_ context.Context, status *domain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, *status)
	return nil
}

func (r *fakeStatusRecorder) list() []domain.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.JobStatus(nil), r.statuses...)
}

func ptr(v int64) *int64 { return &v }

func testCategories() []category.Category {
	return []category.Category{
		{ID: 1, CategoryCode: "C001", Name: "Footwear"},
		{ID: 2, CategoryCode: "C002", Name: "running shoe", ParentCategoryID: ptr(1)},
		{ID: 3, CategoryCode: "C003", Name: "trail shoe", ParentCategoryID: ptr(1)},
		{ID: 4, CategoryCode: "C004", Name: "shoe care", ParentCategoryID: ptr(99)},
		{ID: 5, CategoryCode: "C005", Name: "Bags"},
		{ID: 6, CategoryCode: "C006", Name: "spiked shoe", ParentCategoryID: ptr(2)},
	}
}

type failingSource struct{}

func (failingSource) FetchCategories(context.Context, map[string]string) ([]category.Row, error) {
	return nil, errors.New("connection refused")
}

type testEnv struct {
	worker *Worker
	broker *fakeBroker
	acks   *fakeAcknowledger
	status *fakeStatusRecorder
	store  *artifact.Store
}

func newTestEnv(t *testing.T, autoAck bool, families ...report.Family) *testEnv {
	t.Helper()

	if len(families) == 0 {
		families = []report.Family{category.NewFamily(category.NewMemorySource(testCategories()))}
	}
	registry, err := report.NewRegistry(families...)
	require.NoError(t, err)

	env := &testEnv{
		broker: newFakeBroker(),
		acks:   newFakeAcknowledger(),
		status: &fakeStatusRecorder{},
		store:  artifact.NewStore(filepath.Join(t.TempDir(), "exports"), logger.Discard()),
	}
	env.worker = NewWorker(&Config{
		Logger:      logger.Discard(),
		Broker:      env.broker,
		Registry:    registry,
		Artifacts:   env.store,
		Status:      env.status,
		WorkerID:    "worker-test",
		Concurrency: 2,
		AutoAck:     autoAck,
		JobTimeout:  5 * time.Second,
	})
	return env
}

func (e *testEnv) delivery(tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: e.acks, DeliveryTag: tag, Body: []byte(body)}
}

func (e *testEnv) start(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.worker.Start(ctx)
	}()
	return errCh
}

func TestWorker_ProcessesMessages(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	env := newTestEnv(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := env.start(ctx)

	env.broker.deliveries <- env.delivery(1, `{not json`)
	env.broker.deliveries <- env.delivery(2, `{
		"job_id": "job-1",
		"export_type": "category",
		"requested_at": "2026-10-17T09:30:00Z",
		"filters": {"name": "shoe"},
		"columns": ["Name", "CategoryCode"],
		"sort": {"key": "Name", "direction": "desc"}
	}`)
	env.broker.deliveries <- env.delivery(3, `{"export_type": "invoice"}`)
	env.broker.deliveries <- env.delivery(4, `{"export_type": "  "}`)

	require.Eventually(t, func() bool { return env.acks.count() == 4 }, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "reject", env.acks.action(1))
	assert.Equal(t, "ack", env.acks.action(2))
	assert.Equal(t, "ack", env.acks.action(3))
	assert.Equal(t, "reject", env.acks.action(4))

	infos, err := env.store.List(nil, 10)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Regexp(t, `^category-\d{14}\.xlsx$`, infos[0].Name)

	f, err := excelize.OpenFile(filepath.Join(env.store.Dir(), infos[0].Name))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(render.DefaultSheetName)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Name", "CategoryCode"},
		{"trail shoe", "C003"},
		{"spiked shoe", "C006"},
		{"shoe care", "C004"},
		{"running shoe", "C002"},
	}, rows)

	statuses := env.status.list()
	require.Len(t, statuses, 2)
	assert.Equal(t, domain.JobStatusRunning, statuses[0].Status)
	assert.Equal(t, domain.JobStatusCompleted, statuses[1].Status)
	assert.Equal(t, infos[0].Name, statuses[1].Artifact)

	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, StateStopped, env.worker.State())
	assert.True(t, env.broker.wasCanceled())
	assert.NoError(t, env.worker.Stop(context.Background()))
}

func TestWorker_CSVFormat(t *testing.T) {
	env := newTestEnv(t, false)

	action := env.worker.processDelivery(context.Background(), env.delivery(1, `{"export_type":"category","format":"csv","columns":["CategoryCode"]}`))
	assert.Equal(t, ackAck, action)

	infos, err := env.store.List(nil, 10)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Regexp(t, `^category-\d{14}\.csv$`, infos[0].Name)
}

func TestWorker_RetryableFailure(t *testing.T) {
	tests := []struct {
		name        string
		redelivered bool
		wantAction  ackAction
		wantStatus  string
	}{
		{name: "first delivery is requeued", redelivered: false, wantAction: ackRequeue, wantStatus: domain.JobStatusPending},
		{name: "redelivery is rejected", redelivered: true, wantAction: ackReject, wantStatus: domain.JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false, category.NewFamily(failingSource{}))

			d := env.delivery(1, `{"job_id":"job-2","export_type":"category"}`)
			d.Redelivered = tt.redelivered

			assert.Equal(t, tt.wantAction, env.worker.processDelivery(context.Background(), d))

			statuses := env.status.list()
			require.Len(t, statuses, 2)
			assert.Equal(t, tt.wantStatus, statuses[1].Status)
			assert.Contains(t, statuses[1].Error, "connection refused")

			infos, err := env.store.List(nil, 10)
			require.NoError(t, err)
			assert.Empty(t, infos)
		})
	}
}

func TestWorker_Decide(t *testing.T) {
	retryable := &domain.ProcessingError{Stage: "fetch", ExportType: "category", Err: domain.NewRetryableError(errors.New("timeout"))}
	permanent := &domain.ProcessingError{Stage: "persist", ExportType: "category", Err: errors.New("disk full")}

	tests := []struct {
		name        string
		autoAck     bool
		err         error
		redelivered bool
		want        ackAction
	}{
		{name: "auto ack never acknowledges", autoAck: true, err: permanent, want: ackNone},
		{name: "success", err: nil, want: ackAck},
		{name: "retryable", err: retryable, want: ackRequeue},
		{name: "retryable redelivered", err: retryable, redelivered: true, want: ackReject},
		{name: "deadline exceeded", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded), want: ackRequeue},
		{name: "permanent", err: permanent, want: ackReject},
		{name: "decode error", err: &domain.DecodeError{Err: errors.New("bad")}, want: ackReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Worker{autoAck: tt.autoAck}
			assert.Equal(t, tt.want, w.decide(tt.err, tt.redelivered))
		})
	}
}

func TestWorker_AutoAck(t *testing.T) {
	env := newTestEnv(t, true)

	assert.Equal(t, ackNone, env.worker.processDelivery(context.Background(), env.delivery(1, `{"export_type":"category"}`)))
	assert.Equal(t, ackNone, env.worker.processDelivery(context.Background(), env.delivery(2, `nope`)))
	assert.Equal(t, 0, env.acks.count())
}

func TestWorker_ConsumeFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.broker.consumeErr = errors.New("channel/connection is not open")

	err := env.worker.Start(context.Background())

	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.Equal(t, StateStopped, env.worker.State())
}

func TestWorker_BrokerClosesDeliveries(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	env := newTestEnv(t, false)
	errCh := env.start(context.Background())

	require.Eventually(t, func() bool { return env.worker.State() == StateListening }, 5*time.Second, 10*time.Millisecond)
	env.broker.close()

	err := <-errCh
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.Equal(t, StateStopped, env.worker.State())
}

// blockingFamily holds Build until released
type blockingFamily struct {
	started chan struct{}
	release chan struct{}
}

func (f *blockingFamily) Kind() string { return "slow" }

func (f *blockingFamily) Build(ctx context.Context, _ report.Request) (*report.Table, error) {
	close(f.started)
	select {
	case <-f.release:
		return &report.Table{Kind: "slow", Columns: []string{"A"}, Rows: [][]any{{1}}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestWorker_ShutdownDrainsInFlight(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	family := &blockingFamily{started: make(chan struct{}), release: make(chan struct{})}
	env := newTestEnv(t, false, family)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := env.start(ctx)

	env.broker.deliveries <- env.delivery(7, `{"export_type":"slow"}`)
	<-family.started

	cancel()
	require.Eventually(t, func() bool { return env.worker.State() == StateStopping }, 5*time.Second, 10*time.Millisecond)

	// not done while the handler is blocked
	graceCtx, graceCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer graceCancel()
	assert.ErrorIs(t, env.worker.Stop(graceCtx), context.DeadlineExceeded)

	close(family.release)

	require.NoError(t, <-errCh)
	assert.Equal(t, "ack", env.acks.action(7))
	assert.Equal(t, StateStopped, env.worker.State())
	assert.NoError(t, env.worker.Stop(context.Background()))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "listening", StateListening.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())
}
