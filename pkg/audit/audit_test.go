package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/telekom/proxmox-multicluster/pkg/metrics"
)

// memorySink collects events in memory.
type memorySink struct {
	name   string
	mu     sync.Mutex
	events []*Event
	err    error
	block  chan struct{}
	closed bool
}

func (s *memorySink) Write(_ context.Context, event *Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) Name() string { return s.name }

func (s *memorySink) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...)
}

func TestEventTypeForOperation(t *testing.T) {
	tests := map[string]EventType{
		"CreateVM":     EventVMProvisioned,
		"CloneVM":      EventVMProvisioned,
		"DeleteVM":     EventVMDeleted,
		"ShutdownVM":   EventVMPower,
		"MigrateVM":    EventVMMigrated,
		"ResizeVMDisk": EventVMReconfigured,
		"CreateLXC":    EventLXCProvisioned,
		"DeleteLXC":    EventLXCDeleted,
		"StopLXC":      EventLXCPower,
		"ConfigureLXC": EventLXCReconfigured,
		"ClearCache":   EventClusterCacheCleared,
		"ListVMs":      EventOperation,
	}
	for op, want := range tests {
		assert.Equal(t, want, EventTypeForOperation(op), op)
	}
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityFor(EventVMDeleted, OutcomeSuccess))
	assert.Equal(t, SeverityCritical, SeverityFor(EventLXCDeleted, OutcomeFailure))
	assert.Equal(t, SeverityWarning, SeverityFor(EventVMPower, OutcomeFailure))
	assert.Equal(t, SeverityInfo, SeverityFor(EventVMPower, OutcomeSuccess))
}

func TestLogSinkWritesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Write(context.Background(), &Event{
		ID:        "evt-1",
		Type:      EventVMMigrated,
		Cluster:   "prod",
		Operation: "MigrateVM",
		Target:    Target{Kind: "qemu", Node: "pve1", VMID: 101},
		Outcome:   OutcomeSuccess,
		Details:   map[string]interface{}{"target": "pve2"},
	}))
	require.NoError(t, sink.Write(context.Background(), &Event{ID: "evt-2", Outcome: OutcomeFailure, Error: "VM locked"}))

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "prod", fields["cluster"])
	assert.EqualValues(t, 101, fields["target_vmid"])
	assert.Equal(t, `{"target":"pve2"}`, fields["details"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "VM locked", entries[1].ContextMap()["error"])
	assert.Equal(t, "log", sink.Name())
	assert.NoError(t, sink.Close())
}

func TestMultiSinkIsolatesFailures(t *testing.T) {
	good := &memorySink{name: "good-multi"}
	bad := &memorySink{name: "bad-multi", err: errors.New("broker down")}
	multi := NewMultiSink([]Sink{bad, good}, zaptest.NewLogger(t))

	err := multi.Write(context.Background(), &Event{ID: "e", Type: EventVMPower})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, good.Events(), 1)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuditSinkErrors.WithLabelValues("bad-multi")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuditEvents.WithLabelValues("good-multi", "vm.power")))

	require.NoError(t, multi.Close())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}

func TestRecorderFillsDefaultsAndDelivers(t *testing.T) {
	sink := &memorySink{name: "mem"}
	r := NewRecorder(RecorderConfig{QueueSize: 10, WorkerCount: 1}, zaptest.NewLogger(t), sink)
	fixed := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.Record(&Event{Operation: "DeleteVM", Cluster: "prod"})
	r.Record(&Event{Operation: "StartLXC", Cluster: "dev", Error: "CT 200 is locked"})
	require.NoError(t, r.Close())

	events := sink.Events()
	require.Len(t, events, 2)

	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, EventVMDeleted, events[0].Type)
	assert.Equal(t, OutcomeSuccess, events[0].Outcome)
	assert.Equal(t, SeverityCritical, events[0].Severity)

	assert.Equal(t, EventLXCPower, events[1].Type)
	assert.Equal(t, OutcomeFailure, events[1].Outcome)
	assert.Equal(t, SeverityWarning, events[1].Severity)

	assert.True(t, sink.closed)
	assert.Equal(t, RecorderStats{Queued: 2, Delivered: 2}, r.Stats())
}

func TestRecorderDropsWhenFull(t *testing.T) {
	sink := &memorySink{name: "slow", block: make(chan struct{})}
	r := NewRecorder(RecorderConfig{QueueSize: 1, WorkerCount: 1}, zaptest.NewLogger(t), sink)

	before := testutil.ToFloat64(metrics.AuditEventsDropped)

	// the worker picks up the first event and blocks; the second fills the queue
	r.Record(&Event{Operation: "StartVM"})
	require.Eventually(t, func() bool { return len(r.queue) == 0 }, time.Second, time.Millisecond)
	r.Record(&Event{Operation: "StartVM"})

	done := make(chan struct{})
	go func() {
		r.Record(&Event{Operation: "StartVM"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(sink.block)
	require.NoError(t, r.Close())

	assert.Equal(t, int64(1), r.Stats().Dropped)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AuditEventsDropped))
	assert.Len(t, sink.Events(), 2)
}

func TestRecorderAfterClose(t *testing.T) {
	sink := &memorySink{name: "mem"}
	r := NewRecorder(DefaultRecorderConfig(), zaptest.NewLogger(t), sink)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	r.Record(&Event{Operation: "StartVM"})
	assert.Equal(t, int64(1), r.Stats().Dropped)
	assert.Empty(t, sink.Events())

	var nilRecorder *Recorder
	assert.NotPanics(t, func() { nilRecorder.Record(&Event{}) })
}

func TestRecordSyncReturnsSinkErrors(t *testing.T) {
	sink := &memorySink{name: "sync-bad", err: errors.New("boom")}
	r := NewRecorder(DefaultRecorderConfig(), zaptest.NewLogger(t), sink)
	defer func() { _ = r.Close() }()

	err := r.RecordSync(context.Background(), &Event{Operation: "ClearCache"})
	require.Error(t, err)
	assert.Equal(t, int64(1), r.Stats().Failed)
}
