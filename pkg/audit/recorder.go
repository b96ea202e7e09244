/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telekom/proxmox-multicluster/pkg/metrics"
)

// Recorder queues audit events and delivers them to its sinks in the
// background. Record never blocks the caller and never fails a request.
type Recorder struct {
	sink   *MultiSink
	queue  chan *Event
	logger *zap.Logger
	config RecorderConfig
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	queued    atomic.Int64
	dropped   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// QueueSize is the number of events buffered before new ones are dropped.
	// Default: 10000
	QueueSize int

	// WorkerCount is the number of delivery goroutines.
	// Default: 2
	WorkerCount int

	// WriteTimeout bounds one delivery to all sinks.
	// Default: 5s
	WriteTimeout time.Duration
}

// RecorderStats is a snapshot of the recorder counters.
type RecorderStats struct {
	Queued    int64
	Dropped   int64
	Delivered int64
	Failed    int64
}

// DefaultRecorderConfig returns the default recorder configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		QueueSize:    10000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// NewRecorder starts a recorder delivering to sinks.
func NewRecorder(cfg RecorderConfig, logger *zap.Logger, sinks ...Sink) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		sink:   NewMultiSink(sinks, logger.Named("audit")),
		queue:  make(chan *Event, cfg.QueueSize),
		logger: logger.Named("audit-recorder"),
		config: cfg,
		now:    time.Now,
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		r.wg.Add(1)
		go r.process(i)
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info("audit recorder started",
		zap.Int("queue_size", cfg.QueueSize),
		zap.Int("workers", cfg.WorkerCount),
		zap.Strings("sinks", names))

	return r
}

// complete fills the fields the caller may leave empty.
func (r *Recorder) complete(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now().UTC()
	}
	if event.Type == "" {
		event.Type = EventTypeForOperation(event.Operation)
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
		if event.Error != "" {
			event.Outcome = OutcomeFailure
		}
	}
	if event.Severity == "" {
		event.Severity = SeverityFor(event.Type, event.Outcome)
	}
}

// Record enqueues event. When the queue is full or the recorder is closed
// the event is dropped and counted.
func (r *Recorder) Record(event *Event) {
	if r == nil || event == nil {
		return
	}
	r.complete(event)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(event, "closed")
		return
	}

	select {
	case r.queue <- event:
		r.queued.Add(1)
	default:
		r.drop(event, "queue full")
	}
}

func (r *Recorder) drop(event *Event, reason string) {
	r.dropped.Add(1)
	metrics.AuditEventsDropped.Inc()
	r.logger.Warn("dropping audit event",
		zap.String("reason", reason),
		zap.String("event_id", event.ID),
		zap.String("operation", event.Operation))
}

// RecordSync delivers event immediately and returns the joined sink errors.
func (r *Recorder) RecordSync(ctx context.Context, event *Event) error {
	r.complete(event)
	return r.deliver(ctx, event)
}

func (r *Recorder) deliver(ctx context.Context, event *Event) error {
	if err := r.sink.Write(ctx, event); err != nil {
		r.failed.Add(1)
		return err
	}
	r.delivered.Add(1)
	return nil
}

func (r *Recorder) process(workerID int) {
	defer r.wg.Done()

	for event := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
		if err := r.deliver(ctx, event); err != nil {
			r.logger.Error("failed to deliver audit event",
				zap.Int("worker", workerID),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events, drains the queue and closes the sinks.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()

	r.logger.Info("audit recorder stopped",
		zap.Int64("delivered", r.delivered.Load()),
		zap.Int64("failed", r.failed.Load()),
		zap.Int64("dropped", r.dropped.Load()))

	return r.sink.Close()
}

// Stats returns current recorder statistics.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Queued:    r.queued.Load(),
		Dropped:   r.dropped.Load(),
		Delivered: r.delivered.Load(),
		Failed:    r.failed.Load(),
	}
}
