package application

import (
	"context"
	"crypto/rand"
	"sync"

	"github.com/neoxalle/nx/internal/domain"
	"github.com/neoxalle/nx/internal/ports"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const recorderQueueSize = 32

// Recorder hands finished sessions to the history store on its own
// goroutine so the session loop never waits on storage.
type Recorder struct {
	repo   ports.SessionRepository
	clock  ports.Clock
	logger *zap.Logger
	queue  chan domain.SessionRecord

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewRecorder(repo ports.SessionRepository, clock ports.Clock, logger *zap.Logger) *Recorder {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Recorder{
		repo:    repo,
		clock:   clock,
		logger:  logger,
		queue:   make(chan domain.SessionRecord, recorderQueueSize),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Record stamps the record with an id and, when missing, a timestamp, then
// queues it for storage. The stamped record is returned right away.
func (r *Recorder) Record(record domain.SessionRecord) domain.SessionRecord {
	if record.Timestamp.IsZero() {
		record.Timestamp = r.clock.Now()
	}
	if record.ID == "" {
		r.mu.Lock()
		record.ID = ulid.MustNew(ulid.Timestamp(record.Timestamp), r.entropy).String()
		r.mu.Unlock()
	}

	select {
	case r.queue <- record:
	default:
		r.logger.Error("history queue full, dropping session", zap.String("id", record.ID))
	}
	return record
}

// Run stores queued records until ctx is done, then flushes what is left.
// Writes are detached from ctx so a shutdown never loses a queued session.
func (r *Recorder) Run(ctx context.Context) error {
	storeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case record := <-r.queue:
			r.store(storeCtx, record)
		case <-ctx.Done():
			r.flush(storeCtx)
			return nil
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	for {
		select {
		case record := <-r.queue:
			r.store(ctx, record)
		default:
			return
		}
	}
}

func (r *Recorder) store(ctx context.Context, record domain.SessionRecord) {
	if err := r.repo.Append(ctx, record); err != nil {
		r.logger.Error("save session record", zap.String("id", record.ID), zap.Error(err))
		return
	}
	r.logger.Debug("session recorded", zap.String("id", record.ID), zap.String("mode", string(record.GameType)))
}
