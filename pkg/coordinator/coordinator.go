// Package coordinator wires the queue, the version engine and the
// supporting-object engine behind the operations the HTTP layer exposes.
//
// Every operation runs its whole critical section inside a single store
// transaction: on any error no partial state is observable, and blob writes
// that already happened are tolerated as orphan garbage because their keys
// are content-addressed.
package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/mirabel-dev/folio/internal/logger"
	"github.com/mirabel-dev/folio/pkg/archive"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
	"github.com/mirabel-dev/folio/pkg/metrics"
	"github.com/mirabel-dev/folio/pkg/store/blob"
)

const (
	// LeaseWindow is how long a dispatch blocks re-leasing of its job.
	// Leases expire by time alone; a crashed worker needs no coordination
	// to let its job be retried.
	LeaseWindow = 4 * time.Minute

	// MaxDispatchAttempts caps total dispatches per job. The cap counts
	// dispatches rather than reported failures, so a silent worker also
	// consumes budget.
	MaxDispatchAttempts = 3

	// HeartbeatInterval is the cadence of the maintenance sweep.
	HeartbeatInterval = 2 * time.Minute
)

// Coordinator owns the shared engines and the transactional store.
// All dependencies are injected at startup and shared by every request.
type Coordinator struct {
	store  *store.GORMStore
	blobs  blob.Store
	engine *archive.Engine
}

// New creates a coordinator over the given store and blob backend.
func New(st *store.GORMStore, blobs blob.Store) *Coordinator {
	return &Coordinator{
		store:  st,
		blobs:  blobs,
		engine: archive.NewEngine(blobs),
	}
}

// Store exposes the relational store, mainly for tests.
func (c *Coordinator) Store() *store.GORMStore {
	return c.store
}

// newReportCode draws a uniformly random 16-bit capability token.
func newReportCode() (int16, error) {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(buf[:])), nil
}

// RunHeartbeat periodically fails jobs whose dispatch budget is exhausted.
// Blocks until ctx is cancelled.
func (c *Coordinator) RunHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			failed, err := c.store.FailExhaustedJobs(ctx, MaxDispatchAttempts)
			if err != nil {
				logger.Error("heartbeat sweep failed", "error", err)
				continue
			}
			if failed > 0 {
				metrics.JobsExhausted.Add(float64(failed))
				logger.Info("heartbeat failed exhausted jobs", "count", failed)
			}
		}
	}
}
