// Package upload implements the remote upload worker of spec §4.G: a
// cooperative single-threaded loop that drains not-yet-uploaded reads
// to a single configured remote API in fixed-size batches.
package upload

import (
	"context"
	"sync"
	"time"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/pkg/log"
)

// BatchSize is B from spec §4.G step 3.
const BatchSize = 25

// DefaultPause is AUTO_UPLOAD_PAUSE's default (spec §4.G).
const DefaultPause = 5 * time.Second

// Status is the worker's lifecycle state (spec §4.G "Stopped → Running
// → Stopping → Stopped").
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// Store is the slice of the data-access port the worker needs.
type Store interface {
	RemoteAPIs() ([]model.RemoteAPI, error)
	NotUploadedReads() ([]model.Read, error)
	MarkUploaded(reads []model.Read) error
	ResetUploadState() error
}

// Remote sends one batch of reads to a configured API. A nil error
// means the remote responded 2xx; any error (including a non-2xx
// status the implementation maps to one) leaves the batch's upload
// state untouched for retry on the next tick.
type Remote interface {
	UploadReads(ctx context.Context, api model.RemoteAPI, reads []model.Read) error
}

// StatusBroadcaster is told of every lifecycle transition.
type StatusBroadcaster interface {
	BroadcastUploaderStatus(status Status)
}

// Worker runs the upload loop. The zero value is not usable;
// construct with New.
type Worker struct {
	store  Store
	remote Remote
	bus    StatusBroadcaster
	pause  time.Duration

	mu      sync.Mutex
	status  Status
	stop    chan struct{}
	stopped chan struct{}
}

func New(store Store, remote Remote, bus StatusBroadcaster) *Worker {
	return &Worker{
		store:  store,
		remote: remote,
		bus:    bus,
		pause:  DefaultPause,
		status: StatusStopped,
	}
}

// SetPause overrides AUTO_UPLOAD_PAUSE; callers read this from
// settings before starting the worker.
func (w *Worker) SetPause(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pause = d
}

// Status returns the worker's current lifecycle state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Run starts the work loop and blocks until it exits, either because
// Stop was called or ctx was cancelled. Calling Run while already
// running is a no-op (spec mirrors the original's "already running,
// exit" guard).
func (w *Worker) Run(ctx context.Context) {
	w.mu.Lock()
	if w.status == StatusRunning {
		w.mu.Unlock()
		return
	}
	w.status = StatusRunning
	w.stop = make(chan struct{})
	w.stopped = make(chan struct{})
	stop := w.stop
	stopped := w.stopped
	w.mu.Unlock()

	w.broadcast(StatusRunning)
	log.Infof("upload worker started")
	defer close(stopped)

	for {
		if w.isStopping(stop) {
			break
		}
		select {
		case <-ctx.Done():
			w.setStatus(StatusStopped)
			return
		default:
		}

		if !w.tick(ctx, stop) {
			break
		}

		select {
		case <-ctx.Done():
			w.setStatus(StatusStopped)
			return
		case <-stop:
			goto done
		case <-time.After(w.currentPause()):
		}
	}
done:
	w.setStatus(StatusStopped)
	w.broadcast(StatusStopped)
	log.Infof("upload worker stopped")
}

// Stop requests the worker exit after finishing any in-flight batch.
// It blocks until Run has returned. Calling Stop when not running is
// a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.status != StatusRunning {
		w.mu.Unlock()
		return
	}
	w.status = StatusStopping
	stop := w.stop
	stopped := w.stopped
	w.mu.Unlock()

	w.broadcast(StatusStopping)
	close(stop)
	<-stopped
}

// tick resolves the configured remote API, fetches not-yet-uploaded
// reads, and uploads them in BatchSize chunks. It returns false when
// there is no remote API configured, matching the original's "no
// remote API set up, break" exit (spec §9 "Uploader single-instance").
func (w *Worker) tick(ctx context.Context, stop <-chan struct{}) bool {
	apis, err := w.store.RemoteAPIs()
	if err != nil {
		log.Errorf("upload worker: listing remote apis: %v", err)
		return true
	}
	api, ok := firstRemote(apis)
	if !ok {
		log.Infof("upload worker: no remote api configured, stopping")
		return false
	}

	reads, err := w.store.NotUploadedReads()
	if err != nil {
		log.Errorf("upload worker: listing not-uploaded reads: %v", err)
		return true
	}

	errCount := 0
	for _, batch := range chunk(reads, BatchSize) {
		select {
		case <-stop:
			return true
		case <-ctx.Done():
			return true
		default:
		}
		if err := w.remote.UploadReads(ctx, api, batch); err != nil {
			log.Warnf("upload worker: batch of %d reads failed: %v", len(batch), err)
			errCount++
			continue
		}
		if err := w.store.MarkUploaded(batch); err != nil {
			log.Errorf("upload worker: marking %d reads uploaded: %v", len(batch), err)
		}
	}
	if errCount > 0 {
		log.Warnf("upload worker: %d batch(es) failed this tick", errCount)
	}
	return true
}

func firstRemote(apis []model.RemoteAPI) (model.RemoteAPI, bool) {
	for _, api := range apis {
		if api.Kind == model.RemoteKindChronokeep || api.Kind == model.RemoteKindChronokeepSelf {
			return api, true
		}
	}
	return model.RemoteAPI{}, false
}

func chunk(reads []model.Read, size int) [][]model.Read {
	if len(reads) == 0 {
		return nil
	}
	var batches [][]model.Read
	for start := 0; start < len(reads); start += size {
		end := start + size
		if end > len(reads) {
			end = len(reads)
		}
		batches = append(batches, reads[start:end])
	}
	return batches
}

func (w *Worker) isStopping(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func (w *Worker) currentPause() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pause
}

func (w *Worker) setStatus(s Status) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

func (w *Worker) broadcast(s Status) {
	if w.bus != nil {
		w.bus.BroadcastUploaderStatus(s)
	}
}
