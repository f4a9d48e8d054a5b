package archive

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"lineagecore/internal/blob"
	"lineagecore/pkg/domain"
)

// Viewer is the read side of a persistent store; domain.PersistentStore
// satisfies it.
type Viewer interface {
	View(ctx context.Context, fn func(domain.TransactionView) error) error
}

// Exporter writes run bundles to blob storage.
type Exporter struct {
	store Viewer
	blobs blob.Store
	now   func() time.Time
}

// NewExporter returns an exporter reading from store and writing to blobs.
func NewExporter(store Viewer, blobs blob.Store) *Exporter {
	return &Exporter{store: store, blobs: blobs, now: func() time.Time { return time.Now().UTC() }}
}

// ExportRun stores the run under Key(runID). Blobs are immutable, so
// exporting a run twice fails with blob.ErrExists.
func (e *Exporter) ExportRun(ctx context.Context, runID string) (blob.Info, error) {
	var bundle Bundle
	err := e.store.View(ctx, func(view domain.TransactionView) error {
		var err error
		bundle, err = BuildBundle(view, runID, e.now())
		return err
	})
	if err != nil {
		return blob.Info{}, err
	}
	payload, err := bundle.Encode()
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode run %s: %w", runID, err)
	}
	info, err := e.blobs.Put(ctx, Key(runID), bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata:    bundle.metadata(),
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("store run %s: %w", runID, err)
	}
	return info, nil
}

// ExportStatus describes the lifecycle stage of a queued export.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportRecord tracks a queued export.
type ExportRecord struct {
	ID          string       `json:"id"`
	RunID       string       `json:"run_id"`
	Status      ExportStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	Blob        *blob.Info   `json:"blob,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

func (r ExportRecord) done() bool {
	return r.Status == ExportStatusSucceeded || r.Status == ExportStatusFailed
}

func (r *ExportRecord) copy() ExportRecord {
	out := *r
	if r.Blob != nil {
		info := *r.Blob
		out.Blob = &info
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Logger is the subset of a structured logger the worker reports to.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

const queueSize = 32

// Worker exports runs in the background.
type Worker struct {
	exporter *Exporter
	logger   Logger

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord
	// changed is closed and replaced whenever a record reaches a final state.
	changed chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a worker around exporter. logger may be nil.
func NewWorker(exporter *Exporter, logger Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		exporter: exporter,
		logger:   logger,
		queue:    make(chan string, queueSize),
		jobs:     make(map[string]*ExportRecord),
		changed:  make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing queued exports.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the current export.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// EnqueueExport schedules an export of runID and returns the queued record.
func (w *Worker) EnqueueExport(_ context.Context, runID string) (ExportRecord, error) {
	if runID == "" {
		return ExportRecord{}, fmt.Errorf("run id required")
	}
	now := time.Now().UTC()
	record := &ExportRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		RunID:     runID,
		Status:    ExportStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	w.mu.Lock()
	w.jobs[record.ID] = record
	snapshot := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- record.ID:
	default:
		w.mu.Lock()
		delete(w.jobs, record.ID)
		w.mu.Unlock()
		return ExportRecord{}, fmt.Errorf("export queue full")
	}
	return snapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

// Wait blocks until the export reaches a final state or ctx ends.
func (w *Worker) Wait(ctx context.Context, id string) (ExportRecord, error) {
	for {
		w.mu.RLock()
		record, ok := w.jobs[id]
		var snapshot ExportRecord
		if ok {
			snapshot = record.copy()
		}
		changed := w.changed
		w.mu.RUnlock()
		if !ok {
			return ExportRecord{}, fmt.Errorf("export %s not found", id)
		}
		if snapshot.done() {
			return snapshot, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snapshot, ctx.Err()
		}
	}
}

func (w *Worker) process(id string) {
	w.mu.Lock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	record.Status = ExportStatusRunning
	record.UpdatedAt = time.Now().UTC()
	runID := record.RunID
	w.mu.Unlock()

	info, err := w.exporter.ExportRun(w.ctx, runID)
	if w.logger != nil {
		if err != nil {
			w.logger.Error("run export failed", "export_id", id, "run_id", runID, "error", err)
		} else {
			w.logger.Info("run exported", "export_id", id, "run_id", runID, "key", info.Key, "size", info.Size)
		}
	}

	now := time.Now().UTC()
	w.mu.Lock()
	defer w.mu.Unlock()
	record.UpdatedAt = now
	record.CompletedAt = &now
	if err != nil {
		record.Status = ExportStatusFailed
		record.Error = err.Error()
	} else {
		record.Status = ExportStatusSucceeded
		record.Blob = &info
	}
	close(w.changed)
	w.changed = make(chan struct{})
}
