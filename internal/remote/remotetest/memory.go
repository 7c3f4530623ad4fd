// Package remotetest provides an in-memory remote.Store with failure injection for tests.
package remotetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/models"
)

// Memory is a remote.Store kept in process memory.
type Memory struct {
	mu   sync.Mutex
	ds   models.Dataset
	err    error
	failOn map[string]error
	ops    map[string]int
	down   bool
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{ds: models.EmptyDataset(), ops: make(map[string]int), failOn: make(map[string]error)}
}

// FailWith makes every following operation return err; nil clears it.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// FailOn makes every following call of op ("replace", "upsert", ...) return err, leaving
// the stored data unchanged; nil clears it.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOn, op)
		return
	}
	m.failOn[op] = err
}

// SetDown makes every operation fail with an unavailable error.
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// Calls returns how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops[op]
}

// Snapshot returns a copy of the stored dataset.
func (m *Memory) Snapshot() models.Dataset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.ds)
}

// Seed replaces the content without counting as an operation.
func (m *Memory) Seed(ds models.Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds.Normalize()
	m.ds = clone(ds)
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) begin(op string) error {
	m.ops[op]++
	if m.down {
		return apperr.New(apperr.KindUnavailable, op+" lost the connection", nil)
	}
	if err := m.failOn[op]; err != nil {
		return err
	}
	return m.err
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begin("ping")
}

func (m *Memory) FindAll(ctx context.Context, kind models.Kind, dst any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("find"); err != nil {
		return err
	}
	src := clone(m.ds)
	switch p := dst.(type) {
	case *[]models.Client:
		*p = src.Clients
	case *[]models.Quote:
		*p = src.Quotes
	case *[]models.Invoice:
		*p = src.Invoices
	default:
		return fmt.Errorf("unsupported destination %T for %s", dst, kind)
	}
	return nil
}

func (m *Memory) ReplaceAll(ctx context.Context, ds models.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("replace"); err != nil {
		return err
	}
	ds.Normalize()
	m.ds = clone(ds)
	return nil
}

func (m *Memory) UpsertOne(ctx context.Context, rec models.Record) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("upsert"); err != nil {
		return nil, err
	}
	m.ds.Upsert(rec)
	return rec, nil
}

func (m *Memory) InsertOne(ctx context.Context, rec models.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("insert"); err != nil {
		return false, err
	}
	if m.ds.Contains(rec.RecordKind(), rec.RecordID()) {
		return false, nil
	}
	m.ds.Upsert(rec)
	return true, nil
}

func (m *Memory) DeleteOne(ctx context.Context, kind models.Kind, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("delete"); err != nil {
		return false, err
	}
	return m.ds.Delete(kind, id), nil
}

func (m *Memory) CountAll(ctx context.Context, kind models.Kind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("count"); err != nil {
		return 0, err
	}
	return int64(len(m.ds.Records(kind))), nil
}

func (m *Memory) Close(ctx context.Context) error { return nil }

func clone(ds models.Dataset) models.Dataset {
	out := models.Dataset{
		Clients:  append([]models.Client{}, ds.Clients...),
		Quotes:   append([]models.Quote{}, ds.Quotes...),
		Invoices: append([]models.Invoice{}, ds.Invoices...),
	}
	return out
}
