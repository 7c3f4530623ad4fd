package db

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/diewo77/garage-records/internal/models"
	"github.com/diewo77/garage-records/internal/remote"
)

// setupTestStore opens a store on a private in-memory SQLite database.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), remote.Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("failed to ping test database: %v", err)
	}
	return s
}

func sampleDataset() models.Dataset {
	ds := models.EmptyDataset()
	ds.Clients = []models.Client{
		{ID: 2, FirstName: "Grace", Vehicles: []models.Vehicle{{ID: 1, Brand: "Renault", Model: "Clio"}}},
		{ID: 1, FirstName: "Ada"},
	}
	ds.Quotes = []models.Quote{{Billable: models.Billable{ID: 5, ClientID: 2, Items: []models.LineItem{{ServiceID: 1, Quantity: 2, UnitPrice: 30}}}}}
	ds.Invoices = []models.Invoice{{Billable: models.Billable{ID: 9, ClientID: 1, Total: 120}, Status: models.InvoiceStatusPaid}}
	ds.Normalize()
	return ds
}

func loadAll(t *testing.T, s *Store) models.Dataset {
	t.Helper()
	ds := models.EmptyDataset()
	for _, kind := range models.Kinds {
		require.NoError(t, s.FindAll(context.Background(), kind, ds.Target(kind)))
	}
	ds.Normalize()
	return ds
}

func TestReplaceAllThenFindAll(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	want := sampleDataset()
	require.NoError(t, s.ReplaceAll(ctx, want))
	got := loadAll(t, s)
	assert.Equal(t, want, got, "insertion order is preserved")

	// A second replace drops what the first one wrote.
	next := models.EmptyDataset()
	next.Clients = []models.Client{{ID: 42, FirstName: "Linus"}}
	next.Normalize()
	require.NoError(t, s.ReplaceAll(ctx, next))
	got = loadAll(t, s)
	assert.Equal(t, next, got)

	n, err := s.CountAll(ctx, models.KindQuote)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplaceAllEmptyDataset(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceAll(ctx, sampleDataset()))
	require.NoError(t, s.ReplaceAll(ctx, models.EmptyDataset()))
	assert.Equal(t, models.EmptyDataset(), loadAll(t, s))
}

func TestUpsertOneIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceAll(ctx, sampleDataset()))

	c := &models.Client{ID: 3, FirstName: "Alan"}
	c.Normalize()
	_, err := s.UpsertOne(ctx, c)
	require.NoError(t, err)
	_, err = s.UpsertOne(ctx, c)
	require.NoError(t, err)

	got := loadAll(t, s)
	require.Len(t, got.Clients, 3)
	assert.Equal(t, int64(3), got.Clients[2].ID, "new records go last")

	c.FirstName = "Alan M."
	_, err = s.UpsertOne(ctx, c)
	require.NoError(t, err)
	got = loadAll(t, s)
	require.Len(t, got.Clients, 3)
	assert.Equal(t, "Alan M.", got.Clients[2].FirstName)
}

func TestInsertOneSkipsExisting(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceAll(ctx, sampleDataset()))

	inserted, err := s.InsertOne(ctx, &models.Client{ID: 1, FirstName: "Someone else"})
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = s.InsertOne(ctx, &models.Client{ID: 7, FirstName: "New"})
	require.NoError(t, err)
	assert.True(t, inserted)

	got := loadAll(t, s)
	assert.Equal(t, "Ada", got.Clients[1].FirstName, "existing record untouched")
	assert.Len(t, got.Clients, 3)
}

func TestDeleteOne(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceAll(ctx, sampleDataset()))

	deleted, err := s.DeleteOne(ctx, models.KindInvoice, 9)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteOne(ctx, models.KindInvoice, 9)
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err := s.CountAll(ctx, models.KindInvoice)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertAfterDeleteGoesLast(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ds := models.EmptyDataset()
	ds.Clients = []models.Client{{ID: 3, FirstName: "First"}, {ID: 8, FirstName: "Second"}}
	ds.Normalize()
	require.NoError(t, s.ReplaceAll(ctx, ds))

	deleted, err := s.DeleteOne(ctx, models.KindClient, 3)
	require.NoError(t, err)
	require.True(t, deleted)

	c := &models.Client{ID: 4, FirstName: "Third"}
	c.Normalize()
	_, err = s.UpsertOne(ctx, c)
	require.NoError(t, err)
	inserted, err := s.InsertOne(ctx, &models.Client{ID: 2, FirstName: "Fourth"})
	require.NoError(t, err)
	require.True(t, inserted)

	got := loadAll(t, s)
	ids := make([]int64, 0, len(got.Clients))
	for _, c := range got.Clients {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int64{8, 4, 2}, ids, "positions keep growing past deleted rows")
}

func TestName(t *testing.T) {
	assert.Equal(t, "sqlite", setupTestStore(t).Name())
}
