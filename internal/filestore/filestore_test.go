package filestore

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/models"
)

const testPath = "/var/lib/garage/data.json"

func openTestStore(t *testing.T, fsys afero.Fs) *Store {
	t.Helper()
	s, err := Open(fsys, testPath, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func twoClients() models.Dataset {
	ds := models.EmptyDataset()
	ds.Clients = []models.Client{{ID: 1, FirstName: "Ada"}, {ID: 2, FirstName: "Grace"}}
	ds.Quotes = []models.Quote{{Billable: models.Billable{ID: 10, ClientID: 1, Items: []models.LineItem{{ServiceID: 3, Quantity: 1, UnitPrice: 80}}}}}
	ds.Normalize()
	return ds
}

func TestOpenInitializesBaseline(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := openTestStore(t, fsys)

	data, err := afero.ReadFile(fsys, testPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"clients":[],"quotes":[],"invoices":[]}`, string(data))
	assert.True(t, strings.Contains(string(data), "\n  \"clients\""), "blob is pretty-printed")

	ds, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, models.EmptyDataset(), ds)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	s := openTestStore(t, afero.NewMemMapFs())
	want := twoClients()
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dataset mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := openTestStore(t, fsys)
	require.NoError(t, s.Save(twoClients()))

	entries, err := afero.ReadDir(fsys, "/var/lib/garage")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data.json", entries[0].Name())
}

func TestLoadCorruptBlobIsReadFailure(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := openTestStore(t, fsys)
	require.NoError(t, afero.WriteFile(fsys, testPath, []byte(`{"clients": [`), 0o644))

	_, err := s.Load()
	assert.ErrorIs(t, err, apperr.ErrReadFailure)

	require.NoError(t, afero.WriteFile(fsys, testPath, []byte(`{"clients":[],"quotes":{},"invoices":[]}`), 0o644))
	_, err = s.Load()
	assert.ErrorIs(t, err, apperr.ErrReadFailure, "wrong shape is a read failure too")
}

func TestLoadRecreatesMissingBlob(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := openTestStore(t, fsys)
	require.NoError(t, fsys.Remove(testPath))

	ds, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, models.EmptyDataset(), ds)
	exists, err := afero.Exists(fsys, testPath)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSaveOnReadOnlyFsIsWriteFailure(t *testing.T) {
	base := afero.NewMemMapFs()
	openTestStore(t, base)

	s := openTestStore(t, afero.NewReadOnlyFs(base))
	err := s.Save(twoClients())
	assert.ErrorIs(t, err, apperr.ErrWriteFailure)

	ds, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, ds.Clients, "old content still readable")
}

func TestOpenOnReadOnlyFsWithoutBlobFails(t *testing.T) {
	_, err := Open(afero.NewReadOnlyFs(afero.NewMemMapFs()), testPath, zerolog.Nop())
	assert.ErrorIs(t, err, apperr.ErrWriteFailure)
}

func TestUpdateQuarantinesCorruptBlob(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := openTestStore(t, fsys)
	require.NoError(t, afero.WriteFile(fsys, testPath, []byte(`not json`), 0o644))

	err := s.Update(func(ds *models.Dataset) error {
		ds.Upsert(&models.Client{ID: 7})
		return nil
	})
	require.NoError(t, err)

	entries, err := afero.ReadDir(fsys, "/var/lib/garage")
	require.NoError(t, err)
	var backups int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "data.json.corrupt-") {
			backups++
		}
	}
	assert.Equal(t, 1, backups)

	ds, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, ds.Clients, 1)
}

func TestUpdateAbortsWithoutWriting(t *testing.T) {
	s := openTestStore(t, afero.NewMemMapFs())
	require.NoError(t, s.Save(twoClients()))

	err := s.Update(func(ds *models.Dataset) error {
		ds.Delete(models.KindClient, 1)
		return fmt.Errorf("changed my mind")
	})
	require.Error(t, err)

	ds, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, ds.Clients, 2)
}

func TestConcurrentUpdatesLoseNothing(t *testing.T) {
	s := openTestStore(t, afero.NewMemMapFs())
	ds := models.EmptyDataset()
	for i := 1; i <= 50; i++ {
		ds.Clients = append(ds.Clients, models.Client{ID: int64(i)})
	}
	require.NoError(t, s.Save(ds))

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, s.Update(func(ds *models.Dataset) error {
				ds.Delete(models.KindClient, id)
				return nil
			}))
		}(int64(i))
	}
	wg.Wait()

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got.Clients)
}
