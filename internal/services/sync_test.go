package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/config"
	"github.com/diewo77/garage-records/internal/models"
	"github.com/diewo77/garage-records/internal/remote/remotetest"
)

func clientIDs(ds models.Dataset) []int64 {
	ids := make([]int64, 0, len(ds.Clients))
	for _, c := range ds.Clients {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestReconnectKeepsRecordsWrittenOnlyToRemote(t *testing.T) {
	mem := remotetest.NewMemory()
	f := newFixture(t, config.ModeHybrid, mem)
	ctx := context.Background()

	_, err := f.coord.ReplaceAll(ctx, oneClient(1, "Ada"))
	require.NoError(t, err)
	c2 := oneClient(2, "Grace").Clients[0]
	_, err = f.coord.UpsertOne(ctx, &c2)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, clientIDs(mem.Snapshot()))

	mem.FailOn("find", apperr.New(apperr.KindOperationTimeout, "find timed out", context.DeadlineExceeded))
	_, err = f.coord.LoadAll(ctx)
	require.NoError(t, err)
	require.True(t, f.conn.Connected(), "one timeout keeps the connection")
	mem.FailOn("find", nil)

	mem.SetDown(true)
	c3 := oneClient(3, "Linus").Clients[0]
	_, err = f.coord.UpsertOne(ctx, &c3)
	require.NoError(t, err)
	require.False(t, f.conn.Connected())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.coord.WatchRemote(runCtx, 5*time.Millisecond, time.Second, true)
	}()
	mem.SetDown(false)
	require.Eventually(t, func() bool {
		return len(mem.Snapshot().Clients) == 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []int64{1, 2, 3}, clientIDs(mem.Snapshot()), "remote-only client 2 survives the catch-up")
	assert.Equal(t, 1, mem.Calls("replace"), "no bulk push after reconnect")
	assert.True(t, f.file.Pending().Empty())
}

func TestCatchUpReplaysDeletes(t *testing.T) {
	mem := remotetest.NewMemory()
	f := newFixture(t, config.ModeHybrid, mem)
	ctx := context.Background()
	_, err := f.coord.ReplaceAll(ctx, fullDataset())
	require.NoError(t, err)

	mem.SetDown(true)
	deleted, err := f.coord.DeleteOne(ctx, models.KindInvoice, 20)
	require.NoError(t, err)
	require.True(t, deleted)
	pending := f.file.Pending()
	require.Len(t, pending.Changes, 1)
	assert.True(t, pending.Changes[0].Deleted)

	mem.SetDown(false)
	require.NoError(t, f.coord.Connect(ctx, time.Second))
	res, err := f.coord.CatchUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, CatchUpResult{Replayed: 1}, res)

	got := mem.Snapshot()
	assert.Empty(t, got.Invoices)
	assert.Len(t, got.Quotes, 1)
	assert.True(t, f.file.Pending().Empty())
}

func TestCatchUpFailureKeepsChangesPending(t *testing.T) {
	mem := remotetest.NewMemory()
	f := newFixture(t, config.ModeHybrid, mem)
	ctx := context.Background()

	mem.SetDown(true)
	c := oneClient(4, "Offline").Clients[0]
	_, err := f.coord.UpsertOne(ctx, &c)
	require.NoError(t, err)

	mem.SetDown(false)
	require.NoError(t, f.coord.Connect(ctx, time.Second))
	mem.FailOn("upsert", apperr.New(apperr.KindOperationTimeout, "upsert timed out", nil))
	res, err := f.coord.CatchUp(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, f.file.Pending().Changes, 1, "failed change stays pending")

	mem.FailOn("upsert", nil)
	res, err = f.coord.CatchUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed)
	assert.Equal(t, []int64{4}, clientIDs(mem.Snapshot()))
}

func TestConnectedWriteSupersedesPendingChange(t *testing.T) {
	mem := remotetest.NewMemory()
	f := newFixture(t, config.ModeHybrid, mem)
	ctx := context.Background()

	mem.SetDown(true)
	old := oneClient(5, "Old").Clients[0]
	_, err := f.coord.UpsertOne(ctx, &old)
	require.NoError(t, err)

	mem.SetDown(false)
	require.NoError(t, f.coord.Connect(ctx, time.Second))
	updated := oneClient(5, "New").Clients[0]
	_, err = f.coord.UpsertOne(ctx, &updated)
	require.NoError(t, err)
	assert.True(t, f.file.Pending().Empty())

	res, err := f.coord.CatchUp(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Replayed)
	assert.Equal(t, "New", mem.Snapshot().Clients[0].FirstName)
}

func TestCatchUpPushesBulkReplaceMadeWhileDown(t *testing.T) {
	mem := remotetest.NewMemory()
	mem.SetDown(true)
	f := newFixture(t, config.ModeHybrid, mem)
	ctx := context.Background()

	_, err := f.coord.ReplaceAll(ctx, fullDataset())
	require.NoError(t, err)
	c := oneClient(7, "After").Clients[0]
	_, err = f.coord.UpsertOne(ctx, &c)
	require.NoError(t, err)
	assert.True(t, f.file.Pending().NeedsFullPush())

	mem.SetDown(false)
	require.NoError(t, f.coord.Connect(ctx, time.Second))
	res, err := f.coord.CatchUp(ctx)
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.Equal(t, models.Counts{Clients: 2, Quotes: 1, Invoices: 1}, res.Pushed)
	assert.Equal(t, []int64{1, 7}, clientIDs(mem.Snapshot()))
	assert.True(t, f.file.Pending().Empty())
}

func TestCatchUpOutsideHybridIsNoop(t *testing.T) {
	for _, mode := range []config.StorageMode{config.ModeLocal, config.ModeRemote} {
		f := newFixture(t, mode, remotetest.NewMemory())
		res, err := f.coord.CatchUp(context.Background())
		require.NoError(t, err, mode)
		assert.Equal(t, CatchUpResult{}, res)
	}
}
