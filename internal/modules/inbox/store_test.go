package inbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeWs/internal/modules/realtime/domain"
)

func alertAt(productID string, ms int64) domain.Record {
	return domain.AlertRecord(domain.PriceAlert{ProductID: productID, NewPrice: 10}, time.UnixMilli(ms))
}

type failingPersister struct {
	MemoryPersister
	err error
}

func (f *failingPersister) Save(context.Context, []domain.Record) error { return f.err }

func TestStore_MergeWithinWindow(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)

	first := alertAt("p1", 1000)
	merged, err := s.MergeOrAppend(ctx, first, DefaultMergeWindow)
	require.NoError(t, err)
	assert.False(t, merged)

	second := domain.AlertRecord(domain.PriceAlert{ProductID: "p1", NewPrice: 8.5}, time.UnixMilli(30000))
	merged, err = s.MergeOrAppend(ctx, second, DefaultMergeWindow)
	require.NoError(t, err)
	assert.True(t, merged)

	records := s.ReadAll()
	require.Len(t, records, 1)
	assert.Equal(t, int64(30000), records[0].Timestamp)
	assert.Equal(t, second.Message, records[0].Message)
	assert.Equal(t, first.ID, records[0].ID)
}

func TestStore_MergeOutsideWindow(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)

	_, err := s.MergeOrAppend(ctx, alertAt("p1", 1000), DefaultMergeWindow)
	require.NoError(t, err)
	merged, err := s.MergeOrAppend(ctx, alertAt("p1", 70000), DefaultMergeWindow)
	require.NoError(t, err)

	assert.False(t, merged)
	assert.Len(t, s.ReadAll(), 2)
}

func TestStore_MergeWindowBoundaryIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)

	_, err := s.MergeOrAppend(ctx, alertAt("p1", 0), DefaultMergeWindow)
	require.NoError(t, err)
	merged, err := s.MergeOrAppend(ctx, alertAt("p1", 60000), DefaultMergeWindow)
	require.NoError(t, err)
	assert.False(t, merged)

	merged, err = s.MergeOrAppend(ctx, alertAt("p1", 119999), DefaultMergeWindow)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Len(t, s.ReadAll(), 2)
}

func TestStore_DifferentProductsDoNotMerge(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)

	_, err := s.MergeOrAppend(ctx, alertAt("p1", 1000), DefaultMergeWindow)
	require.NoError(t, err)
	merged, err := s.MergeOrAppend(ctx, alertAt("p2", 2000), DefaultMergeWindow)
	require.NoError(t, err)
	assert.False(t, merged)

	plain := domain.Record{ID: "x", Type: "order_shipped", Message: "shipped", Timestamp: 2500}
	merged, err = s.MergeOrAppend(ctx, plain, DefaultMergeWindow)
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Len(t, s.ReadAll(), 3)
}

func TestStore_BoundedEviction(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 200)

	for i := 0; i < 250; i++ {
		rec := domain.Record{ID: fmt.Sprintf("r%03d", i), Type: "info", Message: "m", Timestamp: int64(i)}
		require.NoError(t, s.Append(ctx, rec))
	}

	records := s.ReadAll()
	require.Len(t, records, 200)
	assert.Equal(t, "r050", records[0].ID)
	assert.Equal(t, "r249", records[199].ID)

	recent := s.Recent()
	assert.Equal(t, "r249", recent[0].ID)
	assert.Equal(t, "r050", recent[199].ID)
	for i := 1; i < len(recent); i++ {
		assert.Greater(t, recent[i-1].Timestamp, recent[i].Timestamp)
	}
}

func TestStore_SaveFailureKeepsMemoryState(t *testing.T) {
	boom := errors.New("quota exceeded")
	s := NewStore(&failingPersister{err: boom}, 0)

	err := s.Append(context.Background(), alertAt("p1", 1000))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.Len())

	_, err = s.MergeOrAppend(context.Background(), alertAt("p1", 2000), DefaultMergeWindow)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2000), s.ReadAll()[0].Timestamp)
}

func TestStore_PersistsEveryMutation(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	s := NewStore(p, 0)

	require.NoError(t, s.Append(ctx, alertAt("p1", 1000)))
	_, err := s.MergeOrAppend(ctx, alertAt("p1", 2000), DefaultMergeWindow)
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))

	assert.Equal(t, 3, p.Saves())
	saved, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestStore_LoadTrimsToCapacity(t *testing.T) {
	seed := []domain.Record{
		{ID: "a", Type: "info", Timestamp: 1},
		{ID: "b", Type: "info", Timestamp: 2},
		{ID: "c", Type: "info", Timestamp: 3},
	}
	s := NewStore(NewMemoryPersister(seed...), 2)
	require.NoError(t, s.Load(context.Background()))

	records := s.ReadAll()
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)
}
