package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

func TestFeatureStore_NullableValues(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewFeatureStore(conn)
	ctx := context.Background()

	records := []*domain.FeatureRecord{
		{Date: day(0), SentimentBalance: ptr(21.5), WhaleCount100k: ptr(260.0), WhaleCount1m: ptr(12.0)},
		{Date: day(1), UniqueSocialVolume1h: ptr(4000.0)},
	}
	require.NoError(t, store.InsertBulk(ctx, records))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NotNil(t, all[0].SentimentBalance)
	assert.Equal(t, 21.5, *all[0].SentimentBalance)
	assert.Nil(t, all[0].UniqueSocialVolume1h)
	assert.Nil(t, all[0].MinersToExchangesFlow)

	assert.Nil(t, all[1].SentimentBalance)
	require.NotNil(t, all[1].UniqueSocialVolume1h)
	assert.Equal(t, 4000.0, *all[1].UniqueSocialVolume1h)

	ranged, err := store.GetByDateRange(ctx, day(1), day(10))
	require.NoError(t, err)
	assert.Len(t, ranged, 1)

	err = store.InsertBulk(ctx, []*domain.FeatureRecord{{Date: day(1)}})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
