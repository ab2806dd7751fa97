package jwt_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
	"github.com/dropDatabas3/keyrelay/internal/keystore"
)

func newTestPublishingCache(store keystore.Store, clk *testClock, ttl time.Duration) *jwtx.PublishingCache {
	return jwtx.NewPublishingCache(store, jwtx.PublishingCacheConfig{
		Namespace: "test",
		Salt:      "salt",
		TTL:       ttl,
		Now:       clk.Now,
	})
}

func seedSlot(t *testing.T, store keystore.Store, slot jwtx.KeySlot, kp jwtx.KeyPair) {
	t.Helper()
	pub, priv, _ := jwtx.SlotParams("test", slot)
	require.NoError(t, store.SetMany(context.Background(), []keystore.Entry{
		{Name: pub, Value: kp.PublicKey, Overwrite: true},
		{Name: priv, Value: kp.PrivateKey, Overwrite: true},
	}))
}

func TestPublishingCache_OnlySecondaryGivesOneKey(t *testing.T) {
	store := newRecordingStore()
	kp := mustKeyPair(t)
	seedSlot(t, store, jwtx.SlotSecondary, kp)

	set, err := newTestPublishingCache(store, newClock(), 0).GetKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, set.Keys, 1)
	assert.Equal(t, jwtx.ComputeKID(mustDER(t, kp.PublicKey), "salt"), set.Keys[0].Kid)
}

func TestPublishingCache_NoKeys(t *testing.T) {
	_, err := newTestPublishingCache(newRecordingStore(), newClock(), 0).GetKeys(context.Background())
	assert.ErrorIs(t, err, jwtx.ErrNoValidKey)
}

func TestPublishingCache_OrderAndDedupe(t *testing.T) {
	clk := newClock()
	store := newRecordingStore()
	r := newTestRotator(t, store, clk, "salt")
	ctx := context.Background()

	boot, err := r.Rotate(ctx, "test")
	require.NoError(t, err)

	pc := newTestPublishingCache(store, clk, time.Minute)
	set, err := pc.GetKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{boot.PrimaryKID}, set.Kids(), "bootstrap publishes one key")

	rot, err := r.Rotate(ctx, "test")
	require.NoError(t, err)
	pc.Invalidate()
	set, err = pc.GetKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{rot.PrimaryKID, boot.PrimaryKID}, set.Kids())
}

func TestPublishingCache_FreshEntrySkipsStore(t *testing.T) {
	clk := newClock()
	store := newRecordingStore()
	seedSlot(t, store, jwtx.SlotPrimary, mustKeyPair(t))
	pc := newTestPublishingCache(store, clk, 10*time.Second)
	ctx := context.Background()

	_, err := pc.GetKeys(ctx)
	require.NoError(t, err)
	clk.Advance(9 * time.Second)
	_, err = pc.GetKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.gets.Load())

	clk.Advance(time.Second) // now == fetchedAt+ttl: vencido
	_, err = pc.GetKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.gets.Load())
}

func TestPublishingCache_SingleFlight(t *testing.T) {
	store := newRecordingStore()
	seedSlot(t, store, jwtx.SlotPrimary, mustKeyPair(t))
	store.gate = make(chan struct{})
	pc := newTestPublishingCache(store, newClock(), time.Hour)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := pc.GetKeys(context.Background())
			if err == nil && len(set.Keys) != 1 {
				err = errors.New("unexpected key count")
			}
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(store.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), store.gets.Load())
}

func TestPublishingCache_StaleOnStoreError(t *testing.T) {
	clk := newClock()
	store := newRecordingStore()
	seedSlot(t, store, jwtx.SlotPrimary, mustKeyPair(t))
	pc := newTestPublishingCache(store, clk, time.Minute)
	ctx := context.Background()

	first, err := pc.GetKeys(ctx)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	store.failGet = errors.New("throttling")
	stale, err := pc.GetKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, stale)
}

func TestPublishingCache_StoreErrorWithoutStale(t *testing.T) {
	store := newRecordingStore()
	store.failGet = errors.New("connection refused")

	_, err := newTestPublishingCache(store, newClock(), 0).GetKeys(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.failGet)
	assert.NotErrorIs(t, err, jwtx.ErrNoValidKey)
}

func TestPublishingCache_CorruptSlotIsSkipped(t *testing.T) {
	store := newRecordingStore()
	kp := mustKeyPair(t)
	seedSlot(t, store, jwtx.SlotSecondary, kp)
	require.NoError(t, store.SetMany(context.Background(), []keystore.Entry{
		{Name: pPub, Value: "garbage", Overwrite: true},
	}))

	set, err := newTestPublishingCache(store, newClock(), 0).GetKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, set.Keys, 1)
}
