package jwt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
	"github.com/dropDatabas3/keyrelay/internal/keystore"
)

var (
	pPub, pPriv, pCreated = jwtx.SlotParams("test", jwtx.SlotPrimary)
	sPub, sPriv, sCreated = jwtx.SlotParams("test", jwtx.SlotSecondary)
)

func TestRotate_BootstrapWritesSameKeyToBothSlots(t *testing.T) {
	clk := newClock()
	store := newRecordingStore()
	r := newTestRotator(t, store, clk, "salt")

	res, err := r.Rotate(context.Background(), "test")
	require.NoError(t, err)

	assert.True(t, res.Bootstrap)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, res.PrimaryKID, res.SecondaryKID)
	assert.Equal(t, store.value(pPub), store.value(sPub))
	assert.Equal(t, store.value(pPriv), store.value(sPriv))
	assert.Equal(t, clk.Now().Format(time.RFC3339), store.value(pCreated))

	// una sola escritura, secundario antes que primario
	require.Len(t, store.writes, 1)
	names := make([]string, 0, 6)
	for _, e := range store.writes[0] {
		names = append(names, e.Name)
		assert.True(t, e.Overwrite)
	}
	assert.Equal(t, []string{sPub, sPriv, sCreated, pPub, pPriv, pCreated}, names)
}

func TestRotate_MovesPrimaryToSecondary(t *testing.T) {
	clk := newClock()
	store := newRecordingStore()
	require.NoError(t, store.MemoryStore.SetMany(context.Background(), []keystore.Entry{
		{Name: pPub, Value: "A", Overwrite: true},
		{Name: pPriv, Value: "A-priv", Overwrite: true},
		{Name: pCreated, Value: "2024-01-01T00:00:00Z", Overwrite: true},
	}))
	r := newTestRotator(t, store, clk, "")

	res, err := r.Rotate(context.Background(), "test")
	require.NoError(t, err)

	assert.False(t, res.Bootstrap)
	assert.Equal(t, "A", store.value(sPub))
	assert.Equal(t, "A-priv", store.value(sPriv))
	assert.Equal(t, "2024-01-01T00:00:00Z", store.value(sCreated))
	assert.NotEqual(t, "A", store.value(pPub))
	assert.NotEmpty(t, res.PrimaryKID)
	assert.Empty(t, res.SecondaryKID, "\"A\" is not a PEM so it has no kid")

	// primero la copia al secundario, después el primario nuevo
	require.Len(t, store.writes, 2)
	assert.Equal(t, sPub, store.writes[0][0].Name)
	assert.Equal(t, pPub, store.writes[1][0].Name)
}

func TestRotate_TwiceKeepsOnlyPreviousPrimary(t *testing.T) {
	clk := newClock()
	store := newRecordingStore()
	r := newTestRotator(t, store, clk, "s")
	ctx := context.Background()

	first, err := r.Rotate(ctx, "test")
	require.NoError(t, err)
	second, err := r.Rotate(ctx, "test")
	require.NoError(t, err)
	third, err := r.Rotate(ctx, "test")
	require.NoError(t, err)

	assert.Equal(t, first.PrimaryKID, second.SecondaryKID)
	assert.Equal(t, second.PrimaryKID, third.SecondaryKID)
	assert.NotEqual(t, first.PrimaryKID, third.PrimaryKID)
	assert.NotEqual(t, first.PrimaryKID, third.SecondaryKID)
}

func TestRotate_IncompletePrimary(t *testing.T) {
	store := newRecordingStore()
	require.NoError(t, store.MemoryStore.SetMany(context.Background(), []keystore.Entry{
		{Name: pPub, Value: "A", Overwrite: true},
	}))

	_, err := newTestRotator(t, store, newClock(), "").Rotate(context.Background(), "test")
	assert.ErrorIs(t, err, jwtx.ErrIncompleteKeyPair)
	assert.Empty(t, store.writes)
}

func TestRotate_ReadFailureAborts(t *testing.T) {
	store := newRecordingStore()
	store.failGet = errors.New("timeout")

	_, err := newTestRotator(t, store, newClock(), "").Rotate(context.Background(), "test")
	assert.ErrorIs(t, err, store.failGet)
	assert.Empty(t, store.writes)
}

func TestRotate_PrimaryWriteFailureKeepsOldPrimary(t *testing.T) {
	clk := newClock()
	store := newRecordingStore()
	r := newTestRotator(t, store, clk, "")
	ctx := context.Background()

	_, err := r.Rotate(ctx, "test")
	require.NoError(t, err)
	before := store.value(pPub)

	store.failSetAt = 3 // bootstrap=1, copia=2, primario=3
	_, err = r.Rotate(ctx, "test")
	require.Error(t, err)

	assert.Equal(t, before, store.value(pPub))
	assert.Equal(t, before, store.value(sPub))

	// reintento completo
	store.failSetAt = 0
	res, err := r.Rotate(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, before, store.value(sPub))
	assert.NotEqual(t, before, store.value(pPub))
	assert.False(t, res.Bootstrap)
}

func TestRotate_EmptyNamespace(t *testing.T) {
	_, err := newTestRotator(t, newRecordingStore(), newClock(), "").Rotate(context.Background(), "/")
	assert.Error(t, err)
}
