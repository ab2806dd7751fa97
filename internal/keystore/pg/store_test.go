package pg

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/keyrelay/internal/keystore"
)

// Necesita un Postgres real: KEYRELAY_TEST_PG_DSN=postgres://...
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("KEYRELAY_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("KEYRELAY_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := New(ctx, Config{DSN: dsn, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))
	_, err = s.Pool().Exec(ctx, `DELETE FROM key_material WHERE name LIKE '/pgtest/%'`)
	require.NoError(t, err)
	return s
}

func TestStore_SetManyGetMany(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMany(ctx, []keystore.Entry{
		{Name: "/pgtest/a", Value: "1", Overwrite: true},
		{Name: "/pgtest/b", Value: "2", Overwrite: true},
	}))
	got, err := s.GetMany(ctx, []string{"/pgtest/a", "/pgtest/b", "/pgtest/missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/pgtest/a": "1", "/pgtest/b": "2"}, got)

	// overwrite=false no pisa
	require.NoError(t, s.SetMany(ctx, []keystore.Entry{{Name: "/pgtest/a", Value: "x"}}))
	require.NoError(t, s.SetMany(ctx, []keystore.Entry{{Name: "/pgtest/b", Value: "y", Overwrite: true}}))
	got, err = s.GetMany(ctx, []string{"/pgtest/a", "/pgtest/b"})
	require.NoError(t, err)
	assert.Equal(t, "1", got["/pgtest/a"])
	assert.Equal(t, "y", got["/pgtest/b"])
}

func TestStore_MigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestStore_RejectsEmptyName(t *testing.T) {
	s := newTestStore(t)
	err := s.SetMany(context.Background(), []keystore.Entry{{Name: "", Value: "v"}})
	assert.ErrorIs(t, err, keystore.ErrInvalidName)
}
