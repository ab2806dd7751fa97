package jwt_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
	"github.com/dropDatabas3/keyrelay/internal/keystore"
)

// 1024 bits alcanza para tests y mantiene la generación rápida.
const testBits = 1024

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock { return &testClock{t: time.Unix(1_700_000_000, 0).UTC()} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recordingStore envuelve MemoryStore contando lecturas y guardando cada SetMany.
type recordingStore struct {
	*keystore.MemoryStore

	gets    atomic.Int32
	mu      sync.Mutex
	writes  [][]keystore.Entry
	gate    chan struct{} // si no es nil, GetMany espera hasta que se cierre
	failGet error
	// failSetAt: número (1-based) de SetMany que falla; 0 = ninguno
	failSetAt int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: keystore.NewMemory()}
}

func (s *recordingStore) GetMany(ctx context.Context, names []string) (map[string]string, error) {
	s.gets.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.failGet != nil {
		return nil, s.failGet
	}
	return s.MemoryStore.GetMany(ctx, names)
}

func (s *recordingStore) SetMany(ctx context.Context, entries []keystore.Entry) error {
	s.mu.Lock()
	s.writes = append(s.writes, entries)
	n := len(s.writes)
	s.mu.Unlock()
	if s.failSetAt == n {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.SetMany(ctx, entries)
}

func (s *recordingStore) value(name string) string {
	return s.Snapshot()[name]
}

func testGenerator(clk *testClock) jwtx.KeyGenerator {
	return jwtx.RSAGenerator(testBits, clk.Now)
}

func newTestRotator(t *testing.T, store keystore.Store, clk *testClock, salt string) *jwtx.Rotator {
	t.Helper()
	return jwtx.NewRotator(store, jwtx.RotatorConfig{Salt: salt, Generator: testGenerator(clk), Now: clk.Now})
}

func mustKeyPair(t *testing.T) jwtx.KeyPair {
	t.Helper()
	kp, err := jwtx.RSAGenerator(testBits, nil)()
	require.NoError(t, err)
	return kp
}

func mustDER(t *testing.T, pemStr string) []byte {
	t.Helper()
	der, err := jwtx.PublicKeyDER(pemStr)
	require.NoError(t, err)
	return der
}
