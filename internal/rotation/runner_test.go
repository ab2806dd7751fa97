package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
)

type fakeRotator struct {
	mu    sync.Mutex
	calls int
	errs  []error // se consumen en orden; vacío = éxito
}

func (f *fakeRotator) Rotate(_ context.Context, ns string) (jwtx.RotationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return jwtx.RotationResult{}, err
		}
	}
	return jwtx.RotationResult{Namespace: ns, PrimaryKID: fmt.Sprintf("kid-%d", f.calls)}, nil
}

func (f *fakeRotator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var fastRetry = RetryConfig{MaxTries: 4, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestRotateWithRetry_TransientThenOK(t *testing.T) {
	r := &fakeRotator{errs: []error{errors.New("store timeout"), errors.New("store timeout")}}
	res, err := RotateWithRetry(context.Background(), r, "prod", fastRetry)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Calls())
	assert.Equal(t, "kid-3", res.PrimaryKID)
}

func TestRotateWithRetry_GivesUp(t *testing.T) {
	boom := errors.New("store down")
	r := &fakeRotator{errs: []error{boom, boom, boom, boom, boom}}
	_, err := RotateWithRetry(context.Background(), r, "prod", fastRetry)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, r.Calls())
}

func TestRotateWithRetry_PermanentStopsImmediately(t *testing.T) {
	r := &fakeRotator{errs: []error{fmt.Errorf("ns prod: %w", jwtx.ErrIncompleteKeyPair)}}
	_, err := RotateWithRetry(context.Background(), r, "prod", fastRetry)
	require.ErrorIs(t, err, jwtx.ErrIncompleteKeyPair)
	assert.Equal(t, 1, r.Calls())
}

func TestScheduler_RotatesUntilCancelled(t *testing.T) {
	r := &fakeRotator{errs: []error{nil, errors.New("flaky"), errors.New("flaky"), errors.New("flaky"), errors.New("flaky")}}
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var kids []string
	s := &Scheduler{
		Rotator:       r,
		Namespace:     "prod",
		Interval:      5 * time.Millisecond,
		Retry:         fastRetry,
		RotateOnStart: true,
		OnRotate: func(res jwtx.RotationResult) {
			mu.Lock()
			defer mu.Unlock()
			kids = append(kids, res.PrimaryKID)
			if len(kids) == 2 {
				cancel()
			}
		},
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, kids, 2)
	// el tick con 4 fallos seguidos se abandona y el siguiente rota
	assert.Equal(t, "kid-1", kids[0])
	assert.GreaterOrEqual(t, r.Calls(), 6)
}

func TestScheduler_RejectsZeroInterval(t *testing.T) {
	s := &Scheduler{Rotator: &fakeRotator{}}
	assert.Error(t, s.Run(context.Background()))
}
