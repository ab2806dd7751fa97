package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_OrderAndPassThrough(t *testing.T) {
	var calls []string
	steps := Steps[int, string, string]{
		Validate: func(_ context.Context, in int) error {
			calls = append(calls, "validate")
			return nil
		},
		Prepare: func(_ context.Context, in int) (string, error) {
			calls = append(calls, "prepare")
			return "p", nil
		},
		Execute: func(_ context.Context, p string) (string, error) {
			calls = append(calls, "execute")
			return p + "!", nil
		},
	}

	out, err := Run(context.Background(), steps, 1)
	require.NoError(t, err)
	assert.Equal(t, "p!", out)
	assert.Equal(t, []string{"validate", "prepare", "execute"}, calls)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	boom := errors.New("bad input")
	executed := false
	steps := Steps[int, int, int]{
		Validate: func(context.Context, int) error { return boom },
		Execute: func(context.Context, int) (int, error) {
			executed = true
			return 0, nil
		},
	}

	_, err := Run(context.Background(), steps, 0)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageValidate, perr.Stage)
	assert.ErrorIs(t, err, boom)
	assert.False(t, executed)
}

func TestRun_OptionalStages(t *testing.T) {
	out, err := Run(context.Background(), Steps[struct{}, struct{}, int]{
		Execute: func(context.Context, struct{}) (int, error) { return 7, nil },
	}, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 7, out)

	_, err = Run(context.Background(), Steps[int, int, int]{}, 0)
	assert.Error(t, err)
}
