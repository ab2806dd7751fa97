// Package pipeline corre el ciclo de vida de un request en tres etapas fijas:
// validate -> prepare -> execute. Cada controller arma sus etapas como
// funciones y el driver es siempre Run.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

// Stage identifica la etapa que falló.
type Stage string

const (
	StageValidate Stage = "validate"
	StagePrepare  Stage = "prepare"
	StageExecute  Stage = "execute"
)

// Steps agrupa las etapas de un endpoint.
//
//	Validate: revisa el input crudo (sin I/O).
//	Prepare:  resuelve dependencias/estado (cache, store).
//	Execute:  produce la respuesta.
//
// Validate y Prepare son opcionales; Execute no.
type Steps[In, Prep, Out any] struct {
	Validate func(ctx context.Context, in In) error
	Prepare  func(ctx context.Context, in In) (Prep, error)
	Execute  func(ctx context.Context, prep Prep) (Out, error)
}

// Error envuelve la causa con la etapa donde ocurrió.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Run ejecuta las etapas en orden y corta en el primer error.
func Run[In, Prep, Out any](ctx context.Context, s Steps[In, Prep, Out], in In) (Out, error) {
	var zero Out
	if s.Execute == nil {
		return zero, &Error{Stage: StageExecute, Err: fmt.Errorf("no execute step")}
	}

	if s.Validate != nil {
		if err := s.Validate(ctx, in); err != nil {
			return zero, fail(ctx, StageValidate, err)
		}
	}

	var prep Prep
	if s.Prepare != nil {
		p, err := s.Prepare(ctx, in)
		if err != nil {
			return zero, fail(ctx, StagePrepare, err)
		}
		prep = p
	}

	out, err := s.Execute(ctx, prep)
	if err != nil {
		return zero, fail(ctx, StageExecute, err)
	}
	return out, nil
}

func fail(ctx context.Context, stage Stage, err error) error {
	logger.From(ctx).Debug("pipeline stage failed", logger.String("stage", string(stage)), logger.Err(err))
	return &Error{Stage: stage, Err: err}
}
