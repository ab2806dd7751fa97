// Package ssm implementa keystore.Store sobre AWS SSM Parameter Store.
package ssm

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/dropDatabas3/keyrelay/internal/keystore"
)

// GetParameters acepta como máximo 10 nombres por llamada.
const maxNamesPerCall = 10

// API es el subconjunto del cliente SSM que usamos (fake en tests).
type API interface {
	GetParameters(ctx context.Context, in *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
	PutParameter(ctx context.Context, in *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

type Config struct {
	Region string
	// KMSKeyID opcional; vacío = clave administrada por AWS.
	KMSKeyID string
}

type Store struct {
	api      API
	kmsKeyID string
}

// New carga la config default de AWS (env, shared config, IMDS).
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("keystore: load aws config: %w", err)
	}
	return NewWithAPI(ssm.NewFromConfig(awsCfg), cfg.KMSKeyID), nil
}

func NewWithAPI(api API, kmsKeyID string) *Store {
	return &Store{api: api, kmsKeyID: kmsKeyID}
}

func (s *Store) GetMany(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for start := 0; start < len(names); start += maxNamesPerCall {
		end := min(start+maxNamesPerCall, len(names))
		res, err := s.api.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          names[start:end],
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("keystore: ssm get parameters: %w", err)
		}
		// InvalidParameters = nombres inexistentes; se omiten igual que en el resto de adapters.
		for _, p := range res.Parameters {
			out[aws.ToString(p.Name)] = aws.ToString(p.Value)
		}
	}
	return out, nil
}

// SetMany escribe en orden; SSM no ofrece transacciones, así que un fallo
// a mitad deja escritas las entradas anteriores (el caller reintenta completo).
func (s *Store) SetMany(ctx context.Context, entries []keystore.Entry) error {
	if err := keystore.ValidateEntries(entries); err != nil {
		return err
	}
	for _, e := range entries {
		in := &ssm.PutParameterInput{
			Name:      aws.String(e.Name),
			Value:     aws.String(e.Value),
			Type:      types.ParameterTypeSecureString,
			Overwrite: aws.Bool(e.Overwrite),
		}
		if s.kmsKeyID != "" {
			in.KeyId = aws.String(s.kmsKeyID)
		}
		if _, err := s.api.PutParameter(ctx, in); err != nil {
			var exists *types.ParameterAlreadyExists
			if !e.Overwrite && errors.As(err, &exists) {
				continue
			}
			return fmt.Errorf("keystore: ssm put %s: %w", e.Name, err)
		}
	}
	return nil
}
