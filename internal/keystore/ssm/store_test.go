package ssm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/keyrelay/internal/keystore"
)

type fakeAPI struct {
	params   map[string]string
	getCalls [][]string
	puts     []*ssm.PutParameterInput
	failGet  error
}

func newFakeAPI() *fakeAPI { return &fakeAPI{params: map[string]string{}} }

func (f *fakeAPI) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	if f.failGet != nil {
		return nil, f.failGet
	}
	f.getCalls = append(f.getCalls, in.Names)
	out := &ssm.GetParametersOutput{}
	for _, n := range in.Names {
		if v, ok := f.params[n]; ok {
			out.Parameters = append(out.Parameters, types.Parameter{Name: aws.String(n), Value: aws.String(v)})
		} else {
			out.InvalidParameters = append(out.InvalidParameters, n)
		}
	}
	return out, nil
}

func (f *fakeAPI) PutParameter(_ context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.puts = append(f.puts, in)
	name := aws.ToString(in.Name)
	if _, ok := f.params[name]; ok && !aws.ToBool(in.Overwrite) {
		return nil, &types.ParameterAlreadyExists{}
	}
	f.params[name] = aws.ToString(in.Value)
	return &ssm.PutParameterOutput{}, nil
}

func TestGetMany_ChunksByTen(t *testing.T) {
	api := newFakeAPI()
	names := make([]string, 23)
	for i := range names {
		names[i] = "/ns/p" + string(rune('a'+i))
		api.params[names[i]] = "v"
	}
	names = append(names, "/ns/missing")

	got, err := NewWithAPI(api, "").GetMany(context.Background(), names)
	require.NoError(t, err)
	assert.Len(t, got, 23)
	require.Len(t, api.getCalls, 3)
	assert.Len(t, api.getCalls[0], 10)
	assert.Len(t, api.getCalls[2], 4)
}

func TestSetMany_SecureStringAndOverwrite(t *testing.T) {
	api := newFakeAPI()
	api.params["/ns/a"] = "old"
	s := NewWithAPI(api, "alias/keys")

	err := s.SetMany(context.Background(), []keystore.Entry{
		{Name: "/ns/a", Value: "keep", Overwrite: false},
		{Name: "/ns/b", Value: "new", Overwrite: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "old", api.params["/ns/a"])
	assert.Equal(t, "new", api.params["/ns/b"])
	for _, p := range api.puts {
		assert.Equal(t, types.ParameterTypeSecureString, p.Type)
		assert.Equal(t, "alias/keys", aws.ToString(p.KeyId))
	}
}

func TestGetMany_WrapsBackendError(t *testing.T) {
	api := newFakeAPI()
	boom := errors.New("throttled")
	api.failGet = boom

	_, err := NewWithAPI(api, "").GetMany(context.Background(), []string{"/x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
