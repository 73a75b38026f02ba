package apiv1

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

func TestCreateSessionRequest(t *testing.T) {
	limit := 15.0
	cfg := obfuscate.Config{
		Sensitivity:      2,
		Epsilon:          0.1,
		DomainLimit:      &limit,
		RoundingStep:     10,
		Mode:             obfuscate.ThresholdConstant,
		PreserveTrueZero: true,
		Mechanism:        obfuscate.MechanismGeometric,
	}

	req, err := NewCreateSessionRequest(cfg)
	require.NoError(t, err)

	got, err := ParseCreateSessionRequest(req)
	require.NoError(t, err)
	assert.Equal(t, cfg.Sensitivity, got.Sensitivity)
	assert.Equal(t, cfg.Epsilon, got.Epsilon)
	assert.Equal(t, cfg.RoundingStep, got.RoundingStep)
	assert.Equal(t, cfg.Mode, got.Mode)
	assert.Equal(t, cfg.Mechanism, got.Mechanism)
	assert.True(t, got.PreserveTrueZero)
	require.NotNil(t, got.DomainLimit)
	assert.Equal(t, limit, *got.DomainLimit)
}

func TestCreateSessionRequest_InvalidMode(t *testing.T) {
	_, err := NewCreateSessionRequest(obfuscate.Config{Mode: obfuscate.ThresholdMode(7)})
	assert.ErrorIs(t, err, obfuscate.ErrInvalidThresholdMode)

	req, err := structpb.NewStruct(map[string]any{
		FieldSensitivity:      1.0,
		FieldEpsilon:          1.0,
		FieldRoundingStep:     "1",
		FieldThresholdMode:    "never",
		FieldPreserveTrueZero: false,
	})
	require.NoError(t, err)
	_, err = ParseCreateSessionRequest(req)
	assert.ErrorIs(t, err, obfuscate.ErrInvalidThresholdMode)
}

func TestObfuscateRequest_KeepsFullPrecision(t *testing.T) {
	key := obfuscate.Key{Value: math.MaxUint64 - 1, Bin: 1<<60 + 1}

	id, got, err := ParseObfuscateRequest(NewObfuscateRequest("s1", key))
	require.NoError(t, err)
	assert.Equal(t, "s1", id)
	assert.Equal(t, key, got)

	value, err := ParseValueResponse(NewValueResponse(math.MaxUint64))
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), value)
}

func TestObfuscateRequest_Malformed(t *testing.T) {
	_, _, err := ParseObfuscateRequest(NewSessionRequest("s1"))
	assert.Error(t, err)

	bad := NewObfuscateRequest("s1", obfuscate.Key{Value: 1})
	bad.Fields[FieldValue] = structpb.NewNumberValue(1)
	_, _, err = ParseObfuscateRequest(bad)
	assert.Error(t, err)

	bad.Fields[FieldValue] = structpb.NewStringValue("-4")
	_, _, err = ParseObfuscateRequest(bad)
	assert.Error(t, err)

	_, err = SessionID(NewSessionRequest(""))
	assert.Error(t, err)
}

func TestBatchMessages(t *testing.T) {
	keys := []obfuscate.Key{{Value: 1, Bin: 0}, {Value: 500, Bin: 2}, {Value: 500, Bin: 3}}

	id, got, err := ParseBatchRequest(NewBatchRequest("s9", keys))
	require.NoError(t, err)
	assert.Equal(t, "s9", id)
	assert.Equal(t, keys, got)

	values, err := ParseBatchResponse(NewBatchResponse([]uint64{10, 0, 490}))
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 0, 490}, values)
}

func TestGuaranteeResponse(t *testing.T) {
	limit := 30.0
	cfg := obfuscate.Config{Sensitivity: 3, Epsilon: 1.5, DomainLimit: &limit, RoundingStep: 1}

	g, err := ParseGuaranteeResponse(NewGuaranteeResponse(cfg.Guarantee()))
	require.NoError(t, err)
	assert.Equal(t, 2.0, g.Scale)
	assert.False(t, g.Pure())
	assert.Equal(t, limit, *g.DomainLimit)
}
