package apiv1

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

// Struct field names.
const (
	FieldSessionID        = "session_id"
	FieldValue            = "value"
	FieldBin              = "bin"
	FieldItems            = "items"
	FieldValues           = "values"
	FieldSensitivity      = "sensitivity"
	FieldEpsilon          = "epsilon"
	FieldDomainLimit      = "domain_limit"
	FieldRoundingStep     = "rounding_step"
	FieldThresholdMode    = "threshold_mode"
	FieldPreserveTrueZero = "preserve_true_zero"
	FieldMechanism        = "mechanism"
	FieldScale            = "scale"
	FieldPure             = "pure"
	FieldDescription      = "description"
)

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func field(s *structpb.Struct, key string) (*structpb.Value, error) {
	if s == nil {
		return nil, fmt.Errorf("missing message")
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return nil, fmt.Errorf("missing field %q", key)
	}
	return v, nil
}

func stringField(s *structpb.Struct, key string) (string, error) {
	v, err := field(s, key)
	if err != nil {
		return "", err
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("field %q is not a string", key)
	}
	return str.StringValue, nil
}

func uintValue(v *structpb.Value, key string) (uint64, error) {
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return 0, fmt.Errorf("field %q must be a decimal string", key)
	}
	n, err := strconv.ParseUint(str.StringValue, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return n, nil
}

func uintField(s *structpb.Struct, key string) (uint64, error) {
	v, err := field(s, key)
	if err != nil {
		return 0, err
	}
	return uintValue(v, key)
}

func numberField(s *structpb.Struct, key string) (float64, error) {
	v, err := field(s, key)
	if err != nil {
		return 0, err
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("field %q is not a number", key)
	}
	return n.NumberValue, nil
}

func boolField(s *structpb.Struct, key string) (bool, error) {
	v, err := field(s, key)
	if err != nil {
		return false, err
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, fmt.Errorf("field %q is not a bool", key)
	}
	return b.BoolValue, nil
}

// NewCreateSessionRequest encodes a session config.
func NewCreateSessionRequest(cfg obfuscate.Config) (*structpb.Struct, error) {
	mode, err := cfg.Mode.MarshalText()
	if err != nil {
		return nil, err
	}
	mechanism, err := cfg.Mechanism.MarshalText()
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		FieldSensitivity:      cfg.Sensitivity,
		FieldEpsilon:          cfg.Epsilon,
		FieldRoundingStep:     formatUint(cfg.RoundingStep),
		FieldThresholdMode:    string(mode),
		FieldPreserveTrueZero: cfg.PreserveTrueZero,
		FieldMechanism:        string(mechanism),
	}
	if cfg.DomainLimit != nil {
		fields[FieldDomainLimit] = *cfg.DomainLimit
	}
	return structpb.NewStruct(fields)
}

// ParseCreateSessionRequest decodes a session config. It does not validate
// the parameters themselves.
func ParseCreateSessionRequest(s *structpb.Struct) (obfuscate.Config, error) {
	var cfg obfuscate.Config
	var err error

	if cfg.Sensitivity, err = numberField(s, FieldSensitivity); err != nil {
		return cfg, err
	}
	if cfg.Epsilon, err = numberField(s, FieldEpsilon); err != nil {
		return cfg, err
	}
	if cfg.RoundingStep, err = uintField(s, FieldRoundingStep); err != nil {
		return cfg, err
	}
	mode, err := stringField(s, FieldThresholdMode)
	if err != nil {
		return cfg, err
	}
	if cfg.Mode, err = obfuscate.ParseThresholdMode(mode); err != nil {
		return cfg, err
	}
	if cfg.PreserveTrueZero, err = boolField(s, FieldPreserveTrueZero); err != nil {
		return cfg, err
	}
	if _, ok := s.GetFields()[FieldMechanism]; ok {
		mechanism, err := stringField(s, FieldMechanism)
		if err != nil {
			return cfg, err
		}
		if cfg.Mechanism, err = obfuscate.ParseMechanism(mechanism); err != nil {
			return cfg, err
		}
	}
	if _, ok := s.GetFields()[FieldDomainLimit]; ok {
		limit, err := numberField(s, FieldDomainLimit)
		if err != nil {
			return cfg, err
		}
		cfg.DomainLimit = &limit
	}
	return cfg, nil
}

// NewSessionRequest addresses a session by id.
func NewSessionRequest(sessionID string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldSessionID: structpb.NewStringValue(sessionID),
	}}
}

// NewSessionResponse returns a session id with a description of its guarantee.
func NewSessionResponse(sessionID, description string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldSessionID:   structpb.NewStringValue(sessionID),
		FieldDescription: structpb.NewStringValue(description),
	}}
}

// SessionID extracts the session id of a request or response.
func SessionID(s *structpb.Struct) (string, error) {
	id, err := stringField(s, FieldSessionID)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("empty %q", FieldSessionID)
	}
	return id, nil
}

// NewObfuscateRequest encodes one count.
func NewObfuscateRequest(sessionID string, key obfuscate.Key) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldSessionID: structpb.NewStringValue(sessionID),
		FieldValue:     structpb.NewStringValue(formatUint(key.Value)),
		FieldBin:       structpb.NewStringValue(formatUint(uint64(key.Bin))),
	}}
}

func parseKey(s *structpb.Struct) (obfuscate.Key, error) {
	value, err := uintField(s, FieldValue)
	if err != nil {
		return obfuscate.Key{}, err
	}
	bin, err := uintField(s, FieldBin)
	if err != nil {
		return obfuscate.Key{}, err
	}
	return obfuscate.Key{Value: value, Bin: obfuscate.Bin(bin)}, nil
}

// ParseObfuscateRequest decodes one count.
func ParseObfuscateRequest(s *structpb.Struct) (string, obfuscate.Key, error) {
	id, err := SessionID(s)
	if err != nil {
		return "", obfuscate.Key{}, err
	}
	key, err := parseKey(s)
	return id, key, err
}

// NewValueResponse encodes one obfuscated count.
func NewValueResponse(value uint64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldValue: structpb.NewStringValue(formatUint(value)),
	}}
}

// ParseValueResponse decodes one obfuscated count.
func ParseValueResponse(s *structpb.Struct) (uint64, error) {
	return uintField(s, FieldValue)
}

// NewBatchRequest encodes several counts.
func NewBatchRequest(sessionID string, keys []obfuscate.Key) *structpb.Struct {
	items := make([]*structpb.Value, len(keys))
	for i, key := range keys {
		items[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			FieldValue: structpb.NewStringValue(formatUint(key.Value)),
			FieldBin:   structpb.NewStringValue(formatUint(uint64(key.Bin))),
		}})
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldSessionID: structpb.NewStringValue(sessionID),
		FieldItems:     structpb.NewListValue(&structpb.ListValue{Values: items}),
	}}
}

// ParseBatchRequest decodes several counts.
func ParseBatchRequest(s *structpb.Struct) (string, []obfuscate.Key, error) {
	id, err := SessionID(s)
	if err != nil {
		return "", nil, err
	}
	v, err := field(s, FieldItems)
	if err != nil {
		return "", nil, err
	}
	list := v.GetListValue()
	if list == nil {
		return "", nil, fmt.Errorf("field %q is not a list", FieldItems)
	}

	keys := make([]obfuscate.Key, len(list.GetValues()))
	for i, item := range list.GetValues() {
		itemStruct := item.GetStructValue()
		if itemStruct == nil {
			return "", nil, fmt.Errorf("item %d is not an object", i)
		}
		if keys[i], err = parseKey(itemStruct); err != nil {
			return "", nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return id, keys, nil
}

// NewBatchResponse encodes several obfuscated counts, in request order.
func NewBatchResponse(values []uint64) *structpb.Struct {
	list := make([]*structpb.Value, len(values))
	for i, v := range values {
		list[i] = structpb.NewStringValue(formatUint(v))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldValues: structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}
}

// ParseBatchResponse decodes several obfuscated counts.
func ParseBatchResponse(s *structpb.Struct) ([]uint64, error) {
	v, err := field(s, FieldValues)
	if err != nil {
		return nil, err
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("field %q is not a list", FieldValues)
	}
	values := make([]uint64, len(list.GetValues()))
	for i, item := range list.GetValues() {
		if values[i], err = uintValue(item, FieldValues); err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return values, nil
}

// NewGuaranteeResponse encodes a privacy guarantee.
func NewGuaranteeResponse(g obfuscate.Guarantee) *structpb.Struct {
	fields := map[string]*structpb.Value{
		FieldMechanism:   structpb.NewStringValue(g.Mechanism.String()),
		FieldSensitivity: structpb.NewNumberValue(g.Sensitivity),
		FieldEpsilon:     structpb.NewNumberValue(g.Epsilon),
		FieldScale:       structpb.NewNumberValue(g.Scale),
		FieldPure:        structpb.NewBoolValue(g.Pure()),
		FieldDescription: structpb.NewStringValue(g.String()),
	}
	if g.DomainLimit != nil {
		fields[FieldDomainLimit] = structpb.NewNumberValue(*g.DomainLimit)
	}
	return &structpb.Struct{Fields: fields}
}

// ParseGuaranteeResponse decodes a privacy guarantee.
func ParseGuaranteeResponse(s *structpb.Struct) (obfuscate.Guarantee, error) {
	var g obfuscate.Guarantee

	mechanism, err := stringField(s, FieldMechanism)
	if err != nil {
		return g, err
	}
	if g.Mechanism, err = obfuscate.ParseMechanism(mechanism); err != nil {
		return g, err
	}
	if g.Sensitivity, err = numberField(s, FieldSensitivity); err != nil {
		return g, err
	}
	if g.Epsilon, err = numberField(s, FieldEpsilon); err != nil {
		return g, err
	}
	if g.Scale, err = numberField(s, FieldScale); err != nil {
		return g, err
	}
	if _, ok := s.GetFields()[FieldDomainLimit]; ok {
		limit, err := numberField(s, FieldDomainLimit)
		if err != nil {
			return g, err
		}
		g.DomainLimit = &limit
	}
	return g, nil
}
