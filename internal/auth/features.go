package auth

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FeatureValue is one entry in a tier's feature bundle. A feature is either a
// boolean switch or a numeric limit; a negative limit means unlimited.
type FeatureValue struct {
	Enabled bool
	Limit   *int64
}

// BoolFeature builds a switch-style feature value.
func BoolFeature(enabled bool) FeatureValue {
	return FeatureValue{Enabled: enabled}
}

// LimitFeature builds a numeric-limit feature value.
func LimitFeature(limit int64) FeatureValue {
	return FeatureValue{Limit: &limit}
}

// Granted reports whether the feature allows any use at all. Numeric limits
// grant unless they are exactly zero; negative limits mean unlimited.
func (v FeatureValue) Granted() bool {
	if v.Limit != nil {
		return *v.Limit != 0
	}
	return v.Enabled
}

// UnmarshalJSON accepts a JSON boolean or number. Anything else is rejected
// so malformed tier rows are caught at the store boundary rather than at
// authorization time.
func (v *FeatureValue) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = FeatureValue{Enabled: b}
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = FeatureValue{Limit: &n}
		return nil
	}
	return fmt.Errorf("%w: feature value must be a boolean or an integer, got %s", ErrInvalidInput, data)
}

// MarshalJSON writes the value back in the same shape it was read in.
func (v FeatureValue) MarshalJSON() ([]byte, error) {
	if v.Limit != nil {
		return json.Marshal(*v.Limit)
	}
	return json.Marshal(v.Enabled)
}

// FeatureSet maps feature names to their values for a subscription tier.
type FeatureSet map[string]FeatureValue

// Granted reports whether the named feature exists and allows use.
// Absent features never grant.
func (fs FeatureSet) Granted(name string) bool {
	v, ok := fs[name]
	return ok && v.Granted()
}

// Names returns the feature names in sorted order.
func (fs FeatureSet) Names() []string {
	names := make([]string, 0, len(fs))
	for name := range fs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseFeatureSet decodes a raw JSON feature object, typically a jsonb column.
func ParseFeatureSet(raw []byte) (FeatureSet, error) {
	if len(raw) == 0 {
		return FeatureSet{}, nil
	}
	var fs FeatureSet
	if err := json.Unmarshal(raw, &fs); err != nil {
		return nil, fmt.Errorf("%w: decode feature set: %v", ErrDataIntegrity, err)
	}
	if fs == nil {
		fs = FeatureSet{}
	}
	return fs, nil
}
