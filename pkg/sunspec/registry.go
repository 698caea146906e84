package sunspec

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Registry is the fixed model id -> model definition table.
type Registry struct {
	models map[int]Model
	logger *zap.Logger
}

// NewRegistry builds the registry with the built-in model table.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		models: builtinModels(),
		logger: logger.With(zap.String("component", "sunspec")),
	}
}

// Model returns a model definition by id.
func (r *Registry) Model(modelID int) (Model, bool) {
	m, ok := r.models[modelID]
	return m, ok
}

// Models returns the full catalog.
func (r *Registry) Models() map[int]Model {
	return r.models
}

// Point returns a point definition by model and point id.
func (r *Registry) Point(modelID int, pointID string) (PointDef, bool) {
	m, ok := r.models[modelID]
	if !ok {
		return PointDef{}, false
	}
	p, ok := m.Points[pointID]
	return p, ok
}

// ParseValue coerces raw to the point's declared type. Unknown models,
// points or types return raw unchanged, and so does a failed coercion:
// parsing is best-effort and never an error for the caller.
func (r *Registry) ParseValue(modelID int, pointID string, raw any) any {
	def, ok := r.Point(modelID, pointID)
	if !ok {
		return raw
	}
	parsed, err := coerce(raw, def.Type)
	if err != nil {
		r.logger.Warn("failed to parse point value",
			zap.Int("model", modelID), zap.String("point", pointID),
			zap.String("type", def.Type.String()), zap.Any("value", raw))
		return raw
	}
	return parsed
}

// FormatValue renders raw for display: "N/A" for nil, two fraction
// digits for floats, default string form otherwise, with the declared
// unit appended when one exists. Unknown points render with no unit.
func (r *Registry) FormatValue(modelID int, pointID string, raw any) string {
	if raw == nil {
		return "N/A"
	}
	def, ok := r.Point(modelID, pointID)
	if !ok {
		return fmt.Sprintf("%v", raw)
	}

	var formatted string
	if def.Type == TypeFloat {
		f, err := toFloat(raw)
		if err != nil {
			formatted = fmt.Sprintf("%v", raw)
		} else {
			formatted = strconv.FormatFloat(f, 'f', 2, 64)
		}
	} else {
		formatted = fmt.Sprintf("%v", raw)
	}

	if def.Unit != "" {
		formatted += " " + def.Unit
	}
	return formatted
}

// ValidateValue checks raw against the point's declared type. Unknown
// points are valid since there is nothing to check against; unsigned
// types additionally reject negative values.
func (r *Registry) ValidateValue(modelID int, pointID string, raw any) bool {
	def, ok := r.Point(modelID, pointID)
	if !ok {
		return true
	}
	parsed, err := coerce(raw, def.Type)
	if err != nil {
		return false
	}
	if def.Type.Unsigned() {
		if n, ok := parsed.(int64); ok && n < 0 {
			return false
		}
	}
	return true
}

// coerce converts raw to the Go representation of a declared type:
// float64 for floats, int64 for every integer and enum type, string and
// bool for the rest. Unknown types pass through.
func coerce(raw any, t DataType) (any, error) {
	switch {
	case t == TypeFloat:
		return toFloat(raw)
	case t.Integer():
		return toInt(raw)
	case t == TypeString:
		return fmt.Sprintf("%v", raw), nil
	case t == TypeBool:
		return toBool(raw)
	}
	return raw, nil
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return 0, fmt.Errorf("sunspec: cannot coerce %T to float", raw)
}

func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("sunspec: cannot coerce %T to integer", raw)
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	}
	return false, fmt.Errorf("sunspec: cannot coerce %T to bool", raw)
}
