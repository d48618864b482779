package convert

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Layouts accepted when parsing time strings, most specific first.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// String converts text-like values. Numbers and booleans are formatted.
func String(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case fmt.Stringer:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("unsupported type %T", v)
}

// Int64 converts integer, float (only when integral), boolean and numeric
// string values.
func Int64(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case uint:
		return uintToInt64(uint64(val))
	case uint64:
		return uintToInt64(val)
	case uint32:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case float64:
		return floatToInt64(val)
	case float32:
		return floatToInt64(float64(val))
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func uintToInt64(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("%d overflows int64", u)
	}
	return int64(u), nil
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

// Float64 converts numeric and numeric string values.
func Float64(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(val), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
	case bool:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	n, err := Int64(v)
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}

// Bool converts booleans, integers (0 is false) and the usual textual forms.
func Bool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		return parseBool(val)
	case []byte:
		return parseBool(string(val))
	case float32, float64:
		f, _ := Float64(val)
		return f != 0, nil
	}
	n, err := Int64(v)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes", "y":
		return true, nil
	case "false", "f", "0", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// Time converts time.Time, its pointer, unix seconds and RFC3339 or SQL
// formatted strings.
func Time(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case *time.Time:
		if val == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *val, nil
	case string:
		return parseTime(val)
	case []byte:
		return parseTime(string(val))
	case int64:
		return time.Unix(val, 0).UTC(), nil
	case int:
		return time.Unix(int64(val), 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported type %T", v)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// UUID converts uuid.UUID, 16-byte slices and textual UUIDs.
func UUID(v any) (uuid.UUID, error) {
	switch val := v.(type) {
	case uuid.UUID:
		return val, nil
	case string:
		return uuid.Parse(val)
	case []byte:
		if len(val) == 16 {
			return uuid.FromBytes(val)
		}
		return uuid.ParseBytes(val)
	}
	return uuid.Nil, fmt.Errorf("unsupported type %T", v)
}

func encodeJSON(v any) (string, error) {
	switch val := v.(type) {
	case string:
		if !json.Valid([]byte(val)) {
			return "", fmt.Errorf("invalid JSON text")
		}
		return val, nil
	case []byte:
		if !json.Valid(val) {
			return "", fmt.Errorf("invalid JSON text")
		}
		return string(val), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(v any) (any, error) {
	var raw []byte
	switch val := v.(type) {
	case string:
		raw = []byte(val)
	case []byte:
		raw = val
	default:
		// Already decoded by the driver.
		return v, nil
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
