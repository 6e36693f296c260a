package mapper

import (
	"encoding/json"

	"github.com/fulfillsync/mirror/internal/vendorapi"
)

// Column value conversions. The rules, in order:
//   - absent numeric fields become NULL, except the default-0
//     counters (total_products, total_picklists, amount,
//     amount_picked, comment_count, weight) which use intOrZero;
//   - absent or blank strings become NULL;
//   - booleans become 0/1 smallints;
//   - datetimes parse to time.Time or NULL;
//   - arrays and nested objects without their own child table are
//     serialized to JSON text.

func intOrNull(r vendorapi.Record, k string) any {
	if v, ok := r.Int64(k); ok {
		return v
	}
	return nil
}

func intOrZero(r vendorapi.Record, k string) any {
	if v, ok := r.Int64(k); ok {
		return v
	}
	return int64(0)
}

func floatOrNull(r vendorapi.Record, k string) any {
	if v, ok := r[k].(float64); ok {
		return v
	}
	return nil
}

func strOrNull(r vendorapi.Record, k string) any {
	if s, ok := r.Str(k); ok && s != "" {
		return s
	}
	return nil
}

func bool01(r vendorapi.Record, k string) any {
	if v, ok := r[k].(bool); ok {
		if v {
			return int16(1)
		}
		return int16(0)
	}
	return nil
}

func timeOrNull(r vendorapi.Record, k string) any {
	if t, ok := r.Time(k); ok {
		return t
	}
	return nil
}

// jsonOrNull serializes an array or nested-object field to JSON text.
// Upstream JSON is carried opaquely, never normalized into types.
func jsonOrNull(r vendorapi.Record, k string) any {
	v, ok := r[k]
	if !ok || v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}
