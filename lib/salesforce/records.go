package salesforce

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Record is one flattened result row. Relationship fields arrive from the
// store as nested objects and are flattened one level to dotted-path keys
// (Parent.Field); the per-record attributes metadata is dropped.
type Record map[string]any

// ValueKind tags a field value as either a scalar or a nested relationship
// object. The executor decides the kind while flattening, so consumers never
// inspect runtime types themselves.
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindNested
)

// FieldValue is the tagged variant for one raw field value.
type FieldValue struct {
	Kind   ValueKind
	Scalar any
	Nested map[string]any
}

func classify(v any) FieldValue {
	if m, ok := v.(map[string]any); ok {
		return FieldValue{Kind: KindNested, Nested: m}
	}
	return FieldValue{Kind: KindScalar, Scalar: v}
}

// FlattenRecords converts raw result rows into flat Records.
func FlattenRecords(raw []map[string]any) []Record {
	out := make([]Record, 0, len(raw))
	for _, row := range raw {
		out = append(out, flattenRecord(row))
	}
	return out
}

func flattenRecord(raw map[string]any) Record {
	rec := make(Record, len(raw))
	for key, value := range raw {
		if key == "attributes" {
			continue
		}
		switch fv := classify(value); fv.Kind {
		case KindNested:
			for childKey, childValue := range fv.Nested {
				if childKey == "attributes" {
					continue
				}
				rec[key+"."+childKey] = normalizeScalar(childValue)
			}
		default:
			rec[key] = normalizeScalar(fv.Scalar)
		}
	}
	return rec
}

// normalizeScalar turns json.Number values into decimals so currency and
// quantity fields round-trip without float drift.
func normalizeScalar(v any) any {
	num, ok := v.(json.Number)
	if !ok {
		return v
	}
	d, err := decimal.NewFromString(num.String())
	if err != nil {
		return num.String()
	}
	return d
}
