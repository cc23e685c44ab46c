package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// envelope is the flattened wire form of a Transform: the variant's fields
// inline next to a "type" discriminator.
type envelope struct {
	Type Kind `json:"type"`

	ColumnID    string `json:"column_id,omitempty"`
	NewColumnID string `json:"new_column_id,omitempty"`

	DataType string           `json:"data_type,omitempty"`
	Errors   ConversionErrors `json:"errors,omitempty"`

	Ascending  *bool      `json:"ascending,omitempty"`
	NaPosition NaPosition `json:"na_position,omitempty"`

	Operation FilterOperation `json:"operation,omitempty"`
	Where     []Condition     `json:"where,omitempty"`

	ColumnIDs          []string      `json:"column_ids,omitempty"`
	Aggregation        Aggregation   `json:"aggregation,omitempty"`
	Aggregations       []Aggregation `json:"aggregations,omitempty"`
	AggregateColumnIDs []string      `json:"aggregate_column_ids,omitempty"`
	DropNA             bool          `json:"drop_na,omitempty"`

	Seed    *int64 `json:"seed,omitempty"`
	N       int    `json:"n,omitempty"`
	Replace bool   `json:"replace,omitempty"`

	Keep KeepPolicy `json:"keep,omitempty"`

	PivotColumnIDs []string `json:"pivot_column_ids,omitempty"`
	IndexColumnIDs []string `json:"index_column_ids,omitempty"`
	ValueColumnIDs []string `json:"value_column_ids,omitempty"`
}

// Marshal encodes one transform into its tagged wire form.
func Marshal(t Transform) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("transform: cannot marshal nil transform")
	}
	env := envelope{Type: t.Kind()}
	switch v := t.(type) {
	case ColumnConversion:
		env.ColumnID, env.DataType, env.Errors = v.ColumnID, v.DataType, v.Errors
	case RenameColumn:
		env.ColumnID, env.NewColumnID = v.ColumnID, v.NewColumnID
	case SortColumn:
		asc := v.Ascending
		env.ColumnID, env.Ascending, env.NaPosition = v.ColumnID, &asc, v.NaPosition
	case FilterRows:
		env.Operation, env.Where = v.Operation, v.Where
	case GroupBy:
		env.ColumnIDs, env.Aggregation = v.ColumnIDs, v.Aggregation
		env.AggregateColumnIDs, env.DropNA = v.AggregateColumnIDs, v.DropNA
	case Aggregate:
		env.ColumnIDs, env.Aggregations = v.ColumnIDs, v.Aggregations
	case SelectColumns:
		env.ColumnIDs = v.ColumnIDs
	case ShuffleRows:
		seed := v.Seed
		env.Seed = &seed
	case SampleRows:
		seed := v.Seed
		env.N, env.Seed, env.Replace = v.N, &seed, v.Replace
	case ExplodeColumns:
		env.ColumnIDs = v.ColumnIDs
	case ExpandDict:
		env.ColumnID = v.ColumnID
	case Unique:
		env.ColumnIDs, env.Keep = v.ColumnIDs, v.Keep
	case Pivot:
		env.PivotColumnIDs, env.IndexColumnIDs = v.PivotColumnIDs, v.IndexColumnIDs
		env.ValueColumnIDs, env.Aggregation = v.ValueColumnIDs, v.Aggregation
	default:
		return nil, fmt.Errorf("transform: unknown transform type %T", t)
	}
	return json.Marshal(env)
}

// Unmarshal decodes one tagged wire form into its typed variant. Unknown
// discriminants fail; the set of kinds is closed.
func Unmarshal(data []byte) (Transform, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("transform: decode: %w", err)
	}
	switch env.Type {
	case KindColumnConversion:
		return ColumnConversion{ColumnID: env.ColumnID, DataType: env.DataType, Errors: env.Errors}, nil
	case KindRenameColumn:
		return RenameColumn{ColumnID: env.ColumnID, NewColumnID: env.NewColumnID}, nil
	case KindSortColumn:
		asc := true
		if env.Ascending != nil {
			asc = *env.Ascending
		}
		return SortColumn{ColumnID: env.ColumnID, Ascending: asc, NaPosition: env.NaPosition}, nil
	case KindFilterRows:
		return FilterRows{Operation: env.Operation, Where: env.Where}, nil
	case KindGroupBy:
		return GroupBy{
			ColumnIDs:          env.ColumnIDs,
			Aggregation:        env.Aggregation,
			AggregateColumnIDs: env.AggregateColumnIDs,
			DropNA:             env.DropNA,
		}, nil
	case KindAggregate:
		return Aggregate{ColumnIDs: env.ColumnIDs, Aggregations: env.Aggregations}, nil
	case KindSelectColumns:
		return SelectColumns{ColumnIDs: env.ColumnIDs}, nil
	case KindShuffleRows:
		var seed int64
		if env.Seed != nil {
			seed = *env.Seed
		}
		return ShuffleRows{Seed: seed}, nil
	case KindSampleRows:
		var seed int64
		if env.Seed != nil {
			seed = *env.Seed
		}
		return SampleRows{N: env.N, Seed: seed, Replace: env.Replace}, nil
	case KindExplodeColumns:
		return ExplodeColumns{ColumnIDs: env.ColumnIDs}, nil
	case KindExpandDict:
		return ExpandDict{ColumnID: env.ColumnID}, nil
	case KindUnique:
		return Unique{ColumnIDs: env.ColumnIDs, Keep: env.Keep}, nil
	case KindPivot:
		return Pivot{
			PivotColumnIDs: env.PivotColumnIDs,
			IndexColumnIDs: env.IndexColumnIDs,
			ValueColumnIDs: env.ValueColumnIDs,
			Aggregation:    env.Aggregation,
		}, nil
	default:
		return nil, fmt.Errorf("transform: unknown transform kind %q", env.Type)
	}
}

// Transformations is an ordered transform list: both the operation log sent
// by the frontend and the replay instruction the container compares against.
type Transformations []Transform

// MarshalJSON encodes the list in tagged wire form.
func (ts Transformations) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(ts))
	for _, t := range ts {
		raw, err := Marshal(t)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a tagged wire list.
func (ts *Transformations) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("transform: decode list: %w", err)
	}
	decoded := make(Transformations, 0, len(raws))
	for i, raw := range raws {
		t, err := Unmarshal(raw)
		if err != nil {
			return fmt.Errorf("transform: entry %d: %w", i, err)
		}
		decoded = append(decoded, t)
	}
	*ts = decoded
	return nil
}

// Equal reports structural equality: same length, same kinds, same
// parameters, same order. Comparison goes through the canonical wire form so
// every variant's fields participate.
func (ts Transformations) Equal(other Transformations) bool {
	if len(ts) != len(other) {
		return false
	}
	for i := range ts {
		if !equalTransform(ts[i], other[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether ts begins with exactly prefix, element by
// element. The match is order-sensitive and structural; there is no fuzzy
// reordering, a diverged history always forces a full replay.
func (ts Transformations) HasPrefix(prefix Transformations) bool {
	if len(prefix) > len(ts) {
		return false
	}
	return ts[:len(prefix)].Equal(prefix)
}

// Validate checks every entry.
func (ts Transformations) Validate() error {
	for i, t := range ts {
		if t == nil {
			return fmt.Errorf("transform: entry %d is nil", i)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("transform: entry %d: %w", i, err)
		}
	}
	return nil
}

func equalTransform(a, b Transform) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	ja, errA := Marshal(a)
	jb, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
