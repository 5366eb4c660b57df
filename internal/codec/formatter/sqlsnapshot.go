package formatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

// ErrRepeatedValueField is returned at construction time when the same
// value column name is configured twice.
type ErrRepeatedValueField struct{ Name string }

func (e *ErrRepeatedValueField) Error() string { return fmt.Sprintf("repeated value field %q", e.Name) }

// ErrUnknownKeyField is returned at construction time when a configured
// key field name isn't among the value field names.
type ErrUnknownKeyField struct{ Name string }

func (e *ErrUnknownKeyField) Error() string { return fmt.Sprintf("unknown key field %q", e.Name) }

// PsqlSnapshotFormatter emits an upsert (INSERT ... ON CONFLICT) that
// keeps only the row with the latest (time, diff) ordering for a given
// key, implementing spec §4.10's snapshot-materialization contract.
// customExpressions lets a column's insert/update expression be
// overridden, with "$?" substituted for that column's placeholder
// ordinal.
type PsqlSnapshotFormatter struct {
	tableName       string
	keyFieldNames   []string
	valueFieldNames []string

	keyFieldPositions   []int
	valueFieldPositions []int
	customExpressions   map[string]string
}

func NewPsqlSnapshotFormatter(tableName string, keyFieldNames, valueFieldNames []string, customExpressions map[string]string) (*PsqlSnapshotFormatter, error) {
	fieldPositions := make(map[string]int, len(valueFieldNames))
	for i, name := range valueFieldNames {
		if _, ok := fieldPositions[name]; ok {
			return nil, &ErrRepeatedValueField{Name: name}
		}
		fieldPositions[name] = i
	}

	keyFieldPositions := make([]int, 0, len(keyFieldNames))
	for _, name := range keyFieldNames {
		pos, ok := fieldPositions[name]
		if !ok {
			return nil, &ErrUnknownKeyField{Name: name}
		}
		delete(fieldPositions, name)
		keyFieldPositions = append(keyFieldPositions, pos)
	}

	valueFieldPositions := make([]int, 0, len(fieldPositions))
	for _, pos := range fieldPositions {
		valueFieldPositions = append(valueFieldPositions, pos)
	}

	sort.Ints(keyFieldPositions)
	sort.Ints(valueFieldPositions)

	if customExpressions == nil {
		customExpressions = map[string]string{}
	}

	return &PsqlSnapshotFormatter{
		tableName:           tableName,
		keyFieldNames:       keyFieldNames,
		valueFieldNames:     valueFieldNames,
		keyFieldPositions:   keyFieldPositions,
		valueFieldPositions: valueFieldPositions,
		customExpressions:   customExpressions,
	}, nil
}

func (f *PsqlSnapshotFormatter) Format(key value.Key, values []value.Value, time int64, diff int) (Context, error) {
	if len(values) != len(f.valueFieldNames) {
		return Context{}, ErrColumnsValuesCountMismatch
	}

	conditions := make([]string, len(f.keyFieldPositions))
	for i, pos := range f.keyFieldPositions {
		conditions[i] = fmt.Sprintf("%s.%s=$%d", f.tableName, f.valueFieldNames[pos], pos+1)
	}
	updateCondition := strings.Join(conditions, " AND ")

	updatePairs := make([]string, len(f.valueFieldNames))
	for i, name := range f.valueFieldNames {
		updatePairs[i] = fmt.Sprintf("%s=excluded.%s", name, name)
	}

	insertValues := make([]string, len(values))
	for i, name := range f.valueFieldNames {
		placeholder := fmt.Sprintf("$%d", i+1)
		if custom, ok := f.customExpressions[name]; ok {
			insertValues[i] = strings.ReplaceAll(custom, "$?", placeholder)
		} else {
			insertValues[i] = placeholder
		}
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s, time, diff)\nVALUES (%s, %d, %d)\nON CONFLICT DO UPDATE SET %s, time=%d, diff=%d\nWHERE %s AND (%s.time<%d OR (%s.time=%d AND %s.diff=-1))\n",
		f.tableName,
		strings.Join(f.valueFieldNames, ","),
		strings.Join(insertValues, ","),
		time, diff,
		strings.Join(updatePairs, ","), time, diff,
		updateCondition,
		f.tableName, time,
		f.tableName, time,
		f.tableName,
	)

	return NewSinglePayloadContext([]byte(stmt), key, values, time, diff), nil
}
