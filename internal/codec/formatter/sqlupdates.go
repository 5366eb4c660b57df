package formatter

import (
	"fmt"
	"strings"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

// PsqlUpdatesFormatter emits one INSERT statement per event, appending
// time and diff as trailing columns (spec §4.9). It never conflicts on
// the primary key: every row revision is a distinct insert, left to the
// sink's own compaction.
type PsqlUpdatesFormatter struct {
	tableName       string
	valueFieldNames []string
}

func NewPsqlUpdatesFormatter(tableName string, valueFieldNames []string) *PsqlUpdatesFormatter {
	return &PsqlUpdatesFormatter{tableName: tableName, valueFieldNames: valueFieldNames}
}

func (f *PsqlUpdatesFormatter) Format(key value.Key, values []value.Value, time int64, diff int) (Context, error) {
	if len(values) != len(f.valueFieldNames) {
		return Context{}, ErrColumnsValuesCountMismatch
	}

	placeholders := make([]string, len(values))
	for i := range values {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s,time,diff) VALUES (%s,%d,%d)\n",
		f.tableName,
		strings.Join(f.valueFieldNames, ","),
		strings.Join(placeholders, ","),
		time,
		diff,
	)

	return NewSinglePayloadContext([]byte(stmt), key, values, time, diff), nil
}
