package parser

import (
	"errors"
	"strings"

	"github.com/arc-self/streamcodec/internal/codec/event"
	"github.com/arc-self/streamcodec/internal/codec/reader"
	"github.com/arc-self/streamcodec/internal/codec/schema"
	"github.com/arc-self/streamcodec/internal/codec/value"
)

// DsvSettings configures the delimited Parser (spec §4.1). The
// delimited Formatter has its own formatter.DsvSettings.
type DsvSettings struct {
	KeyColumnNames   *[]string // nil means "no key columns configured"
	ValueColumnNames []string
	Separator        rune
}

// ErrUpsertNotSupportedByDelimitedParser resolves the delimited side of
// the Open Question in spec §9: readers must not emit Upsert tags to
// the delimited parser. Detected per-record as a returned configuration
// error rather than a panic.
var ErrUpsertNotSupportedByDelimitedParser = errors.New("readers can't send upsert events to the delimited parser")

type dsvColumnIndex struct {
	isMetadata bool
	index      int
	field      schema.InnerSchemaField
}

// DsvParser implements spec §4.1: header discipline, record tokenizing,
// and the shared ParseWithType token-parsing policy.
type DsvParser struct {
	settings DsvSettings
	schema   schema.Schema

	header             []string
	keyColumnIndices   []dsvColumnIndex // nil when no key columns configured
	hasKeyColumns      bool
	valueColumnIndices []dsvColumnIndex
	dsvHeaderRead      bool

	metadataValue value.Value
}

// NewDsvParser validates that every configured key/value field name
// appears in the schema (spec §3 invariant) before returning a usable
// parser.
func NewDsvParser(settings DsvSettings, sch schema.Schema) (*DsvParser, error) {
	var keyNames []string
	if settings.KeyColumnNames != nil {
		keyNames = *settings.KeyColumnNames
	}
	if err := schema.EnsureFieldsInSchema(keyNames, settings.ValueColumnNames, sch); err != nil {
		return nil, err
	}
	return &DsvParser{
		settings:      settings,
		schema:        sch,
		metadataValue: value.None,
		hasKeyColumns: settings.KeyColumnNames != nil,
	}, nil
}

func columnIndicesByNames(tokenizedHeader, soughtNames []string, sch schema.Schema) ([]dsvColumnIndex, error) {
	valueIndicesFound := 0
	columnIndices := make([]dsvColumnIndex, len(soughtNames))
	for i := range columnIndices {
		columnIndices[i] = dsvColumnIndex{isMetadata: true}
	}

	requestedIndices := map[string][]int{}
	for idx, field := range soughtNames {
		if field == schema.MetadataFieldName {
			valueIndicesFound++
			continue
		}
		requestedIndices[field] = append(requestedIndices[field], idx)
	}

	// Duplicate header columns bind every requested occurrence to the
	// same position, but a repeated header name overwrites the slot on
	// each pass, so the last duplicate in header order wins (spec §9
	// design note, ported from column_indices_by_names).
	for headerIdx, headerName := range tokenizedHeader {
		indices, ok := requestedIndices[headerName]
		if !ok {
			continue
		}
		schemaItem := sch[headerName]
		for _, reqIdx := range indices {
			if columnIndices[reqIdx].isMetadata {
				valueIndicesFound++ // count each requested slot once, however many duplicates rebind it
			}
			columnIndices[reqIdx] = dsvColumnIndex{index: headerIdx, field: schemaItem}
		}
	}

	if valueIndicesFound == len(soughtNames) {
		return columnIndices, nil
	}
	return nil, &ErrFieldsNotFoundInHeader{Parsed: tokenizedHeader, Requested: soughtNames}
}

func (p *DsvParser) parseDsvHeader(tokens []string) error {
	if p.hasKeyColumns {
		indices, err := columnIndicesByNames(tokens, *p.settings.KeyColumnNames, p.schema)
		if err != nil {
			return err
		}
		p.keyColumnIndices = indices
	}
	indices, err := columnIndicesByNames(tokens, p.settings.ValueColumnNames, p.schema)
	if err != nil {
		return err
	}
	p.valueColumnIndices = indices
	p.header = append([]string(nil), tokens...)
	p.dsvHeaderRead = true
	return nil
}

func (p *DsvParser) valuesByIndices(tokens []string, indices []dsvColumnIndex) []event.FallibleValue {
	out := make([]event.FallibleValue, len(indices))
	for i, idx := range indices {
		if idx.isMetadata {
			out[i] = event.Ok(p.metadataValue)
			continue
		}
		v, err := ParseWithType(tokens[idx.index], idx.field, p.header[idx.index])
		if err != nil {
			out[i] = event.Err(err)
		} else {
			out[i] = event.Ok(v)
		}
	}
	return out
}

func keyFromFallibleValues(fields []event.FallibleValue) event.FallibleKey {
	values := make([]value.Value, len(fields))
	for i, f := range fields {
		if f.IsError() {
			return event.KeyErr(f.Err)
		}
		values[i] = f.Value
	}
	return event.KeyOf(values)
}

func (p *DsvParser) parseTokenizedEntries(evt reader.DataEventType, tokens []string) ([]event.ParsedEventWithErrors, error) {
	if len(tokens) == 1 && isCommitLiteral(tokens[0]) {
		return []event.ParsedEventWithErrors{event.AdvanceTime()}, nil
	}

	if !p.dsvHeaderRead {
		if err := p.parseDsvHeader(tokens); err != nil {
			return nil, err
		}
		return nil, nil
	}

	inBounds := func(indices []dsvColumnIndex) bool {
		for _, idx := range indices {
			if !idx.isMetadata && idx.index >= len(tokens) {
				return false
			}
		}
		return true
	}
	if !inBounds(p.keyColumnIndices) || !inBounds(p.valueColumnIndices) {
		return nil, &ErrUnexpectedNumberOfCSVTokens{TokenCount: len(tokens)}
	}

	var key event.FallibleKey
	if p.hasKeyColumns {
		key = keyFromFallibleValues(p.valuesByIndices(tokens, p.keyColumnIndices))
	} else {
		key = event.NoKey()
	}
	values := p.valuesByIndices(tokens, p.valueColumnIndices)

	switch evt {
	case event.Insert:
		return []event.ParsedEventWithErrors{event.NewInsert(key, values)}, nil
	case event.Delete:
		return []event.ParsedEventWithErrors{event.NewDelete(key, values)}, nil
	default:
		return nil, ErrUpsertNotSupportedByDelimitedParser
	}
}

func (p *DsvParser) parseBytesSimple(evt reader.DataEventType, raw []byte) ([]event.ParsedEventWithErrors, error) {
	line, err := preparePlaintextString(raw)
	if err != nil {
		return nil, err
	}
	if line == "" {
		return nil, nil
	}
	if isCommitLiteral(line) {
		return []event.ParsedEventWithErrors{event.AdvanceTime()}, nil
	}
	tokens := strings.Split(line, string(p.settings.Separator))
	return p.parseTokenizedEntries(evt, tokens)
}

func (p *DsvParser) Parse(ctx reader.Context) ([]event.ParsedEventWithErrors, error) {
	if evt, raw, ok := ctx.AsRawBytes(); ok {
		return p.parseBytesSimple(evt, raw)
	}
	if evt, tokens, ok := ctx.AsTokenizedEntries(); ok {
		return p.parseTokenizedEntries(evt, tokens)
	}
	if key, val, hasKey, hasValue, ok := ctx.AsKeyValue(); ok {
		_ = key
		if !hasValue {
			return nil, ErrEmptyKafkaPayload
		}
		return p.parseBytesSimple(event.Insert, val) // Kafka only carries additions
	}
	if ctx.IsEmpty() {
		return nil, nil
	}
	return nil, reader.ErrUnsupportedReaderContext
}

func (p *DsvParser) OnNewSourceStarted(metadata SourceMetadata) {
	p.dsvHeaderRead = false
	if metadata != nil {
		p.metadataValue = metadata.ToValue()
	}
}

func (p *DsvParser) ColumnCount() int { return len(p.settings.ValueColumnNames) }

func (p *DsvParser) SessionType() event.SessionType { return event.Native }

func preparePlaintextString(raw []byte) (string, error) {
	if !isValidUTF8(raw) {
		return "", &ErrUtf8DecodeFailed{}
	}
	return strings.TrimSpace(string(raw)), nil
}

// ErrUtf8DecodeFailed is returned when a raw-bytes record is not valid
// UTF-8 (spec §7).
type ErrUtf8DecodeFailed struct{}

func (e *ErrUtf8DecodeFailed) Error() string {
	return "received plaintext message is not in utf-8 format"
}
