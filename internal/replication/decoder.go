// Package replication decodes PostgreSQL logical replication messages
// (pglogrepl) into the Debezium-style JSON envelope the codec's
// debezium parser already understands: {"payload":{"op":...,
// "before":...,"after":...}}. The teacher's cdc-worker only ever
// forwarded inserts straight to an outbox row shape; this generalizes
// the same relation-registry approach to the full insert/update/delete
// set a CDC source has to cover.
package replication

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pglogrepl"
	"go.uber.org/zap"
)

// envelope mirrors the subset of the Debezium JSON shape the codec's
// debezium parser reads from payload.op/before/after.
type envelope struct {
	Payload payload `json:"payload"`
}

type payload struct {
	Op     string         `json:"op"`
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// Decoder maintains a registry of RelationMessages keyed by relation ID
// so that tuple columns can be matched against column names.
type Decoder struct {
	relations map[uint32]*pglogrepl.RelationMessageV2
	logger    *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{
		relations: make(map[uint32]*pglogrepl.RelationMessageV2),
		logger:    logger,
	}
}

// RegisterRelation stores a RelationMessage for later column lookups.
func (d *Decoder) RegisterRelation(msg *pglogrepl.RelationMessageV2) {
	d.relations[msg.RelationID] = msg
	d.logger.Debug("registered relation",
		zap.String("table", msg.RelationName),
		zap.Uint32("relationID", msg.RelationID),
	)
}

// tupleToMap builds a column-name -> value map from a WAL tuple,
// matching columns positionally against the registered relation.
// An unchanged-TOAST column ('u') is omitted rather than guessed at;
// a null column ('n') comes through as an explicit nil.
func (d *Decoder) tupleToMap(relationID uint32, tuple *pglogrepl.TupleData) (map[string]any, error) {
	rel, ok := d.relations[relationID]
	if !ok {
		return nil, fmt.Errorf("unknown relation ID %d", relationID)
	}
	if tuple == nil {
		return nil, nil
	}

	values := make(map[string]any, len(tuple.Columns))
	for i, col := range tuple.Columns {
		if i >= len(rel.Columns) {
			break
		}
		colName := rel.Columns[i].Name
		switch col.DataType {
		case 'n':
			values[colName] = nil
		case 'u':
			continue
		default: // 't' text, or binary — both arrive as the raw column bytes
			values[colName] = string(col.Data)
		}
	}
	return values, nil
}

func (d *Decoder) marshal(op string, before, after map[string]any) ([]byte, error) {
	env := envelope{Payload: payload{Op: op, Before: before, After: after}}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal replication envelope: %w", err)
	}
	return data, nil
}

// DecodeInsert produces a Debezium "c" envelope from a WAL insert.
func (d *Decoder) DecodeInsert(msg *pglogrepl.InsertMessageV2) ([]byte, error) {
	after, err := d.tupleToMap(msg.RelationID, msg.Tuple)
	if err != nil {
		return nil, err
	}
	data, err := d.marshal("c", nil, after)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("decoded insert", zap.Uint32("relationID", msg.RelationID))
	return data, nil
}

// DecodeUpdate produces a Debezium "u" envelope from a WAL update. The
// old tuple is only present when the table's REPLICA IDENTITY includes
// it (FULL, or the key columns under DEFAULT); absent old tuples come
// through with Before == nil.
func (d *Decoder) DecodeUpdate(msg *pglogrepl.UpdateMessageV2) ([]byte, error) {
	before, err := d.tupleToMap(msg.RelationID, msg.OldTuple)
	if err != nil {
		return nil, err
	}
	after, err := d.tupleToMap(msg.RelationID, msg.NewTuple)
	if err != nil {
		return nil, err
	}
	data, err := d.marshal("u", before, after)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("decoded update", zap.Uint32("relationID", msg.RelationID))
	return data, nil
}

// DecodeDelete produces a Debezium "d" envelope from a WAL delete.
func (d *Decoder) DecodeDelete(msg *pglogrepl.DeleteMessageV2) ([]byte, error) {
	before, err := d.tupleToMap(msg.RelationID, msg.OldTuple)
	if err != nil {
		return nil, err
	}
	data, err := d.marshal("d", before, nil)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("decoded delete", zap.Uint32("relationID", msg.RelationID))
	return data, nil
}
