// Package event implements the event algebra shared by every parser: the
// error-carrying ParsedEventWithErrors, its error-free projection
// ParsedEvent, and the session-type dispatch between them (spec §3).
package event

import (
	"fmt"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

// SessionType is the contract between a source and the engine about
// whether the source emits absolute row operations (Native) or
// key-indexed state transitions (Upsert).
type SessionType int

const (
	Native SessionType = iota
	Upsert
)

func (s SessionType) String() string {
	if s == Upsert {
		return "Upsert"
	}
	return "Native"
}

// DataEventType is the transport-level verb attached to a raw record,
// independent of the session-type contract the parser was configured
// with.
type DataEventType int

const (
	Insert DataEventType = iota
	Delete
	UpsertEvent
)

func (d DataEventType) String() string {
	switch d {
	case Insert:
		return "Insert"
	case Delete:
		return "Delete"
	case UpsertEvent:
		return "Upsert"
	default:
		return "Unknown"
	}
}

// FallibleValue is a single field's parse result: either a value or a
// per-field parse error. Representing failures inside the event instead
// of aborting the whole row lets the host choose the error-removal
// policy without a second parser pass (spec §9).
type FallibleValue struct {
	Value value.Value
	Err   error
}

func Ok(v value.Value) FallibleValue  { return FallibleValue{Value: v} }
func Err(err error) FallibleValue     { return FallibleValue{Err: err} }
func (f FallibleValue) IsError() bool { return f.Err != nil }

// FallibleKey is the fallible result of extracting the key fields: if
// key extraction fails the whole event is poisoned (ErrorInKey), never
// surfaced as a per-field error like value fields are.
type FallibleKey struct {
	Present bool
	Values  []value.Value
	Err     error
}

func NoKey() FallibleKey { return FallibleKey{Present: false} }
func KeyOf(values []value.Value) FallibleKey {
	return FallibleKey{Present: true, Values: values}
}
func KeyErr(err error) FallibleKey {
	return FallibleKey{Present: true, Err: err}
}

// ErrInKey wraps a key-extraction failure so it can be distinguished
// from a value-field failure downstream.
type ErrInKey struct {
	Cause error
}

func (e *ErrInKey) Error() string { return fmt.Sprintf("error in primary key, skipping the row: %v", e.Cause) }
func (e *ErrInKey) Unwrap() error { return e.Cause }

// ErrUnexpectedEventForSession resolves the Open Question in spec §9:
// an Insert arriving in an Upsert session (or an Upsert in a Native
// session) is a configuration bug, surfaced as a returned error rather
// than a panic so the caller can detect and report a misconfigured
// reader/parser pairing instead of crashing the process.
type ErrUnexpectedEventForSession struct {
	Session   SessionType
	DataEvent DataEventType
}

func (e *ErrUnexpectedEventForSession) Error() string {
	return fmt.Sprintf("incorrect reader-parser configuration: unexpected %s event in %s session", e.DataEvent, e.Session)
}

// ParsedEventWithErrors is an event whose per-field values may each
// individually be an error.
type ParsedEventWithErrors struct {
	kind   eventKind
	key    FallibleKey
	values []FallibleValue // for Upsert-with-delete, nil and deleted=true
	deleted bool
}

type eventKind int

const (
	kindAdvanceTime eventKind = iota
	kindInsert
	kindUpsert
	kindDelete
)

func AdvanceTime() ParsedEventWithErrors {
	return ParsedEventWithErrors{kind: kindAdvanceTime}
}

// NewParsedEventWithErrors implements the Native/Upsert ×
// Insert/Delete/Upsert dispatch table from the original
// ParsedEventWithErrors::new, returning ErrUnexpectedEventForSession
// instead of panicking.
func NewParsedEventWithErrors(session SessionType, dataEvent DataEventType, key FallibleKey, values []FallibleValue) (ParsedEventWithErrors, error) {
	switch session {
	case Native:
		switch dataEvent {
		case Insert:
			return ParsedEventWithErrors{kind: kindInsert, key: key, values: values}, nil
		case Delete:
			return ParsedEventWithErrors{kind: kindDelete, key: key, values: values}, nil
		default:
			return ParsedEventWithErrors{}, &ErrUnexpectedEventForSession{Session: session, DataEvent: dataEvent}
		}
	case Upsert:
		switch dataEvent {
		case Delete:
			return ParsedEventWithErrors{kind: kindUpsert, key: key, deleted: true}, nil
		case UpsertEvent:
			return ParsedEventWithErrors{kind: kindUpsert, key: key, values: values}, nil
		default:
			return ParsedEventWithErrors{}, &ErrUnexpectedEventForSession{Session: session, DataEvent: dataEvent}
		}
	default:
		return ParsedEventWithErrors{}, &ErrUnexpectedEventForSession{Session: session, DataEvent: dataEvent}
	}
}

func NewInsert(key FallibleKey, values []FallibleValue) ParsedEventWithErrors {
	return ParsedEventWithErrors{kind: kindInsert, key: key, values: values}
}

func NewDelete(key FallibleKey, values []FallibleValue) ParsedEventWithErrors {
	return ParsedEventWithErrors{kind: kindDelete, key: key, values: values}
}

func NewUpsertValues(key FallibleKey, values []FallibleValue) ParsedEventWithErrors {
	return ParsedEventWithErrors{kind: kindUpsert, key: key, values: values}
}

func NewUpsertDelete(key FallibleKey) ParsedEventWithErrors {
	return ParsedEventWithErrors{kind: kindUpsert, key: key, deleted: true}
}

// ErrorRemovalLogic decides, for a fallible value vector, whether to
// drop the row, substitute value.Error, or fail the row outright. It is
// supplied by the host, never hard-coded in a parser.
type ErrorRemovalLogic func([]FallibleValue) ([]value.Value, error)

// RemoveErrors applies logic to a ParsedEventWithErrors, producing its
// error-free ParsedEvent projection. A key-extraction failure always
// poisons the whole event regardless of logic (spec §7).
func (e ParsedEventWithErrors) RemoveErrors(logic ErrorRemovalLogic) (ParsedEvent, error) {
	var key *[]value.Value
	if e.key.Present {
		if e.key.Err != nil {
			return ParsedEvent{}, &ErrInKey{Cause: e.key.Err}
		}
		k := e.key.Values
		key = &k
	}

	switch e.kind {
	case kindAdvanceTime:
		return ParsedEvent{kind: kindAdvanceTime}, nil
	case kindInsert:
		values, err := logic(e.values)
		if err != nil {
			return ParsedEvent{}, err
		}
		return ParsedEvent{kind: kindInsert, key: key, values: values}, nil
	case kindDelete:
		values, err := logic(e.values)
		if err != nil {
			return ParsedEvent{}, err
		}
		return ParsedEvent{kind: kindDelete, key: key, values: values}, nil
	case kindUpsert:
		if e.deleted {
			return ParsedEvent{kind: kindUpsert, key: key, deleted: true}, nil
		}
		values, err := logic(e.values)
		if err != nil {
			return ParsedEvent{}, err
		}
		return ParsedEvent{kind: kindUpsert, key: key, values: values}, nil
	default:
		return ParsedEvent{}, fmt.Errorf("unknown event kind %d", e.kind)
	}
}

// ParsedEvent is the error-free projection of ParsedEventWithErrors.
type ParsedEvent struct {
	kind    eventKind
	key     *[]value.Value // nil when the transport supplies no key
	values  []value.Value
	deleted bool // Upsert(key, None): delete the row at this key
}

func (p ParsedEvent) IsAdvanceTime() bool { return p.kind == kindAdvanceTime }
func (p ParsedEvent) IsInsert() bool      { return p.kind == kindInsert }
func (p ParsedEvent) IsDelete() bool      { return p.kind == kindDelete }
func (p ParsedEvent) IsUpsert() bool      { return p.kind == kindUpsert }

// IsUpsertDelete reports whether an Upsert event carries no values,
// meaning "delete the row at this key".
func (p ParsedEvent) IsUpsertDelete() bool { return p.kind == kindUpsert && p.deleted }

func (p ParsedEvent) Key() ([]value.Value, bool) {
	if p.key == nil {
		return nil, false
	}
	return *p.key, true
}

func (p ParsedEvent) Values() []value.Value { return p.values }

func (p ParsedEvent) String() string {
	switch p.kind {
	case kindAdvanceTime:
		return "AdvanceTime"
	case kindInsert:
		return fmt.Sprintf("Insert(%v, %v)", p.key, p.values)
	case kindDelete:
		return fmt.Sprintf("Delete(%v, %v)", p.key, p.values)
	case kindUpsert:
		if p.deleted {
			return fmt.Sprintf("Upsert(%v, None)", p.key)
		}
		return fmt.Sprintf("Upsert(%v, %v)", p.key, p.values)
	default:
		return "Unknown"
	}
}
