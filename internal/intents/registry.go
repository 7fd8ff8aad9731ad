package intents

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	errEmptyKind        = errors.New("definition kind must not be empty")
	errNilPayload       = errors.New("payload prototype must not be nil")
	errNonPointer       = errors.New("payload prototype must be a pointer")
	errNonStructPointer = errors.New("payload prototype must point to a struct")
)

// Definition binds an intent kind to its payload prototype. Undoable marks
// kinds whose submissions participate in correlation-id undo; one-shot kinds
// rely on the server's own history instead.
type Definition struct {
	Kind     Kind
	Undoable bool
	Payload  Payload
}

// Registry is the set of intent definitions the editor may submit. Callers
// should Validate before use.
type Registry []Definition

// DefaultRegistry lists the built-in editor intents.
func DefaultRegistry() Registry {
	return Registry{
		{Kind: KindTransform, Undoable: true, Payload: &TransformPayload{}},
		{Kind: KindSpawn, Payload: &SpawnPayload{}},
		{Kind: KindDuplicate, Payload: &DuplicatePayload{}},
		{Kind: KindDelete, Payload: &DeletePayload{}},
	}
}

// Validate ensures the registry contains unique kinds and structurally valid
// payload prototypes.
func (r Registry) Validate() error {
	seen := make(map[Kind]struct{}, len(r))
	for _, def := range r {
		if err := def.validate(); err != nil {
			return fmt.Errorf("intents: %w", err)
		}
		if _, exists := seen[def.Kind]; exists {
			return fmt.Errorf("intents: duplicate definition kind %q", def.Kind)
		}
		seen[def.Kind] = struct{}{}
	}
	return nil
}

func (d Definition) validate() error {
	if strings.TrimSpace(string(d.Kind)) == "" {
		return errEmptyKind
	}
	if d.Payload == nil {
		return fmt.Errorf("%q: %w", d.Kind, errNilPayload)
	}
	t := reflect.TypeOf(d.Payload)
	if t.Kind() != reflect.Ptr {
		return fmt.Errorf("%q: %w (%s)", d.Kind, errNonPointer, t)
	}
	if t.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%q: %w (%s)", d.Kind, errNonStructPointer, t)
	}
	return nil
}

// Index materialises a lookup map from the registry after validation.
func (r Registry) Index() (map[Kind]Definition, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	out := make(map[Kind]Definition, len(r))
	for _, def := range r {
		out[def.Kind] = def
	}
	return out, nil
}

// MustIndex materialises the registry and panics if validation fails. Useful
// for tests and static wiring.
func (r Registry) MustIndex() map[Kind]Definition {
	index, err := r.Index()
	if err != nil {
		panic(err)
	}
	return index
}
