package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
)

var (
	ErrNotFound       = errors.New("entity not found")
	ErrInvalidPartial = errors.New("partial update does not match the entity fields")
)

// Keys of the entity envelope. They are owned by the store and never taken from a partial update.
const (
	KeyID        = "id"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
)

// Entity is a stored record of one resource kind.
// The envelope (id and timestamps) is managed by the Store, Fields holds the kind-specific values.
type Entity[T any] struct {
	ID        int
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    T
}

// MarshalJSON flattens the envelope and the fields into one JSON object.
func (e Entity[T]) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(e.Fields)
	if err != nil {
		return nil, fmt.Errorf("error marshaling entity fields: %w", err)
	}
	object := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, fmt.Errorf("entity fields must marshal to a JSON object: %w", err)
	}
	for key, value := range map[string]any{KeyID: e.ID, KeyCreatedAt: e.CreatedAt, KeyUpdatedAt: e.UpdatedAt} {
		if object[key], err = json.Marshal(value); err != nil {
			return nil, fmt.Errorf("error marshaling %s: %w", key, err)
		}
	}
	return json.Marshal(object)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
// It is used by clients and tests that read entities from the API.
func (e *Entity[T]) UnmarshalJSON(data []byte) error {
	var envelope struct {
		ID        int       `json:"id"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("error unmarshaling entity envelope: %w", err)
	}
	if err := json.Unmarshal(data, &e.Fields); err != nil {
		return fmt.Errorf("error unmarshaling entity fields: %w", err)
	}
	e.ID, e.CreatedAt, e.UpdatedAt = envelope.ID, envelope.CreatedAt, envelope.UpdatedAt
	return nil
}

// EventType is an enum type to declare the different causes of a store event.
type EventType string

const (
	Creation     EventType = "created"
	Update       EventType = "updated"
	Deletion     EventType = "deleted"
	Periodically EventType = "periodically"
)

// Event describes a successful write operation on a store.
type Event struct {
	Type   EventType `json:"type"`
	Store  string    `json:"resource"`
	ID     int       `json:"id"`
	Entity any       `json:"entity,omitempty"`
	// Count is the number of entities stored after the operation.
	Count int `json:"-"`
}

// Observer is called after every successful write operation, outside the store lock.
type Observer func(event Event)

// Store is a thread-safe in-memory table of entities of one kind.
// Ids are assigned by the store in strictly increasing order starting at 1 and are never reused.
type Store[T any] struct {
	sync.RWMutex
	name      string
	entities  map[int]Entity[T]
	order     []int
	counter   int
	now       func() time.Time
	observers []Observer
}

// NewStore returns an empty store. The name identifies the store in emitted events.
func NewStore[T any](name string, observers ...Observer) *Store[T] {
	return &Store[T]{
		name:      name,
		entities:  make(map[int]Entity[T]),
		now:       time.Now,
		observers: observers,
	}
}

// Name returns the name of the resource kind stored.
func (s *Store[T]) Name() string {
	return s.name
}

// Create assigns the next id to the draft, stamps its timestamps and stores it.
func (s *Store[T]) Create(draft T) Entity[T] {
	s.Lock()
	entity := s.unsafeCreate(draft)
	count := len(s.entities)
	s.Unlock()

	s.notify(Event{Type: Creation, ID: entity.ID, Entity: entity, Count: count})
	return entity
}

// Seed creates the drafts in argument order.
func (s *Store[T]) Seed(drafts ...T) []Entity[T] {
	created := make([]Entity[T], 0, len(drafts))
	for _, draft := range drafts {
		created = append(created, s.Create(draft))
	}
	return created
}

// Get returns the entity with the passed id.
// Iff the entity does not exist in the store, ok will be false.
func (s *Store[T]) Get(id int) (entity Entity[T], ok bool) {
	s.RLock()
	defer s.RUnlock()
	entity, ok = s.entities[id]
	return
}

// List returns a snapshot of all entities in insertion order.
func (s *Store[T]) List() []Entity[T] {
	s.RLock()
	defer s.RUnlock()
	snapshot := make([]Entity[T], 0, len(s.order))
	for _, id := range s.order {
		snapshot = append(snapshot, s.entities[id])
	}
	return snapshot
}

// Update merges the partial fields into the entity with the passed id and refreshes its update timestamp.
// Keys with a nil value are ignored, as are the envelope keys. Keys are the JSON names of the fields of T.
func (s *Store[T]) Update(id int, partial map[string]any) (Entity[T], error) {
	s.Lock()
	entity, ok := s.entities[id]
	if !ok {
		s.Unlock()
		return entity, fmt.Errorf("%s %d: %w", s.name, id, ErrNotFound)
	}

	fields, err := merge(entity.Fields, partial)
	if err != nil {
		s.Unlock()
		return entity, fmt.Errorf("%s %d: %w", s.name, id, err)
	}
	entity.Fields = fields
	entity.UpdatedAt = s.now()
	s.entities[id] = entity
	count := len(s.entities)
	s.Unlock()

	s.notify(Event{Type: Update, ID: id, Entity: entity, Count: count})
	return entity, nil
}

// Delete removes the entity with the passed id and reports whether it was present.
func (s *Store[T]) Delete(id int) bool {
	s.Lock()
	if _, ok := s.entities[id]; !ok {
		s.Unlock()
		return false
	}
	delete(s.entities, id)
	if index, found := slices.BinarySearch(s.order, id); found {
		s.order = slices.Delete(s.order, index, index+1)
	}
	count := len(s.entities)
	s.Unlock()

	s.notify(Event{Type: Deletion, ID: id, Count: count})
	return true
}

// Count returns the number of currently stored entities.
func (s *Store[T]) Count() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.entities)
}

// unsafeCreate requires the write lock to be held.
func (s *Store[T]) unsafeCreate(draft T) Entity[T] {
	s.counter++
	now := s.now()
	entity := Entity[T]{
		ID:        s.counter,
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    draft,
	}
	s.entities[entity.ID] = entity
	// Ids only grow, so appending keeps order sorted.
	s.order = append(s.order, entity.ID)
	return entity
}

func (s *Store[T]) notify(event Event) {
	event.Store = s.name
	for _, observer := range s.observers {
		observer(event)
	}
}

// merge decodes the non-nil partial values onto a copy of fields.
// Slices and maps in the partial replace the stored ones instead of being merged element-wise.
func merge[T any](fields T, partial map[string]any) (T, error) {
	changes := make(map[string]any, len(partial))
	for key, value := range partial {
		if key == KeyID || key == KeyCreatedAt || key == KeyUpdatedAt || isNil(value) {
			continue
		}
		changes[key] = value
	}
	if len(changes) == 0 {
		return fields, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		ZeroFields: true,
		Result:     &fields,
	})
	if err != nil {
		return fields, fmt.Errorf("error creating decoder: %w", err)
	}
	if err := decoder.Decode(changes); err != nil {
		return fields, fmt.Errorf("%w: %v", ErrInvalidPartial, err)
	}
	return fields, nil
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	switch reflected := reflect.ValueOf(value); reflected.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return reflected.IsNil()
	default:
		return false
	}
}
