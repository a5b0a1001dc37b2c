package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	CollectionProducts = "sarees"
	CollectionPitches  = "pitches"
	CollectionMessages = "messages"
	CollectionUsers    = "users"
)

type Op string

const (
	OpEqual         Op = "=="
	OpNotEqual      Op = "!="
	OpLess          Op = "<"
	OpLessEqual     Op = "<="
	OpGreater       Op = ">"
	OpGreaterEqual  Op = ">="
	OpArrayContains Op = "array-contains"
	OpIn            Op = "in"
)

type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Filter is evaluated by the store against stored field names.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Order names a canonical record field. Orders are applied locally after
// normalization, never by the store.
type Order struct {
	Field     string
	Direction Direction
}

type Query struct {
	Collection string
	Filters    []Filter
	Orders     []Order
}

func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

func (q Query) Where(field string, op Op, value interface{}) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) OrderBy(field string, dir Direction) Query {
	orders := make([]Order, len(q.Orders), len(q.Orders)+1)
	copy(orders, q.Orders)
	q.Orders = append(orders, Order{Field: field, Direction: dir})
	return q
}

// Key is the canonical identity of the query: two queries with the same
// collection, the same set of filters and the same order list share a key.
func (q Query) Key() string {
	filters := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		filters = append(filters, fmt.Sprintf("%s%s%v", f.Field, f.Op, f.Value))
	}
	sort.Strings(filters)

	orders := make([]string, 0, len(q.Orders))
	for _, o := range q.Orders {
		orders = append(orders, o.Field+":"+o.Direction.String())
	}
	return q.Collection + "?" + strings.Join(filters, "&") + "#" + strings.Join(orders, ",")
}

// Document is a raw stored document. Data is loosely typed and may use any
// historical field spelling.
type Document struct {
	ID   string
	Data map[string]interface{}
}

type Snapshot struct {
	Documents []Document
	ReadTime  time.Time
}

// SnapshotEvent carries either a full result set or an error. After a
// terminal error the store closes the channel.
type SnapshotEvent struct {
	Snapshot Snapshot
	Err      error
}

// Write describes one document mutation inside an atomic CreateAndUpdate.
type Write struct {
	Collection string
	ID         string
	Data       map[string]interface{}
}

type serverTimestamp struct{}

// ServerTimestamp asks the store to stamp the field with its commit time.
var ServerTimestamp = serverTimestamp{}

func IsServerTimestamp(v interface{}) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// IncrementValue asks the store to add By to a numeric field atomically.
type IncrementValue struct {
	By int64
}

func Increment(n int64) IncrementValue {
	return IncrementValue{By: n}
}

// SameValue reports whether a stored value equals expected for UpdateIf.
func SameValue(stored, expected interface{}) bool {
	if stored == nil || expected == nil {
		return stored == nil && expected == nil
	}
	return CompareValues(stored, expected) == 0
}

// DocumentStore is the boundary to the remote document database.
// Errors are *errors.AppError values with NOT_FOUND, ALREADY_EXISTS,
// PERMISSION_DENIED, UNAVAILABLE, SCHEMA_ERROR or INTERNAL_ERROR codes.
type DocumentStore interface {
	// Subscribe streams the full result set of q on every change until ctx
	// is cancelled. Transient failures are reported as events and the store
	// keeps retrying; terminal failures are reported once and close the stream.
	Subscribe(ctx context.Context, q Query) (<-chan SnapshotEvent, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Find(ctx context.Context, q Query) ([]Document, error)
	// Add stores data under a store-generated id.
	Add(ctx context.Context, collection string, data map[string]interface{}) (string, error)
	// Create fails with ALREADY_EXISTS if the id is taken.
	Create(ctx context.Context, collection, id string, data map[string]interface{}) error
	// Update merges fields into an existing document, NOT_FOUND otherwise.
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	// UpdateIf merges fields only while the stored value of field still
	// equals expected, CONFLICT otherwise. A nil expected matches a missing
	// field.
	UpdateIf(ctx context.Context, collection, id, field string, expected interface{}, fields map[string]interface{}) error
	Delete(ctx context.Context, collection, id string) error
	// CreateAndUpdate commits both writes or neither.
	CreateAndUpdate(ctx context.Context, create Write, update Write) error
	Close() error
}
