// Package readmodel contains the queryable views projected from domain
// events, the generic repository they live in, and the projection handlers
// that keep them synchronized with the event log.
package readmodel

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// Repository errors
var (
	// ErrNotFound indicates the requested view was not found.
	ErrNotFound = errors.New("readmodel: not found")

	// ErrAlreadyExists indicates a view with the same ID already exists.
	ErrAlreadyExists = errors.New("readmodel: already exists")

	// ErrInvalidQuery indicates the query references an unknown field or
	// uses an unsupported operator.
	ErrInvalidQuery = errors.New("readmodel: invalid query")
)

// Repository provides generic CRUD operations for projected views.
// T is the view type.
type Repository[T any] interface {
	// Get retrieves a view by ID. Returns ErrNotFound if not found.
	Get(ctx context.Context, id string) (*T, error)

	// GetMany retrieves multiple views by their IDs. Missing IDs are
	// silently skipped.
	GetMany(ctx context.Context, ids []string) ([]*T, error)

	// Find queries views with the given criteria.
	Find(ctx context.Context, query Query) ([]*T, error)

	// FindOne returns the first view matching the query.
	// Returns ErrNotFound if no match.
	FindOne(ctx context.Context, query Query) (*T, error)

	// FindPage queries views and returns the total match count before
	// paging was applied.
	FindPage(ctx context.Context, query Query) (QueryResult[T], error)

	// Count returns the number of views matching the query.
	Count(ctx context.Context, query Query) (int64, error)

	// Insert creates a new view. Returns ErrAlreadyExists if the ID is
	// taken.
	Insert(ctx context.Context, view *T) error

	// Update modifies an existing view in place.
	// Returns ErrNotFound if not found.
	Update(ctx context.Context, id string, updateFn func(*T)) error

	// Upsert creates or replaces a view.
	Upsert(ctx context.Context, view *T) error

	// Delete removes a view by ID. Returns ErrNotFound if not found.
	Delete(ctx context.Context, id string) error

	// Clear removes all views.
	Clear(ctx context.Context) error
}

// Query represents a query for views.
type Query struct {
	// Filters to apply, combined with AND.
	Filters []Filter

	// OrderBy lists the sort criteria.
	OrderBy []OrderBy

	// Limit caps the number of results. 0 means no limit.
	Limit int

	// Offset skips results before the first returned one.
	Offset int
}

// NewQuery creates a new empty Query.
func NewQuery() *Query {
	return &Query{}
}

// Where adds a filter condition on an exported field name.
func (q *Query) Where(field string, op FilterOp, value any) *Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderByAsc adds ascending order.
func (q *Query) OrderByAsc(field string) *Query {
	q.OrderBy = append(q.OrderBy, OrderBy{Field: field})
	return q
}

// OrderByDesc adds descending order.
func (q *Query) OrderByDesc(field string) *Query {
	q.OrderBy = append(q.OrderBy, OrderBy{Field: field, Desc: true})
	return q
}

// WithLimit caps the number of results.
func (q *Query) WithLimit(limit int) *Query {
	q.Limit = limit
	return q
}

// WithOffset skips the first results.
func (q *Query) WithOffset(offset int) *Query {
	q.Offset = offset
	return q
}

// WithPagination sets limit and offset from a 1-based page number.
func (q *Query) WithPagination(page, pageSize int) *Query {
	q.Limit = pageSize
	q.Offset = (page - 1) * pageSize
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Build returns a copy of the query.
func (q *Query) Build() Query {
	return *q
}

// Filter represents a single filter condition.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// FilterOp represents a filter operation.
type FilterOp string

const (
	// FilterOpEq matches equal values.
	FilterOpEq FilterOp = "="

	// FilterOpNe matches not equal values.
	FilterOpNe FilterOp = "!="

	// FilterOpGt matches greater than values.
	FilterOpGt FilterOp = ">"

	// FilterOpGte matches greater than or equal values.
	FilterOpGte FilterOp = ">="

	// FilterOpLt matches less than values.
	FilterOpLt FilterOp = "<"

	// FilterOpLte matches less than or equal values.
	FilterOpLte FilterOp = "<="

	// FilterOpIn matches any value in a []any or []string list.
	FilterOpIn FilterOp = "IN"

	// FilterOpLike matches a case-insensitive substring.
	FilterOpLike FilterOp = "LIKE"

	// FilterOpIsNull matches nil pointer fields.
	FilterOpIsNull FilterOp = "IS NULL"

	// FilterOpIsNotNull matches non-nil pointer fields.
	FilterOpIsNotNull FilterOp = "IS NOT NULL"

	// FilterOpContains matches string slices containing a value.
	FilterOpContains FilterOp = "CONTAINS"
)

// OrderBy represents a sort order on an exported field name.
type OrderBy struct {
	Field string
	Desc  bool
}

// QueryResult contains paged query results with the total match count.
type QueryResult[T any] struct {
	// Items contains the matching views in query order.
	Items []*T

	// TotalCount is the number of matches before paging.
	TotalCount int64
}

// InMemoryRepository stores views in a map guarded by a RWMutex.
// Filters and ordering are evaluated by reflecting over exported fields, so
// query field names are Go field names (e.g., "NormalizedSlug").
type InMemoryRepository[T any] struct {
	data  map[string]*T
	mu    sync.RWMutex
	getID func(*T) string
}

// NewInMemoryRepository creates a new in-memory repository. The getID
// function extracts the ID from a view.
func NewInMemoryRepository[T any](getID func(*T) string) *InMemoryRepository[T] {
	return &InMemoryRepository[T]{
		data:  make(map[string]*T),
		getID: getID,
	}
}

// Get retrieves a view by ID.
func (r *InMemoryRepository[T]) Get(ctx context.Context, id string) (*T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if view, ok := r.data[id]; ok {
		return cloneView(view), nil
	}
	return nil, ErrNotFound
}

// GetMany retrieves multiple views by their IDs.
func (r *InMemoryRepository[T]) GetMany(ctx context.Context, ids []string) ([]*T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*T
	for _, id := range ids {
		if view, ok := r.data[id]; ok {
			results = append(results, cloneView(view))
		}
	}
	return results, nil
}

// Find queries views with the given criteria.
func (r *InMemoryRepository[T]) Find(ctx context.Context, query Query) ([]*T, error) {
	result, err := r.FindPage(ctx, query)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// FindOne returns the first view matching the query.
func (r *InMemoryRepository[T]) FindOne(ctx context.Context, query Query) (*T, error) {
	query.Limit = 1
	results, err := r.Find(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return results[0], nil
}

// FindPage queries views and returns the total match count before paging.
func (r *InMemoryRepository[T]) FindPage(ctx context.Context, query Query) (QueryResult[T], error) {
	r.mu.RLock()
	matches := make([]*T, 0, len(r.data))
	for _, view := range r.data {
		ok, err := matchesFilters(view, query.Filters)
		if err != nil {
			r.mu.RUnlock()
			return QueryResult[T]{}, err
		}
		if ok {
			matches = append(matches, cloneView(view))
		}
	}
	r.mu.RUnlock()

	if err := sortViews(matches, query.OrderBy); err != nil {
		return QueryResult[T]{}, err
	}
	total := int64(len(matches))

	if query.Offset > 0 {
		if query.Offset >= len(matches) {
			matches = nil
		} else {
			matches = matches[query.Offset:]
		}
	}
	if query.Limit > 0 && query.Limit < len(matches) {
		matches = matches[:query.Limit]
	}

	return QueryResult[T]{Items: matches, TotalCount: total}, nil
}

// Count returns the number of views matching the query.
func (r *InMemoryRepository[T]) Count(ctx context.Context, query Query) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, view := range r.data {
		ok, err := matchesFilters(view, query.Filters)
		if err != nil {
			return 0, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// Insert creates a new view.
func (r *InMemoryRepository[T]) Insert(ctx context.Context, view *T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.getID(view)
	if _, exists := r.data[id]; exists {
		return ErrAlreadyExists
	}
	r.data[id] = view
	return nil
}

// Update modifies an existing view in place.
func (r *InMemoryRepository[T]) Update(ctx context.Context, id string, updateFn func(*T)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	view, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	updateFn(view)
	return nil
}

// Upsert creates or replaces a view.
func (r *InMemoryRepository[T]) Upsert(ctx context.Context, view *T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[r.getID(view)] = view
	return nil
}

// Delete removes a view by ID.
func (r *InMemoryRepository[T]) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[id]; !exists {
		return ErrNotFound
	}
	delete(r.data, id)
	return nil
}

// Clear removes all views.
func (r *InMemoryRepository[T]) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data = make(map[string]*T)
	return nil
}

// cloneView isolates callers from the stored value. Readers get their own
// struct with nested pointers, maps, and slices copied, so mutating a loaded
// view never reaches the stored one until it is written back through Update
// or Upsert. A projection handler that fails mid-apply therefore leaves the
// stored view untouched.
func cloneView[T any](view *T) *T {
	c := *view
	cloneNested(reflect.ValueOf(&c).Elem())
	return &c
}

// cloneNested rewrites every settable pointer, map, and slice reachable from
// v with a fresh copy. Views are trees, never cyclic.
func cloneNested(v reflect.Value) {
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if f := v.Field(i); f.CanSet() {
				cloneNested(f)
			}
		}
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		elem := reflect.New(v.Type().Elem())
		elem.Elem().Set(v.Elem())
		cloneNested(elem.Elem())
		v.Set(elem)
	case reflect.Map:
		if v.IsNil() {
			return
		}
		m := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			value := reflect.New(iter.Value().Type()).Elem()
			value.Set(iter.Value())
			cloneNested(value)
			m.SetMapIndex(iter.Key(), value)
		}
		v.Set(m)
	case reflect.Slice:
		if v.IsNil() {
			return
		}
		s := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(s, v)
		for i := 0; i < s.Len(); i++ {
			cloneNested(s.Index(i))
		}
		v.Set(s)
	}
}

// Len returns the number of views stored.
func (r *InMemoryRepository[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func matchesFilters[T any](view *T, filters []Filter) (bool, error) {
	for _, f := range filters {
		value, isNil, err := fieldValue(view, f.Field)
		if err != nil {
			return false, err
		}
		ok, err := evalFilter(value, isNil, f)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalFilter(value any, isNil bool, f Filter) (bool, error) {
	switch f.Op {
	case FilterOpIsNull:
		return isNil, nil
	case FilterOpIsNotNull:
		return !isNil, nil
	}
	if isNil {
		return false, nil
	}

	switch f.Op {
	case FilterOpEq:
		return compareValues(value, f.Value) == 0, nil
	case FilterOpNe:
		return compareValues(value, f.Value) != 0, nil
	case FilterOpGt:
		return compareValues(value, f.Value) > 0, nil
	case FilterOpGte:
		return compareValues(value, f.Value) >= 0, nil
	case FilterOpLt:
		return compareValues(value, f.Value) < 0, nil
	case FilterOpLte:
		return compareValues(value, f.Value) <= 0, nil
	case FilterOpLike:
		s, ok := value.(string)
		pattern, okP := f.Value.(string)
		if !ok || !okP {
			return false, fmt.Errorf("%w: LIKE requires string values for field %q", ErrInvalidQuery, f.Field)
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(pattern)), nil
	case FilterOpIn:
		switch list := f.Value.(type) {
		case []string:
			for _, candidate := range list {
				if compareValues(value, candidate) == 0 {
					return true, nil
				}
			}
			return false, nil
		case []any:
			for _, candidate := range list {
				if compareValues(value, candidate) == 0 {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, fmt.Errorf("%w: IN requires a list for field %q", ErrInvalidQuery, f.Field)
		}
	case FilterOpContains:
		list, ok := value.([]string)
		if !ok {
			return false, fmt.Errorf("%w: CONTAINS requires a string slice field, got %q", ErrInvalidQuery, f.Field)
		}
		needle := fmt.Sprintf("%v", f.Value)
		for _, item := range list {
			if item == needle {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
	}
}

func sortViews[T any](views []*T, orderBy []OrderBy) error {
	if len(orderBy) == 0 {
		return nil
	}
	// Validate fields up front so sorting can't observe errors mid-swap.
	if len(views) > 0 {
		for _, o := range orderBy {
			if _, _, err := fieldValue(views[0], o.Field); err != nil {
				return err
			}
		}
	}
	sort.SliceStable(views, func(i, j int) bool {
		for _, o := range orderBy {
			a, aNil, _ := fieldValue(views[i], o.Field)
			b, bNil, _ := fieldValue(views[j], o.Field)
			var c int
			switch {
			case aNil && bNil:
				c = 0
			case aNil:
				c = -1
			case bNil:
				c = 1
			default:
				c = compareValues(a, b)
			}
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

// fieldValue resolves an exported field by name, dereferencing one pointer
// level. The second return value reports nil pointers.
func fieldValue(view any, field string) (any, bool, error) {
	v := reflect.ValueOf(view)
	// Dotted paths walk embedded structs, e.g. "User.UniqueName".
	for _, name := range strings.Split(field, ".") {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return nil, true, nil
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, false, fmt.Errorf("%w: cannot query %T", ErrInvalidQuery, view)
		}
		f := v.FieldByName(name)
		if !f.IsValid() {
			return nil, false, fmt.Errorf("%w: unknown field %q on %s", ErrInvalidQuery, field, v.Type().Name())
		}
		v = f
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, true, nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Slice && v.IsNil() {
		return nil, true, nil
	}
	return v.Interface(), false, nil
}

// compareValues compares two scalar values, normalizing numeric kinds and
// named string types. Unequal but unordered values compare as -1.
func compareValues(a, b any) int {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}

	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)

	if av.CanInt() && bv.CanInt() {
		return compareOrdered(av.Int(), bv.Int())
	}
	if av.CanUint() && bv.CanUint() {
		return compareOrdered(av.Uint(), bv.Uint())
	}
	if av.CanFloat() && bv.CanFloat() {
		return compareOrdered(av.Float(), bv.Float())
	}
	if av.Kind() == reflect.String && bv.Kind() == reflect.String {
		return strings.Compare(av.String(), bv.String())
	}
	if av.Kind() == reflect.Bool && bv.Kind() == reflect.Bool {
		switch {
		case av.Bool() == bv.Bool():
			return 0
		case bv.Bool():
			return -1
		default:
			return 1
		}
	}
	if reflect.DeepEqual(a, b) {
		return 0
	}
	return -1
}

func compareOrdered[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
