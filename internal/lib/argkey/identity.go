package argkey

import (
	"reflect"
	"strconv"
	"sync"
	"unsafe"
)

// Registry assigns stable string identifiers to argument values that have no
// useful serialized form: reference objects (pointers, maps, slices,
// channels), functions, and comparable composite values. Each category keeps
// its own sequence, and every id carries a category tag, so a function id can
// never collide with an object id.
//
// Object and function associations are keyed by address and therefore never
// keep the referenced value alive; the trade-off is that an address may be
// reused after the original value is collected. The comparable-value table is
// keyed by the value itself, so equal values share one id for the lifetime of
// the registry.
type Registry struct {
	mu      sync.Mutex
	objects map[objKey]string
	funcs   map[uintptr]string
	values  map[any]string
	objSeq  uint64
	fnSeq   uint64
	valSeq  uint64
}

// objKey identifies a reference. Two slices over one backing array share an
// address but differ in length, so length is part of the key for slices.
type objKey struct {
	addr   uintptr
	length int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		objects: make(map[objKey]string),
		funcs:   make(map[uintptr]string),
		values:  make(map[any]string),
	}
}

// ObjectID returns the id for a reference value. The same reference always
// yields the same id; structurally equal but distinct references do not.
func (r *Registry) ObjectID(rv reflect.Value) string {
	key := objKey{addr: rv.Pointer()}
	if rv.Kind() == reflect.Slice {
		key.length = rv.Len()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.objects[key]
	if !ok {
		r.objSeq++
		id = "o:" + strconv.FormatUint(r.objSeq, 10)
		r.objects[key] = id
	}
	return id
}

// FuncID returns the id for a function value. Identity is the function
// value's own allocation, not its code pointer, so two closures over the same
// body still get distinct ids.
func (r *Registry) FuncID(fn any) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr := funcAddr(fn)
	id, ok := r.funcs[addr]
	if !ok {
		r.fnSeq++
		id = "f:" + strconv.FormatUint(r.fnSeq, 10)
		r.funcs[addr] = id
	}
	return id
}

// ValueID returns the id for a comparable composite value (struct, array).
// Equal values share one id, the way symbols registered under a shared table
// share a key-derived id. The caller must ensure the value is hashable at
// runtime (reflect.Value.Comparable), not merely comparable by type.
func (r *Registry) ValueID(v any) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.values[v]
	if !ok {
		r.valSeq++
		id = "v:" + strconv.FormatUint(r.valSeq, 10)
		r.values[v] = id
	}
	return id
}

// funcAddr extracts the data word of the interface holding fn, i.e. the
// address of the func value itself. reflect's Pointer() would return the
// shared code pointer, which collapses distinct closures.
func funcAddr(fn any) uintptr {
	type iface struct {
		typ  unsafe.Pointer
		data unsafe.Pointer
	}
	return uintptr((*iface)(unsafe.Pointer(&fn)).data)
}
