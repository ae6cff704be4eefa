package argkey

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectIDsAreStableAndSequential(t *testing.T) {
	reg := NewRegistry()

	m := map[string]int{}
	s := []int{1, 2, 3}

	id1 := reg.ObjectID(reflect.ValueOf(m))
	id2 := reg.ObjectID(reflect.ValueOf(s))

	assert.Equal(t, "o:1", id1)
	assert.Equal(t, "o:2", id2)
	assert.Equal(t, id1, reg.ObjectID(reflect.ValueOf(m)))
}

func TestCategoriesNeverCollide(t *testing.T) {
	reg := NewRegistry()

	obj := reg.ObjectID(reflect.ValueOf(new(int)))
	fn := reg.FuncID(func() {})
	val := reg.ValueID(struct{ A int }{A: 1})

	// First id in every category shares the counter value; the tag is what
	// keeps them apart.
	assert.NotEqual(t, obj, fn)
	assert.NotEqual(t, obj, val)
	assert.NotEqual(t, fn, val)
}

func TestValueIDSharedByEqualValues(t *testing.T) {
	reg := NewRegistry()
	type key struct{ Name string }

	a := reg.ValueID(key{Name: "shared"})
	b := reg.ValueID(key{Name: "shared"})
	c := reg.ValueID(key{Name: "other"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestFuncIDDistinguishesClosures(t *testing.T) {
	reg := NewRegistry()

	mk := func(n int) func() int { return func() int { return n } }
	f1, f2 := mk(1), mk(2)

	assert.NotEqual(t, reg.FuncID(f1), reg.FuncID(f2))
	assert.Equal(t, reg.FuncID(f1), reg.FuncID(f1))
}
