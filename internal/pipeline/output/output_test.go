package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryAllReturnsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	o1 := NewConsoleOutput("first")
	o2 := NewConsoleOutput("second")
	o3 := NewConsoleOutput("third")
	r.Add(o1)
	r.Add(o2)
	r.Add(o3)

	all := r.All()
	assert.Equal(t, []Output{o1, o2, o3}, all)
}

func TestRegistryGetFindsByID(t *testing.T) {
	r := NewRegistry()
	o := NewConsoleOutput("console")
	r.Add(o)

	found, ok := r.Get("console")
	assert.True(t, ok)
	assert.Same(t, o, found)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryAllReturnsACopyNotTheBackingSlice(t *testing.T) {
	r := NewRegistry()
	r.Add(NewConsoleOutput("console"))

	all := r.All()
	all[0] = NewConsoleOutput("mutated")

	assert.Equal(t, "console", r.All()[0].ID())
}
