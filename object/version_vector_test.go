package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionVectorMerge(t *testing.T) {
	alice := NewUserID()
	bob := NewUserID()

	a := NewVersionVector()
	a.Increment(alice)
	a.Increment(alice)

	b := NewVersionVector()
	b.Increment(alice)
	b.Increment(bob)

	merged := a.Merge(b)
	assert.Equal(t, uint64(2), merged[alice])
	assert.Equal(t, uint64(1), merged[bob])
}

func TestVersionVectorHappensBefore(t *testing.T) {
	alice := NewUserID()
	bob := NewUserID()

	a := NewVersionVector()
	a.Increment(alice)

	b := a.Clone()
	b.Increment(bob)

	assert.True(t, a.HappensBefore(b))
	assert.False(t, b.HappensBefore(a))
}

func TestVersionVectorEqual(t *testing.T) {
	alice := NewUserID()

	a := NewVersionVector()
	a.Increment(alice)

	b := a.Clone()
	assert.True(t, a.Equal(b))

	b.Increment(alice)
	assert.False(t, a.Equal(b))
}
