package query_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"goquery/query"
)

func TestStructuralShare_PreservesIdentityWhenDeeplyEqual(t *testing.T) {
	prev := []int{1, 2, 3}
	next := []int{1, 2, 3}

	got := query.StructuralShare(prev, next)

	assert.Equal(t, prev, got)
	assert.Equal(t, reflect.ValueOf(prev).Pointer(), reflect.ValueOf(got).Pointer(), "equal value should keep prev's identity")
}

func TestStructuralShare_ReturnsNextWhenDifferent(t *testing.T) {
	prev := []int{1, 2, 3}
	next := []int{1, 2, 4}

	got := query.StructuralShare(prev, next)

	assert.Equal(t, next, got)
	assert.Equal(t, reflect.ValueOf(next).Pointer(), reflect.ValueOf(got).Pointer())
}
