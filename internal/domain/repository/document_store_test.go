package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueryKeyIgnoresFilterOrder(t *testing.T) {
	a := NewQuery(CollectionPitches).
		Where("status", OpEqual, "pending").
		Where("sareeId", OpEqual, "s1").
		OrderBy("createdAt", Desc)
	b := NewQuery(CollectionPitches).
		Where("sareeId", OpEqual, "s1").
		Where("status", OpEqual, "pending").
		OrderBy("createdAt", Desc)

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), a.OrderBy("id", Asc).Key())
	assert.NotEqual(t, a.Key(), NewQuery(CollectionMessages).Key())
}

func TestQueryBuilderDoesNotAlias(t *testing.T) {
	base := NewQuery(CollectionMessages).Where("read", OpEqual, false)
	one := base.Where("receiverId", OpEqual, "u1")
	two := base.Where("receiverId", OpEqual, "u2")

	assert.Len(t, base.Filters, 1)
	assert.Equal(t, "u1", one.Filters[1].Value)
	assert.Equal(t, "u2", two.Filters[1].Value)
}

func TestCompareValues(t *testing.T) {
	now := time.Now()
	assert.Equal(t, -1, CompareValues(1, 2.5))
	assert.Equal(t, 0, CompareValues(int64(3), 3.0))
	assert.Equal(t, 1, CompareValues("b", "a"))
	assert.Equal(t, -1, CompareValues(now, now.Add(time.Second)))
	assert.Equal(t, -1, CompareValues(nil, "a"))
	assert.Equal(t, -1, CompareValues(false, true))
}

func TestMatches(t *testing.T) {
	doc := Document{ID: "m1", Data: map[string]interface{}{
		"participants": []interface{}{"alice", "bob"},
		"read":         false,
		"stock":        int64(3),
	}}

	assert.True(t, Matches(doc, []Filter{{"participants", OpArrayContains, "bob"}}))
	assert.False(t, Matches(doc, []Filter{{"participants", OpArrayContains, "carol"}}))
	assert.True(t, Matches(doc, []Filter{{"read", OpEqual, false}, {"stock", OpGreater, 0}}))
	assert.False(t, Matches(doc, []Filter{{"stock", OpGreater, "a"}}))
	assert.True(t, Matches(doc, []Filter{{"stock", OpIn, []interface{}{1, 3}}}))
	assert.False(t, Matches(doc, []Filter{{"missing", OpEqual, "x"}}))
	assert.False(t, Matches(doc, []Filter{{"missing", OpNotEqual, "x"}}))
}
