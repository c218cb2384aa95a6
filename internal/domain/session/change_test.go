package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowChange_MergeInto(t *testing.T) {
	s, err := NewSession(testDraft(), testSnapshot())
	require.NoError(t, err)
	s.Client = &ClientDisplay{Name: "Ana Souza", Phone: "+55 11 99999-0000"}

	next := s.Clone()
	next.Discount = d(40)
	next.RecomputeTotal()
	next.Version = 2

	change := NarrowRowChange(next, []Field{FieldDiscount, FieldTotal})

	known := s.Clone()
	change.MergeInto(known)

	assert.True(t, known.Discount.Equal(d(40)))
	assert.True(t, known.Total.Equal(d(225)))
	assert.Equal(t, 2, known.Version)
	require.NotNil(t, known.Client, "joined client display must survive a narrow merge")
	assert.Equal(t, "Ana Souza", known.Client.Name)
	assert.Len(t, known.Products, 2)
}

func TestRowChange_JSON(t *testing.T) {
	s, err := NewSession(testDraft(), testSnapshot())
	require.NoError(t, err)

	data, err := json.Marshal(NarrowRowChange(s, []Field{FieldStatus}))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "status")
	assert.Contains(t, raw, "id")
	assert.NotContains(t, raw, "total")
	assert.NotContains(t, raw, "client")

	var decoded RowChange
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Status)
	assert.Equal(t, StatusScheduled, *decoded.Status)
}

func TestRowChange_IsStale(t *testing.T) {
	s, err := NewSession(testDraft(), testSnapshot())
	require.NoError(t, err)
	s.Version = 5

	old := 4
	assert.True(t, RowChange{Version: &old}.IsStale(s))
	cur := 5
	assert.False(t, RowChange{Version: &cur}.IsStale(s))
	assert.False(t, RowChange{}.IsStale(s))
}

func TestRowChange_IsKeyOnly(t *testing.T) {
	s, err := NewSession(testDraft(), testSnapshot())
	require.NoError(t, err)

	var decoded RowChange
	require.NoError(t, json.Unmarshal([]byte(`{"id":"`+s.ID.String()+`"}`), &decoded))
	assert.True(t, decoded.IsKeyOnly())
	assert.False(t, NarrowRowChange(s, nil).IsKeyOnly(), "version is a column")
	assert.False(t, NarrowRowChange(s, []Field{FieldNotes}).IsKeyOnly())
}
