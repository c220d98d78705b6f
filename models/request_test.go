package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkRequest_ActionName(t *testing.T) {
	assert.Equal(t, "approve", BulkRequest{Action: " approve ", Operation: "delete"}.ActionName())
	assert.Equal(t, "delete", BulkRequest{Operation: "delete"}.ActionName())
	assert.Equal(t, "", BulkRequest{}.ActionName())
}

func TestBulkRequest_NormalizedItems(t *testing.T) {
	req := BulkRequest{
		IDs: []string{" a ", "b"},
		Items: []map[string]interface{}{
			{"id": "c", "name": "Chair"},
			{"_id": 42.0, "price": 3.5},
			{"name": "no id"},
		},
	}

	items := req.NormalizedItems()
	assert.Equal(t, 5, req.ItemCount())
	assert.Equal(t, []Item{
		{ID: "a"},
		{ID: "b"},
		{ID: "c", Fields: map[string]interface{}{"name": "Chair"}},
		{ID: "42", Fields: map[string]interface{}{"price": 3.5}},
		{ID: "", Fields: map[string]interface{}{"name": "no id"}},
	}, items)
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestItemIDs_AreNotRounded(t *testing.T) {
	req := BulkRequest{Items: []map[string]interface{}{
		{"id": 1.5},
		{"id": 7.0},
		{"id": json.Number("12345678901234567890")},
		{"id": 1e20},
	}}

	var got []string
	for _, item := range req.NormalizedItems() {
		got = append(got, item.ID)
	}
	assert.Equal(t, []string{"1.5", "7", "12345678901234567890", "100000000000000000000"}, got)
}

func TestDecodeJSON_KeepsNumbers(t *testing.T) {
	var req BulkRequest
	require.NoError(t, DecodeJSON(strings.NewReader(`{"action":"import","items":[{"id":9007199254740993,"price":2.5}]}`), &req))

	items := req.NormalizedItems()
	require.Len(t, items, 1)
	assert.Equal(t, "9007199254740993", items[0].ID)
	assert.Equal(t, json.Number("2.5"), items[0].Fields["price"])
}
