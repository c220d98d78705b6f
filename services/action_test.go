package services

import (
	"testing"

	"bulkjobs/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	data := map[string]interface{}{"reason": " spam ", "price": 3.0}

	tests := []struct {
		keyword string
		want    Action
		op      models.OperationType
	}{
		{"approve", Approve{}, models.OperationCustomAction},
		{"APPROVE", Approve{}, models.OperationCustomAction},
		{"reject", Reject{Reason: "spam"}, models.OperationCustomAction},
		{"flag", Flag{Reason: "spam"}, models.OperationCustomAction},
		{"unflag", Unflag{}, models.OperationCustomAction},
		{"update", Update{Fields: data}, models.OperationUpdate},
		{"delete", Delete{}, models.OperationDelete},
		{"import", Import{UpdateExisting: true}, models.OperationImport},
	}
	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			got, err := ParseAction(tt.keyword, data, models.BulkOptions{UpdateExisting: true})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.op, got.OperationType())
		})
	}
}

func TestParseAction_Unknown(t *testing.T) {
	got, err := ParseAction("frobnicate", nil, models.BulkOptions{})
	assert.Nil(t, got)
	require.EqualError(t, err, "Unknown action: frobnicate")

	var unknown *UnknownActionError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "frobnicate", unknown.Name)
}
