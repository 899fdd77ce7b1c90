package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		id   ID
		want string
	}{
		{"integer id renders as number", IntID(3), `3`},
		{"object id renders as string", ID("65f0c0ffee0000000000abcd"), `"65f0c0ffee0000000000abcd"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.id)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestExpenseJSONShape(t *testing.T) {
	e := Expense{ID: IntID(1), Description: "Spent for Bus", Amount: 100}

	got, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"description":"Spent for Bus","amount":100}`, string(got),
		"unset completed, owner and created_at should be omitted")

	e.Completed = Bool(false)
	got, err = json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(got), `"completed":false`)
}

func TestExpensePatchApply(t *testing.T) {
	e := Expense{ID: IntID(1), Description: "Bus", Amount: 100}

	var p ExpensePatch
	require.NoError(t, json.Unmarshal([]byte(`{"description":"","amount":0,"completed":false}`), &p))
	p.Apply(&e)

	assert.Equal(t, "Bus", e.Description, "empty description must not overwrite")
	assert.Equal(t, 0.0, e.Amount, "zero amount is present and must overwrite")
	require.NotNil(t, e.Completed)
	assert.False(t, *e.Completed)

	ExpensePatch{}.Apply(&e)
	assert.Equal(t, "Bus", e.Description)
}
