package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDAcceptsNumberOrString(t *testing.T) {
	var req struct {
		UserID  ID `json:"userId"`
		OtherID ID `json:"otherId"`
		Missing ID `json:"missing"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"userId": 9007199254740993, "otherId": "12", "missing": null}`), &req))

	assert.Equal(t, ID(9007199254740993), req.UserID)
	assert.Equal(t, ID(12), req.OtherID)
	assert.Equal(t, ID(0), req.Missing)

	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":"9007199254740993","otherId":"12","missing":"0"}`, string(out))
}

func TestIDRejectsGarbage(t *testing.T) {
	var id ID
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &id))
	assert.Error(t, json.Unmarshal([]byte(`1.5`), &id))

	_, err := ParseID("0")
	assert.Error(t, err)
	_, err = ParseID("-3")
	assert.Error(t, err)

	id, err = ParseID("41")
	require.NoError(t, err)
	assert.Equal(t, ID(41), id)
}
