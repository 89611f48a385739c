package utils

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type importBody struct {
	Rows []string `json:"rows"`
}

func parseBody(body []byte) (*httptest.ResponseRecorder, importBody, bool) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(body))

	var dest importBody
	ok := ParseRequestBody(w, r, &dest)
	return w, dest, ok
}

func TestParseRequestBody(t *testing.T) {
	w, dest, ok := parseBody([]byte(`{"rows":["a","b"]}`))
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, dest.Rows)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _, ok = parseBody([]byte(`{"rows":`))
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseRequestBodyIsBounded(t *testing.T) {
	row := strings.Repeat("x", 1024)
	rows := make([]string, 0, MaxRequestBodyBytes/1024+1)
	for i := 0; i < cap(rows); i++ {
		rows = append(rows, row)
	}
	body, err := json.Marshal(importBody{Rows: rows})
	require.NoError(t, err)
	require.Greater(t, len(body), MaxRequestBodyBytes)

	w, _, ok := parseBody(body)
	assert.False(t, ok)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	var res errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Contains(t, res.Error, "exceeds")
}
