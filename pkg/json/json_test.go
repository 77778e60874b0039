package json

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

func TestMarshalLines(t *testing.T) {
	data, err := MarshalLines([]sample{{Name: "account", Size: 3}, {Name: "contact", Size: 0}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"name":"account","size":3}`, lines[0])
	assert.JSONEq(t, `{"name":"contact","size":0}`, lines[1])
}

func TestMarshalToWriterDoesNotEscapeHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, MarshalToWriter(&buf, map[string]string{"cookie": "<cookie page=\"1\">"}))
	assert.Contains(t, buf.String(), "<cookie")
}

func TestNewDecoderUsesNumber(t *testing.T) {
	var out map[string]interface{}
	require.NoError(t, NewDecoder(strings.NewReader(`{"n": 12}`)).Decode(&out))

	n, ok := out["n"].(Number)
	require.True(t, ok)
	assert.Equal(t, "12", n.String())
}
