package messaging

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(TypeSubmitResp, &SubmitResponse{ID: "sec_01J9TEST"})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeSubmitResp, env.Type)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(env.Body, &resp))
	assert.Equal(t, "sec_01J9TEST", resp.ID)
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "hello"},
		{name: "missing type", data: `{"body":{}}`},
		{name: "empty", data: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, ErrUnknownMessage)
		})
	}
}
