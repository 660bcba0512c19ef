package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommandRoundTrip(t *testing.T) {
	cmd := NewCommand("c-1", "layer.resize", json.RawMessage(`{"w":800,"h":600}`))
	frame, err := cmd.Encode()
	require.NoError(t, err)

	got, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeCommand, got.Type)
	assert.Equal(t, "c-1", got.ID)
	assert.Equal(t, "layer.resize", got.Method)
	assert.JSONEq(t, `{"w":800,"h":600}`, string(got.Params))
	assert.NoError(t, got.Validate())
}

func TestDecodeMalformedFrame(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestDecodeMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"method":"ping"}`))
	assert.Error(t, err)
}

func TestDecodeUnknownTypeIsNotFatal(t *testing.T) {
	m, err := Decode([]byte(`{"type":"frobnicate","x":1}`))
	require.NoError(t, err)
	assert.False(t, m.Known())
	assert.NoError(t, m.Validate())
}

func TestValidateResponseRequiresCorrelationID(t *testing.T) {
	m, err := Decode([]byte(`{"type":"response","result":{}}`))
	require.NoError(t, err)
	assert.Error(t, m.Validate())

	m, err = Decode([]byte(`{"type":"response","correlationId":"c-9","result":{"ok":true}}`))
	require.NoError(t, err)
	assert.NoError(t, m.Validate())
}

func TestValidateErrorRequiresBody(t *testing.T) {
	m, err := Decode([]byte(`{"type":"error","correlationId":"c-2"}`))
	require.NoError(t, err)
	assert.Error(t, m.Validate())

	m, err = Decode([]byte(`{"type":"error","correlationId":"c-2","error":{"message":"boom"}}`))
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	assert.Equal(t, "boom", m.Error.Message)
}

func TestValidateEventRequiresName(t *testing.T) {
	m, err := Decode([]byte(`{"type":"event","data":{"k":1}}`))
	require.NoError(t, err)
	assert.Error(t, m.Validate())
}

func TestValidateCommandRequiresIDAndMethod(t *testing.T) {
	m, err := Decode([]byte(`{"type":"command","method":"doc.open"}`))
	require.NoError(t, err)
	assert.Error(t, m.Validate())

	m, err = Decode([]byte(`{"type":"command","id":"c-3"}`))
	require.NoError(t, err)
	assert.Error(t, m.Validate())
}

func TestSyncCarriesServerTime(t *testing.T) {
	frame, err := NewSync(1700000000123).Encode()
	require.NoError(t, err)
	m, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeSync, m.Type)
	assert.Equal(t, int64(1700000000123), m.ServerTime)
}

func TestHeartbeatAckOmitsOptionalFields(t *testing.T) {
	frame, err := NewHeartbeatAck().Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"heartbeat_ack"}`, string(frame))
}
