package protocol

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLineAppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeLine(&buf, map[string]any{"jsonrpc": "2.0", "method": "ping"})
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
	assert.Contains(t, out, `"method":"ping"`)
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"jsonrpc":"2.0","id":7,"method":"tools/list","params":{"_meta":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, "tools/list", req.Method)
	assert.False(t, req.IsNotification())
	assert.Equal(t, json.RawMessage("7"), req.ID)
}

func TestDecodeRequestMissingMethod(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"jsonrpc":"2.0","id":1}`))
	assert.ErrorContains(t, err, "method")
}

func TestDecodeRequestInvalidJSON(t *testing.T) {
	_, err := DecodeRequest([]byte(`{not json`))
	assert.Error(t, err)
}

func TestIsNotification(t *testing.T) {
	notif, err := DecodeRequest([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	assert.True(t, notif.IsNotification())

	nullID, err := DecodeRequest([]byte(`{"jsonrpc":"2.0","id":null,"method":"ping"}`))
	require.NoError(t, err)
	assert.True(t, nullID.IsNotification())

	var req Request
	req.SetNumericID(3)
	assert.False(t, req.IsNotification())
	assert.Equal(t, json.RawMessage("3"), req.ID)
}

func TestDecodeResponseLine(t *testing.T) {
	resp, err := DecodeResponseLine([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
	require.NoError(t, err)
	assert.NotNil(t, resp.Result)
	assert.Nil(t, resp.Error)
}

func TestDecodeResponseLineErrors(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"not json", "boom"},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"result":{}}`},
		{"neither result nor error", `{"jsonrpc":"2.0","id":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeResponseLine([]byte(tc.line))
			assert.Error(t, err)
		})
	}
}

func TestServerDescriptorNormalizeDefaults(t *testing.T) {
	d := &ServerDescriptor{Command: "uvx"}
	require.NoError(t, d.Normalize())
	assert.Equal(t, LatestProtocolVersion, d.ProtocolVersion)
	assert.Equal(t, Version, d.JSONRPC)
	assert.Equal(t, "stdio", d.Type)
}

func TestServerDescriptorNormalizeRejects(t *testing.T) {
	assert.Error(t, (&ServerDescriptor{Command: "uvx", JSONRPC: "1.0"}).Normalize())
	assert.Error(t, (&ServerDescriptor{Command: "uvx", Type: "sse"}).Normalize())
	assert.Error(t, (&ServerDescriptor{}).Normalize())
}

func TestServerDescriptorNormalizeProtocolVersions(t *testing.T) {
	for _, v := range SupportedProtocolVersions {
		d := &ServerDescriptor{Command: "uvx", ProtocolVersion: v}
		assert.NoError(t, d.Normalize(), v)
	}

	d := &ServerDescriptor{Command: "uvx", ProtocolVersion: "1999-01-01"}
	assert.ErrorContains(t, d.Normalize(), "unsupported protocol version")
}

func TestMetaFromParams(t *testing.T) {
	meta, err := MetaFromParams(map[string]any{
		"_meta": map[string]any{
			"server": map[string]any{
				"command": "uvx",
				"args":    []any{"mcp-server-time"},
				"env":     map[string]any{"TZ": "UTC"},
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, meta.Server)
	assert.Equal(t, "uvx", meta.Server.Command)
	assert.Equal(t, []string{"mcp-server-time"}, meta.Server.Args)
	assert.Equal(t, "UTC", meta.Server.Env["TZ"])
}

func TestMetaFromParamsMissing(t *testing.T) {
	_, err := MetaFromParams(nil)
	assert.Error(t, err)

	_, err = MetaFromParams(map[string]any{"name": "x"})
	assert.ErrorContains(t, err, "_meta")

	_, err = MetaFromParams(map[string]any{"_meta": map[string]any{"trace": map[string]any{}}})
	assert.ErrorContains(t, err, "server")
}
