package payload

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decodedResponse struct {
	ClientToken string `json:"clientToken"`
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
	ExitCode    int    `json:"exitCode"`
}

func decode(t *testing.T, raw []byte) decodedResponse {
	t.Helper()
	var resp decodedResponse
	require.NoError(t, json.Unmarshal(raw, &resp), "payload: %s", raw)
	return resp
}

func TestEscapeText_QuotesAndNewlines(t *testing.T) {
	assert.Equal(t, "He said 'hi' Bye", EscapeText([]byte("He said \"hi\"\nBye")))
}

func TestEscapeText_ControlCharacters(t *testing.T) {
	assert.Equal(t, `a\\b\tc\rd\u0001`, EscapeText([]byte("a\\b\tc\rd\x01")))
}

func TestEscapeText_InvalidUTF8(t *testing.T) {
	assert.Equal(t, `x�y`, EscapeText([]byte{'x', 0xff, 'y'}))
}

func TestEncodeResponse_Shape(t *testing.T) {
	raw := EncodeResponse("tok", []byte("hello\n"), "", 0, 2048)

	assert.Equal(t, `{"clientToken":"tok","stdout":"hello ","stderr":"","exitCode":0}`, string(raw))
}

func TestEncodeResponse_EscapedOutputIsValidRecord(t *testing.T) {
	raw := EncodeResponse("tok", []byte("He said \"hi\"\nBye"), "", 0, 2048)

	resp := decode(t, raw)
	assert.Equal(t, "He said 'hi' Bye", resp.Stdout)
	assert.NotContains(t, resp.Stdout, "\"")
	assert.NotContains(t, resp.Stdout, "\n")
}

func TestEncodeResponse_NoScript(t *testing.T) {
	resp := decode(t, EncodeResponse("", nil, "No script provided", 1, 2048))

	assert.Equal(t, "", resp.ClientToken)
	assert.Equal(t, "No script provided", resp.Stderr)
	assert.Equal(t, 1, resp.ExitCode)
}

func TestEncodeResponse_TruncatesToBound(t *testing.T) {
	stdout := []byte(strings.Repeat("x\"\n", 5000))

	for _, limit := range []int{128, 512, 2048, 4097} {
		raw := EncodeResponse("token", stdout, "", 3, limit)

		assert.LessOrEqual(t, len(raw), limit)
		resp := decode(t, raw)
		assert.Equal(t, "token", resp.ClientToken)
		assert.Equal(t, 3, resp.ExitCode)
		assert.NotEmpty(t, resp.Stdout)
	}
}

func TestEncodeResponse_NeverSplitsEscapes(t *testing.T) {
	stdout := []byte(strings.Repeat("\\", 1000))

	for limit := 80; limit < 120; limit++ {
		raw := EncodeResponse("t", stdout, "", 0, limit)
		assert.LessOrEqual(t, len(raw), limit)
		decode(t, raw)
	}
}

func TestEncodeResponse_TinyBoundKeepsStructure(t *testing.T) {
	raw := EncodeResponse(strings.Repeat("t", 63), []byte("out"), "err", 0, 60)

	assert.LessOrEqual(t, len(raw), 60)
	resp := decode(t, raw)
	assert.Equal(t, "", resp.Stdout)
}

func TestEncodeResponse_Unbounded(t *testing.T) {
	stdout := []byte(strings.Repeat("a", 10000))

	resp := decode(t, EncodeResponse("t", stdout, "", 0, 0))
	assert.Len(t, resp.Stdout, 10000)
}

func TestEncodeResponse_TokenEchoedExactly(t *testing.T) {
	requests := []string{
		`{"clientToken":"a\\bA","script":"true"}`,
		`{"clientToken":"\u0041-1","script":"true"}`,
		`{"clientToken":"x\/y\tz","script":"true"}`,
		`{"clientToken":"plain-token","script":"true"}`,
	}

	for _, raw := range requests {
		var req struct {
			ClientToken string `json:"clientToken"`
		}
		require.NoError(t, json.Unmarshal([]byte(raw), &req))

		token := ExtractField([]byte(raw), "clientToken", 63)
		resp := decode(t, EncodeResponse(token, nil, "", 0, 2048))
		assert.Equal(t, req.ClientToken, resp.ClientToken, raw)
	}
}

func TestEncodeResponse_TokenCutInsideEscape(t *testing.T) {
	tests := map[string]string{
		`abc\`:      "abc",
		`abc\u00`:   "abc",
		`abc\q`:     `abc\q`,
		"tab\there": "tab\there",
	}

	for token, want := range tests {
		resp := decode(t, EncodeResponse(token, nil, "", 0, 2048))
		assert.Equal(t, want, resp.ClientToken, token)
	}
}

func TestEncodeResponse_TokenEscapeNotSplitByBound(t *testing.T) {
	token := strings.Repeat(`\u0041`, 10)

	for limit := 60; limit < 90; limit++ {
		raw := EncodeResponse(token, nil, "", 0, limit)
		assert.LessOrEqual(t, len(raw), limit)
		resp := decode(t, raw)
		assert.Equal(t, strings.Repeat("A", len(resp.ClientToken)), resp.ClientToken)
	}
}
