// ABOUTME: Tests for message records, citation encoding and truncation helpers
// ABOUTME: Citations must re-encode in the shape they were decoded from

package conversation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCitation_KeepsShape(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		plain   bool
		display string
	}{
		{name: "object", in: `{"source":"MoH","snippet":"rest","score":0.9}`, display: "MoH: rest"},
		{name: "object without snippet", in: `{"source":"KEMRI"}`, display: "KEMRI"},
		{name: "plain string", in: `"Kenya Gazette 2023"`, plain: true, display: "Kenya Gazette 2023"},
		{name: "empty object", in: `{}`, display: ""},
		{name: "empty string", in: `""`, plain: true, display: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Citation
			require.NoError(t, json.Unmarshal([]byte(tt.in), &c))
			assert.Equal(t, tt.plain, c.IsPlain())
			assert.Equal(t, tt.display, c.String())

			out, err := json.Marshal(c)
			require.NoError(t, err)
			assert.JSONEq(t, tt.in, string(out))
		})
	}
}

func TestCitation_ZeroValuedObjectStaysObject(t *testing.T) {
	var c Citation
	require.NoError(t, json.Unmarshal([]byte(`{"source":"","snippet":"","score":0}`), &c))
	assert.False(t, c.IsPlain())

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(out))

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","text":"x","citations":[{},"KEMRI"]}`), &msg))
	out, err = json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","text":"x","citations":[{},"KEMRI"]}`, string(out))
}

func TestCitation_RejectsOtherShapes(t *testing.T) {
	var c Citation
	assert.Error(t, json.Unmarshal([]byte(`17`), &c))
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &c))
}

func TestMessage_OmitsEmptyOptionalFields(t *testing.T) {
	out, err := json.Marshal(Message{Role: RoleUser, Text: "habari"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","text":"habari"}`, string(out))

	confidence := 0.0
	out, err = json.Marshal(Message{Role: RoleAssistant, Text: "x", Confidence: &confidence, AuditID: "a1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","text":"x","confidence":0,"audit_id":"a1"}`, string(out))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{name: "short", text: "habari", limit: 30, want: "habari"},
		{name: "exact", text: strings.Repeat("x", 30), limit: 30, want: strings.Repeat("x", 30)},
		{name: "long", text: strings.Repeat("x", 31), limit: 30, want: strings.Repeat("x", 30) + "…"},
		{name: "multibyte counts runes", text: "mũno ũndũ", limit: 5, want: "mũno …"},
		{name: "empty", text: "", limit: 60, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.text, tt.limit))
		})
	}
}

func TestSnippetAndTitleLimits(t *testing.T) {
	long := strings.Repeat("k", 100)
	assert.Equal(t, strings.Repeat("k", 60)+"…", Snippet(long))
	assert.Equal(t, strings.Repeat("k", 30)+"…", Title(long))
}
