package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zeromicro/go-zero/core/logx"
)

func TestString_masksCredentialShapedSubstrings(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"api key", `connecting with api_key: "sk-abcdefgh12345678"`},
		{"bearer token", "Authorization: Bearer abcdefgh12345678"},
		{"secret", `secret="abcdefgh12345678"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := String(tc.input)
			assert.Contains(t, out, "***REDACTED***")
			assert.NotContains(t, out, "abcdefgh12345678")
		})
	}
}

func TestString_leavesOrdinaryTextAlone(t *testing.T) {
	in := "engine: bot bot-1 cycle succeeded in 40ms"
	assert.Equal(t, in, String(in))
}

type capturingWriter struct {
	last string
}

func (c *capturingWriter) Alert(v string)                        { c.last = v }
func (c *capturingWriter) Close() error                          { return nil }
func (c *capturingWriter) Error(v any, fields ...logx.LogField)  { c.last = v.(string) }
func (c *capturingWriter) Info(v any, fields ...logx.LogField)   { c.last = v.(string) }
func (c *capturingWriter) Severe(v any)                          { c.last = v.(string) }
func (c *capturingWriter) Slow(v any, fields ...logx.LogField)   { c.last = v.(string) }
func (c *capturingWriter) Stack(v any)                           { c.last = v.(string) }
func (c *capturingWriter) Stat(v any, fields ...logx.LogField)   { c.last = v.(string) }

func TestWriter_redactsBeforeDelegating(t *testing.T) {
	inner := &capturingWriter{}
	w := NewWriter(inner)

	w.Info(`api_key: "sk-abcdefgh12345678"`)

	assert.Contains(t, inner.last, "***REDACTED***")
	assert.NotContains(t, inner.last, "abcdefgh12345678")
}
