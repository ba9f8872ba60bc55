package vela

import (
	"strings"
	"testing"

	"github.com/dekarrin/vela/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CompileSource_producesModule(t *testing.T) {
	var diags strings.Builder
	c, err := New(pipeline.DefaultConfig(), &diags)
	require.NoError(t, err)

	mod := c.CompileSource("ok.vl", "fn f() -> i32 { 40 + 2 }")

	require.NotNil(t, mod)
	assert.NotNil(t, mod.Function("f"))
	assert.Empty(t, diags.String())
}

func Test_CompileSource_rendersDiagnosticsAndWithholdsModule(t *testing.T) {
	var diags strings.Builder
	c, err := New(pipeline.DefaultConfig(), &diags)
	require.NoError(t, err)

	mod := c.CompileSource("bad.vl", "fn k() -> i32 { let x: i32 = true; x }")

	assert.Nil(t, mod)
	assert.Contains(t, diags.String(), "mismatched types")
	assert.Contains(t, diags.String(), "bad.vl")
}

func Test_New_rejectsBadConfig(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.OptLevel = 7
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
