package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate_PlainTextFastPath(t *testing.T) {
	out, err := RenderTemplate("no markers here", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers here", out)
}

func TestRenderTemplate_Substitution(t *testing.T) {
	out, err := RenderTemplate("Research {{.query}} using {{join \", \" .domains}}", map[string]any{
		"query":   "digital policy",
		"domains": []string{"europa.eu", "oecd.org"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Research digital policy using europa.eu, oecd.org", out)
}

func TestRenderTemplate_DefaultFunc(t *testing.T) {
	out, err := RenderTemplate(`{{default "unknown" .missing}}`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "unknown", out)
}

func TestRenderTemplate_ParseError(t *testing.T) {
	_, err := RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}
