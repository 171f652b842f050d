package diag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "warn", FormatJSON)
	require.NoError(t, err)

	l.Info().Msg("hidden")
	cl := Component(l, "writer")
	cl.Warn().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"component":"writer"`)
	assert.Contains(t, out, `"message":"shown"`)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(nil, "loud", FormatJSON)
	assert.Error(t, err)

	_, err = New(nil, "", "xml")
	assert.Error(t, err)

	_, err = New(nil, "", "")
	assert.NoError(t, err)
}
