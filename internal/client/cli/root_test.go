package cli

import (
	"testing"

	"github.com/dmitrijs2005/fieldseal/internal/client/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand(&config.Config{})
	require.NotNil(t, cmd)
	assert.Equal(t, "fieldseal", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(&config.Config{})
	paths := [][]string{
		{"job", "create"}, {"job", "update"}, {"job", "advance"}, {"job", "sign"},
		{"job", "pull"}, {"job", "list"}, {"job", "show"}, {"job", "draft", "save"},
		{"contact", "save"}, {"contact", "list"},
		{"photo", "add"}, {"photo", "list"},
		{"sync"}, {"daemon"}, {"status"},
		{"queue", "list"}, {"queue", "cancel"},
		{"failed", "list"}, {"failed", "retry"}, {"failed", "ack"},
		{"conflicts", "list"}, {"conflicts", "resolve"}, {"conflicts", "check"},
		{"seal"}, {"can-seal"}, {"verify"}, {"export"},
		{"share", "issue"}, {"share", "revoke"},
	}
	for _, p := range paths {
		sub, _, err := cmd.Find(p)
		require.NoError(t, err, "command %v should exist", p)
		assert.Equal(t, p[len(p)-1], sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand(&config.Config{})

	out := cmd.PersistentFlags().Lookup("output")
	require.NotNil(t, out)
	assert.Equal(t, "o", out.Shorthand)
	assert.Equal(t, "text", out.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("ask-legacy-secret"))
}

func TestInvalidOutputIsRejected(t *testing.T) {
	cmd := NewRootCommand(&config.Config{})
	cmd.SetArgs([]string{"-o", "yaml", "status"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid output "yaml"`)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2026-05-04")
	require.NoError(t, err)
	assert.Equal(t, "2026-05-04T00:00:00Z", d.Format("2006-01-02T15:04:05Z07:00"))

	d, err = parseDate("2026-05-04T10:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 8, d.Hour())

	d, err = parseDate("")
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = parseDate("04/05/2026")
	require.Error(t, err)
}
