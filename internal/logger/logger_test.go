package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_JSONToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "drive.log")
	require.NoError(t, Configure(Config{Level: "WARN", Format: "json", Output: out}))
	t.Cleanup(func() {
		_ = Configure(Config{Level: "INFO", Format: "text"})
	})

	Info("hidden %d", 1)
	Warn("folder %s created", "Inbox")
	require.NoError(t, Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	text := string(data)
	assert.NotContains(t, text, "hidden")
	assert.Contains(t, text, `"msg":"folder Inbox created"`)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(text), "\n")+1)
}

func TestConfigure_RejectsUnknownFormat(t *testing.T) {
	assert.Error(t, Configure(Config{Format: "xml"}))
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("INFO") })

	SetLevel("debug")
	assert.True(t, Enabled("debug"))

	SetLevel("ERROR")
	assert.False(t, Enabled("warn"))
	assert.True(t, Enabled("error"))

	// unknown names leave the level alone
	SetLevel("verbose")
	assert.True(t, Enabled("error"))
	assert.False(t, Enabled("info"))
}
