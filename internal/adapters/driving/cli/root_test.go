package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/logger"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0, len(rootCmd.Commands()))
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}

	for _, want := range []string{"index", "query", "reference", "document", "settings", "mcp", "watch", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_VerboseFlag(t *testing.T) {
	defer logger.SetVerbose(false)

	_, err := execute(t, "", "--verbose", "version")
	require.NoError(t, err)
	assert.True(t, logger.IsVerbose())

	_, err = execute(t, "", "version")
	require.NoError(t, err)
	assert.False(t, logger.IsVerbose())
}

func TestSetServices(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	assert.Same(t, ts.index, indexService)
	assert.Same(t, ts.query, queryService)
	assert.Same(t, ts.reference, referenceService)
	assert.Same(t, ts.document, documentService)
	assert.Same(t, ts.settings, settingsService)
}

func TestSetVersion(t *testing.T) {
	original := version
	defer func() { version = original }()

	SetVersion("1.2.3")
	assert.Equal(t, "1.2.3", version)

	SetVersion("")
	assert.Equal(t, "1.2.3", version)
}
