package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The package-level loggers must be usable by any importer without a setup
// call; only main wires file rotation.
func TestLoggersUsableWithoutInit(t *testing.T) {
	require.NotNil(t, InfoLogger)
	require.NotNil(t, WarnLogger)
	require.NotNil(t, ErrorLogger)

	var buf bytes.Buffer
	InfoLogger.SetOutput(&buf)
	defer InfoLogger.SetOutput(os.Stdout)

	assert.NotPanics(t, func() {
		InfoLogger.Infof("booking %s reconciled", "b1")
	})
	assert.Contains(t, buf.String(), "reconciled")
}

func TestInitLoggersReplacesDefaults(t *testing.T) {
	t.Setenv("LOG_DIR", t.TempDir())
	InitLoggers()

	require.NotNil(t, InfoLogger)
	require.NotNil(t, WarnLogger)
	require.NotNil(t, ErrorLogger)
	assert.Equal(t, logrus.InfoLevel, InfoLogger.GetLevel())
	assert.Equal(t, logrus.WarnLevel, WarnLogger.GetLevel())
	assert.Equal(t, logrus.ErrorLevel, ErrorLogger.GetLevel())
}
