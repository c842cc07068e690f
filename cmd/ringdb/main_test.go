package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogging_AllLevels(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"unknown", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}

	for _, tt := range tests {
		name := tt.input
		if name == "" {
			name = "empty"
		}
		t.Run(name, func(t *testing.T) {
			setupLogging(tt.input)
			assert.Equal(t, tt.expected, logrus.GetLevel())
		})
	}
}

func TestSetupLogging_JSONFormatter(t *testing.T) {
	setupLogging("info")

	formatter, ok := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	require.True(t, ok, "formatter should be JSONFormatter")
	assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
}

func TestSetupLogging_OutputIsValidJSON(t *testing.T) {
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	defer logrus.SetOutput(os.Stderr)

	setupLogging("info")
	logrus.WithField("room", "private").Info("replica ready")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "replica ready", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "private", entry["room"])
}

func TestRootCommand_Flags(t *testing.T) {
	rootCmd := newRootCommandForTest()

	for _, name := range []string{
		"config", "data-dir", "log-level", "parallelism", "max-object-size",
		"admin-listen", "app-key", "key-material-file", "datamodel", "datamodel-file",
	} {
		flag := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, "flag %q should be registered", name)
	}

	assert.Equal(t, "ringdb", rootCmd.Use)
}

func TestLoadDatamodel_InlineFlag(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("datamodel", "", "")
	cmd.Flags().String("datamodel-file", "", "")
	require.NoError(t, cmd.Flags().Set("datamodel", "Greetings{message:String}"))

	dm, err := loadDatamodel(cmd)
	require.NoError(t, err)
	assert.Equal(t, "Greetings{message:String}", dm)
}

func TestLoadDatamodel_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/datamodel.txt"
	require.NoError(t, os.WriteFile(path, []byte("Greetings{message:String}"), 0o600))

	cmd := &cobra.Command{}
	cmd.Flags().String("datamodel", "", "")
	cmd.Flags().String("datamodel-file", "", "")
	require.NoError(t, cmd.Flags().Set("datamodel-file", path))

	dm, err := loadDatamodel(cmd)
	require.NoError(t, err)
	assert.Equal(t, "Greetings{message:String}", dm)
}

func TestLoadDatamodel_NeitherProvided(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("datamodel", "", "")
	cmd.Flags().String("datamodel-file", "", "")

	_, err := loadDatamodel(cmd)
	assert.Error(t, err)
}

func TestRunReplica_RequiresAppKey(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCommandForTest()
	require.NoError(t, cmd.Flags().Set("data-dir", dir))
	require.NoError(t, cmd.Flags().Set("log-level", "error"))

	err := runReplica(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app-key")
}

func TestRunReplica_RequiresKeyMaterialFile(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCommandForTest()
	require.NoError(t, cmd.Flags().Set("data-dir", dir))
	require.NoError(t, cmd.Flags().Set("log-level", "error"))
	require.NoError(t, cmd.Flags().Set("app-key", "myapp"))

	err := runReplica(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key-material-file")
}

// newRootCommandForTest builds the same flag set main() registers, without
// calling cobra's Execute (which would parse os.Args).
func newRootCommandForTest() *cobra.Command {
	cmd := &cobra.Command{Use: "ringdb", RunE: runReplica}
	cmd.PersistentFlags().StringP("config", "c", "", "")
	cmd.PersistentFlags().StringP("data-dir", "d", "", "")
	cmd.PersistentFlags().StringP("log-level", "", "info", "")
	cmd.PersistentFlags().IntP("parallelism", "", 4, "")
	cmd.PersistentFlags().IntP("max-object-size", "", 256, "")
	cmd.PersistentFlags().StringP("admin-listen", "", ":9090", "")
	cmd.PersistentFlags().StringP("app-key", "", "", "")
	cmd.PersistentFlags().StringP("key-material-file", "", "", "")
	cmd.PersistentFlags().StringP("datamodel", "", "", "")
	cmd.PersistentFlags().StringP("datamodel-file", "", "", "")
	return cmd
}
