package logging

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuailefengnan2024/Finetune/internal/config"
)

func TestSetupStderrOnly(t *testing.T) {
	closer, err := Setup(config.LogConfig{})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
}

func TestSetupWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "finetune.log")
	cfg := config.Default().Log
	cfg.File = path

	closer, err := Setup(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	log.Printf("resized %s", "a.png")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "resized a.png")
}
