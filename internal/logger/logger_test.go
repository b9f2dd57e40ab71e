package logger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
		log.SetFormatter(&log.TextFormatter{})
	})

	var tests = []struct {
		name     string
		opts     Options
		level    log.Level
		errIsNil bool
	}{
		{"Defaults", Options{}, log.InfoLevel, true},
		{"Debug JSON", Options{Level: "debug", Format: "json"}, log.DebugLevel, true},
		{"Warning", Options{Level: "warning"}, log.WarnLevel, true},
		{"Bad Level", Options{Level: "verbose"}, log.WarnLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Configure(tt.opts)
			if !tt.errIsNil {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.level, log.GetLevel())
		})
	}
}

func TestConfigureWritesFile(t *testing.T) {
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	path := filepath.Join(t.TempDir(), "orphanscan.log")

	require.NoError(t, Configure(Options{File: path, MaxSizeMB: 1}))
	Info("hello %s", "file")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "hello file")
}

func TestRunPrefix(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	assert.Empty(t, RunID(context.Background()))

	ctx := WithRun(context.Background(), "scan")
	id := RunID(ctx)
	require.Len(t, id, 36)
	assert.NotEqual(t, id, RunID(WithRun(context.Background(), "scan")))

	Infof(ctx, "Found %d orphaned records.", 3)
	assert.Contains(t, buf.String(), "[scan] [id="+id+"] Found 3 orphaned records.")
}
