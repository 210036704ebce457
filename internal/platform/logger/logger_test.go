package logger_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/matrix-api/internal/config"
	"github.com/phrazzld/matrix-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupValidLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "WARN"} {
		log, err := logger.Setup(config.ServerConfig{Port: 8080, LogLevel: level})
		require.NoError(t, err, "level %s", level)
		assert.NotNil(t, log)
	}
}

func TestSetupInvalidLevelFallsBack(t *testing.T) {
	log, err := logger.Setup(config.ServerConfig{Port: 8080, LogLevel: "verbose"})
	require.NoError(t, err)
	assert.NotNil(t, log)
	assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
}

func TestContextRoundTrip(t *testing.T) {
	base := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx := logger.WithLogger(context.Background(), base)
	assert.Same(t, base, logger.FromContext(ctx))
	assert.Same(t, base, logger.FromContextOrDefault(ctx, nil))
}

func TestFromContextWithoutLogger(t *testing.T) {
	ctx := context.Background()

	assert.NotNil(t, logger.FromContext(ctx))

	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, fallback, logger.FromContextOrDefault(ctx, fallback))
}
