package testlog

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// Start configures logging for one test. Quiet by default; set
// CAMRELAY_TEST_LOG=debug to see everything.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	level := zerolog.Disabled
	if os.Getenv("CAMRELAY_TEST_LOG") == "debug" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(level).With().Str("test", t.Name()).Logger()
	return logger
}
