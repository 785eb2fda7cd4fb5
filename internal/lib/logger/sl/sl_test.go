package sl

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestNewLoggerRespectsLevelAndFormat(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	log := newLogger(&buf, "warn", "text")

	log.Info("hidden")
	log.Warn("shown", Err(errors.New("boom")))

	out := buf.String()
	is.True(!strings.Contains(out, "hidden"))
	is.True(strings.Contains(out, "shown"))
	is.True(strings.Contains(out, "error=boom"))
}

func TestNewLoggerDefaultsToJSON(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	log := newLogger(&buf, "", "")
	log.Info("hello", slog.String("k", "v"))

	is.True(strings.HasPrefix(buf.String(), "{"))
	is.True(strings.Contains(buf.String(), `"k":"v"`))
}

func TestErrHandlesNil(t *testing.T) {
	is := is.New(t)
	is.Equal(Err(nil).Value.String(), "<nil>")
}
