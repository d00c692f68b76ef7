package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

func TestLevelThreshold(t *testing.T) {
	levels := []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

	testCases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}

	for input, threshold := range testCases {
		t.Run(input, func(t *testing.T) {
			for _, format := range []logging.Format{logging.FormatConsole, logging.FormatJSON} {
				var buf bytes.Buffer
				logger := logging.New(input, &buf, logging.WithFormat(format))
				for _, lv := range levels {
					logger.Log(context.Background(), lv, "message at "+lv.String())
				}

				for _, lv := range levels {
					if lv >= threshold {
						gt.S(t, buf.String()).Contains("message at " + lv.String())
					} else {
						gt.S(t, buf.String()).NotContains("message at " + lv.String())
					}
				}
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New("info", &buf, logging.WithFormat(logging.FormatJSON))

	logger.Info("index rebuilt", "docs", 3)

	var record map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	gt.Equal(t, record["msg"], any("index rebuilt"))
	gt.Equal(t, record["docs"], any(float64(3)))
}

func TestParseFormat(t *testing.T) {
	testCases := []struct {
		input  string
		expect logging.Format
		hasErr bool
	}{
		{"", logging.FormatConsole, false},
		{"console", logging.FormatConsole, false},
		{"JSON", logging.FormatJSON, false},
		{"xml", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			f, err := logging.ParseFormat(tc.input)
			if tc.hasErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.Equal(t, f, tc.expect)
		})
	}
}

func TestErrAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New("info", &buf)

	logger.Error("plain", logging.ErrAttr(errors.New("disk full")))
	logger.Error("wrapped", logging.ErrAttr(goerr.New("snapshot broken", goerr.V("key", "indexes/latest.json"))))

	out := buf.String()
	gt.S(t, out).Contains("disk full")
	gt.S(t, out).Contains("snapshot broken")
}

func TestContextLogger(t *testing.T) {
	original := logging.Default()
	t.Cleanup(func() { logging.SetDefault(original) })

	var fallback bytes.Buffer
	logging.SetDefault(logging.New("info", &fallback))

	t.Run("default when context has none", func(t *testing.T) {
		logging.From(context.Background()).Info("to default")
		gt.S(t, fallback.String()).Contains("to default")
	})

	t.Run("attached logger wins", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.New("info", &buf).With("component", "memory")
		ctx := logging.With(context.Background(), logger)

		gt.Equal(t, logging.From(ctx), logger)
		logging.From(ctx).Info("to context")
		gt.S(t, buf.String()).Contains("to context")
		gt.S(t, buf.String()).Contains("memory")
		gt.S(t, fallback.String()).NotContains("to context")
	})
}
