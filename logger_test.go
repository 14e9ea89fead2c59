package mdstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_SessionAndHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).
		WithSession("abc")
	ctx := context.Background()

	l.LogFlush(ctx, 3, nil)
	l.LogRestore(ctx, 0, errors.New("boom"))
	l.WithBox(7).LogExport(ctx, 1, 10, nil)

	out := buf.String()
	assert.Contains(t, out, `"session":"abc"`)
	assert.Contains(t, out, `"msg":"flush completed"`)
	assert.Contains(t, out, `"msg":"restore failed"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"box":7`)
	assert.Contains(t, out, `"rows":10`)
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
	l.LogFlush(context.Background(), 1, errors.New("ignored"))
}
