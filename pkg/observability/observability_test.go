package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestComponentTracer(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultTracingConfig()
	cfg.ServiceVersion = "test"
	cfg.Writer = &out

	require.NoError(t, InitTracing(cfg))
	t.Cleanup(func() { _ = Shutdown(context.Background()) })

	tracer := NewComponentTracer("estimator")
	testErr := errors.New("page fault")

	err := tracer.Trace(context.Background(), "estimate", func(ctx context.Context) error {
		return testErr
	}, attribute.String("table", "account"))
	assert.ErrorIs(t, err, testErr)

	err = tracer.Trace(context.Background(), "estimate", func(ctx context.Context) error {
		header := http.Header{}
		InjectHeaders(ctx, header)
		assert.NotEmpty(t, header.Get("traceparent"))
		return nil
	})
	assert.NoError(t, err)

	require.NoError(t, Shutdown(context.Background()))
	assert.Contains(t, out.String(), "estimator.estimate")
}

func TestShutdownWithoutInit(t *testing.T) {
	assert.NoError(t, Shutdown(context.Background()))
}
