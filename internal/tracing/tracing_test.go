package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_ReturnsUsableTracerAndShutdown(t *testing.T) {
	tracer, shutdown, err := Init("ashford-test")
	require.NoError(t, err)
	require.NotNil(t, tracer)
	defer func() { require.NoError(t, shutdown(context.Background())) }()

	ctx, traceID, end := JobSpan(context.Background(), tracer, "test.span")
	require.NotEmpty(t, traceID)
	require.NotNil(t, ctx)
	end(nil)
}

func TestJobSpan_RecordsError(t *testing.T) {
	tracer, shutdown, err := Init("ashford-test")
	require.NoError(t, err)
	defer func() { require.NoError(t, shutdown(context.Background())) }()

	_, traceID, end := JobSpan(context.Background(), tracer, "test.span.err")
	require.NotEmpty(t, traceID)
	end(errors.New("boom"))
}
