package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/entrhq/webtest/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_Disabled(t *testing.T) {
	rt, err := Setup(context.Background(), config.TraceConfig{}, nil)
	require.NoError(t, err)
	require.NotNil(t, rt.Tracer)
	assert.NoError(t, rt.Shutdown(context.Background()))
}

func TestSetup_StdoutExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	rt, err := Setup(context.Background(), config.TraceConfig{Enabled: true}, &buf)
	require.NoError(t, err)

	_, span := rt.Tracer.Start(context.Background(), "run")
	span.End()
	require.NoError(t, rt.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name": "run"`)
	assert.Contains(t, buf.String(), ServiceName)
}
