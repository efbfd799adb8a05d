package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "certproof")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartEnd_RecordsAttributesAndError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	_, span := Start(context.Background(), tracer, "ocr.recognize", "document_type", "cni", "dangling")
	End(span, errors.New("tesseract exited"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "ocr.recognize", spans[0].Name())
	require.Len(t, spans[0].Attributes(), 1)
	assert.Equal(t, "cni", spans[0].Attributes()[0].Value.AsString())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
