package fusion

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestExecutor points an Executor at a test server. The returned span
// recorder sees every span the Executor ends.
func newTestExecutor(t *testing.T, baseURL string, mutate ...func(*Options)) (*Executor, *tracetest.SpanRecorder) {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	opts := Options{
		HTTPClient: http.DefaultClient,
		BaseURL:    baseURL,
		UploadURL:  baseURL + "/upload",
		Tracer:     tp.Tracer("test"),
		Logger:     discardLogger(),
	}

	for _, m := range mutate {
		m(&opts)
	}

	return NewExecutor(opts), sr
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
