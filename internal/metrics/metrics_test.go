package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveAndServe(t *testing.T) {
	m := New()
	m.ObserveTurn("ok", 300*time.Millisecond)
	m.ObserveCompletion("generate", nil)
	m.ObserveCompletion("research", errors.New("x"))
	m.ObserveSearch("duckduckgo", nil)

	require.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CompletionCalls.WithLabelValues("research", "error")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	require.Contains(t, string(body), `cloudx_search_calls_total{provider="duckduckgo",result="ok"} 1`)
}
