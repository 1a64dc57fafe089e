package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushgatewayPusherDisabled(t *testing.T) {
	pusher := NewPushgatewayPusher("  ", "invoicepay_remind", nil)

	assert.Nil(t, pusher)
	assert.NoError(t, pusher.Push(context.Background(), prometheus.NewRegistry()))
}

func TestPushgatewayPusherPushesGroup(t *testing.T) {
	var (
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "invoicepay_test_runs_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	pusher := NewPushgatewayPusher(srv.URL, "invoicepay_remind", map[string]string{"env": "test", "": "skipped"})
	require.NoError(t, pusher.Push(context.Background(), registry))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/invoicepay_remind/env/test", path)
	assert.NotEmpty(t, body)
}

func TestPushgatewayPusherRequiresJob(t *testing.T) {
	pusher := NewPushgatewayPusher("http://localhost:9091", " ", nil)

	assert.Error(t, pusher.Push(context.Background(), prometheus.NewRegistry()))
}
