package compute

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInvokeForwardsEventAndDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "ping", body["message"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"echo":"pong"}`))
	}))
	defer server.Close()

	e := NewEngine()
	_, err := e.CreateFunction(FunctionConfig{Name: "echo-fn", InvokeURL: server.URL})
	require.NoError(t, err)

	out, err := e.Invoke(context.Background(), "echo-fn", map[string]interface{}{"message": "ping"})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"echo": "pong"}, out)
}

func TestInvokeUnknownFunctionReturnsNotFound(t *testing.T) {
	e := NewEngine()
	_, err := e.Invoke(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestInvokeSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	e := NewEngine()
	_, err := e.CreateFunction(FunctionConfig{Name: "broken-fn", InvokeURL: server.URL})
	require.NoError(t, err)

	_, err = e.Invoke(context.Background(), "broken-fn", nil)
	require.Error(t, err)
}
