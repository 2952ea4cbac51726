package rpcnotary

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitSuccess(t *testing.T) {
	var gotMethod string
	var gotParams []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req rpcRequest
		require.NoError(t, json.Unmarshal(body, &req))
		gotMethod = req.Method
		gotParams = req.Params
		_ = json.NewEncoder(w).Encode(rpcResponse{Result: "0xabc"})
	}))
	defer srv.Close()

	c := New(Config{RPCURL: srv.URL, ContractAddress: "0xc0ffee", Timeout: 2 * time.Second})
	ref, err := c.Submit(context.Background(), []byte{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", ref)
	assert.Equal(t, submitMethod, gotMethod)
	require.Len(t, gotParams, 2)
	assert.Equal(t, "0xc0ffee", gotParams[0])
	assert.Equal(t, "0xdead", gotParams[1])
}

func TestSubmitRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rpcResponse{Error: &rpcError{Code: -32000, Message: "out of gas"}})
	}))
	defer srv.Close()

	c := New(Config{RPCURL: srv.URL, Timeout: 2 * time.Second})
	_, err := c.Submit(context.Background(), []byte{0x01})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of gas")
}

func TestSubmitHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{RPCURL: srv.URL, Timeout: 2 * time.Second})
	_, err := c.Submit(context.Background(), []byte{0x01})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestSubmitUnreachable(t *testing.T) {
	c := New(Config{RPCURL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond})
	_, err := c.Submit(context.Background(), []byte{0x01})
	require.Error(t, err)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{RPCURL: srv.URL, Timeout: time.Second})
	for i := 0; i < 10; i++ {
		_, err := c.Submit(context.Background(), []byte{0x01})
		require.Error(t, err)
	}
	// Once the breaker opens, submissions fail fast without reaching the server.
	assert.Less(t, calls, 10)

	_, err := c.Submit(context.Background(), []byte{0x01})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "circuit breaker is open") || calls < 11)
}
