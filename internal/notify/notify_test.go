package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushoverSend(t *testing.T) {
	var gotForm url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotForm, err = url.ParseQuery(string(body))
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewPushover(server.URL, "app-token", "user-key", time.Second)
	err := p.Send(context.Background(), "Temperature 35.2 exceeds 30.0")
	require.NoError(t, err)

	assert.Equal(t, "app-token", gotForm.Get("token"))
	assert.Equal(t, "user-key", gotForm.Get("user"))
	assert.Equal(t, "Temperature 35.2 exceeds 30.0", gotForm.Get("message"))
}

func TestPushoverSendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"errors":["invalid token"]}`)
	}))
	defer server.Close()

	p := NewPushover(server.URL, "bad", "bad", time.Second)
	err := p.Send(context.Background(), "x")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestPushoverSendUnreachable(t *testing.T) {
	p := NewPushover("http://127.0.0.1:1", "t", "u", 100*time.Millisecond)
	assert.Error(t, p.Send(context.Background(), "x"))
}

func TestPushoverSendContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := NewPushover(server.URL, "t", "u", time.Second)
	assert.Error(t, p.Send(ctx, "x"))
}

func TestWebhookSend(t *testing.T) {
	var got map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	wh := NewWebhook(server.URL, time.Second)
	require.NoError(t, wh.Send(context.Background(), "hello"))
	assert.Equal(t, "hello", got["message"])
}

func TestWebhookSendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	wh := NewWebhook(server.URL, time.Second)
	assert.Error(t, wh.Send(context.Background(), "x"))
}
