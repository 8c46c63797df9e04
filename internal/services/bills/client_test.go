package bills

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBillerClient_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/electricity/vend", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "TXN1", payload["reference"])
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","token":"1234-5678","units":"42.1"}`))
	}))
	defer srv.Close()

	client := NewHTTPBillerClient(srv.URL, "key", 0)
	resp, err := client.Call(context.Background(), "/electricity/vend", map[string]interface{}{"reference": "TXN1"})
	require.NoError(t, err)
	assert.True(t, resp.Status)
	assert.Equal(t, "1234-5678", resp.Token)
	assert.Equal(t, "42.1", resp.Raw["units"])
}

func TestHTTPBillerClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/unavailable":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/rejected":
			w.WriteHeader(http.StatusUnprocessableEntity)
		default:
			_, _ = w.Write([]byte("<html>gateway</html>"))
		}
	}))
	defer srv.Close()
	client := NewHTTPBillerClient(srv.URL, "", 0)

	_, err := client.Call(context.Background(), "/unavailable", nil)
	assert.ErrorIs(t, err, ErrDeliveryUnknown)

	_, err = client.Call(context.Background(), "/garbled", nil)
	assert.ErrorIs(t, err, ErrDeliveryUnknown)

	_, err = client.Call(context.Background(), "/rejected", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeliveryUnknown)

	_, err = NewHTTPBillerClient("http://127.0.0.1:1", "", 0).Call(context.Background(), "/airtime/purchase", nil)
	assert.ErrorIs(t, err, ErrDeliveryUnknown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewHTTPBillerClient(srv.URL, "", 0).Call(ctx, "/airtime/purchase", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
