package payout

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHTTPRail_InitiateTransfer(t *testing.T) {
	var got disbursementBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, disbursementPath, r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, signed("secret", body), r.Header.Get("Signature"))
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"requestSuccessful":true,"responseMessage":"accepted",
			"responseBody":{"status":"PENDING","reference":"TXNABC","transactionReference":"MNFY-1"}}`))
	}))
	defer srv.Close()

	rail := NewHTTPRail(HTTPConfig{BaseURL: srv.URL + "/", APIKey: "key", Secret: "secret"}, nil)
	res, err := rail.InitiateTransfer(context.Background(), TransferRequest{
		Reference:     "TXNABC",
		Amount:        decimal.RequireFromString("2500"),
		Currency:      "NGN",
		BankCode:      "058",
		AccountNumber: "0123456789",
		Narration:     "rent",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, "MNFY-1", res.ExternalReference)
	assert.Equal(t, "2500.00", got.Amount)
	assert.Equal(t, "TXNABC", got.Reference)
	assert.Equal(t, "058", got.DestinationBankCode)
}

func TestHTTPRail_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		want    Status
		wantErr bool
	}{
		{"success", 200, `{"requestSuccessful":true,"responseBody":{"status":"SUCCESS","transactionReference":"X"}}`, StatusSuccessful, false},
		{"failed", 200, `{"requestSuccessful":true,"responseBody":{"status":"FAILED"}}`, StatusFailed, false},
		{"not successful", 200, `{"requestSuccessful":false,"responseMessage":"invalid account"}`, StatusFailed, false},
		{"bad request", 400, `{"requestSuccessful":false,"responseMessage":"bad bank"}`, StatusFailed, false},
		{"server error", 502, `oops`, "", true},
		{"garbage", 200, `not json`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			rail := NewHTTPRail(HTTPConfig{BaseURL: srv.URL}, nil)
			res, err := rail.QueryTransfer(context.Background(), "TXN1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
		})
	}
}

func TestHTTPRail_QuerySendsReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, queryPath, r.URL.Path)
		assert.Equal(t, "TXN 9", r.URL.Query().Get("transactionReference"))
		_, _ = w.Write([]byte(`{"requestSuccessful":true,"responseBody":{"status":"PAID"}}`))
	}))
	defer srv.Close()

	res, err := NewHTTPRail(HTTPConfig{BaseURL: srv.URL}, nil).QueryTransfer(context.Background(), "TXN 9")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, res.Status)
}

func TestHTTPRail_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	_, err := NewHTTPRail(HTTPConfig{BaseURL: base}, nil).InitiateTransfer(context.Background(), TransferRequest{
		Reference: "TXN1",
		Amount:    decimal.NewFromInt(10),
	})
	assert.Error(t, err)
}

func TestHTTPRail_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPRail(HTTPConfig{BaseURL: "http://127.0.0.1:1"}, nil).QueryTransfer(ctx, "TXN1")
	assert.ErrorIs(t, err, context.Canceled)
}
