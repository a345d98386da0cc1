package comms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veris/apperr"
)

func TestSendMail(t *testing.T) {
	var got Mail
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/mail/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.SendMail(context.Background(), Mail{
		Recipients: []string{"a@b.com"},
		TemplateID: 10,
		Params:     map[string]string{"otp": "1234"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@b.com"}, got.Recipients)
	assert.Equal(t, 10, got.TemplateID)
	assert.Equal(t, "1234", got.Params["otp"])
}

func TestSendMailGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.SendMail(context.Background(), Mail{Recipients: []string{"a@b.com"}})
	assert.ErrorIs(t, err, apperr.ErrDispatchFailed)
}

func TestSendMailGatewayFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": "quota"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.SendSMS(context.Background(), "15551234567", "code 1234")
	assert.ErrorIs(t, err, apperr.ErrDispatchFailed)
}

func TestVerifyMobile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		valid := body["mobile"] == "7001112222"
		if !valid {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "valid": true})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.VerifyMobile(context.Background(), "+1", "7001112222"))

	err := client.VerifyMobile(context.Background(), "+1", "0000")
	assert.ErrorIs(t, err, apperr.ErrMobileInvalid)
}

func TestClientUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	err := client.SendSMS(context.Background(), "15551234567", "hi")
	assert.ErrorIs(t, err, apperr.ErrDispatchFailed)
}
