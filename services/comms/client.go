// Package comms talks to the internal communications gateway for templated
// mail, SMS dispatch and mobile number verification.
package comms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"veris/apperr"
	"veris/utils"
)

// Dispatcher is the outbound messaging surface consumed by the OTP and
// registration services.
type Dispatcher interface {
	SendMail(ctx context.Context, mail Mail) error
	SendSMS(ctx context.Context, mobile, message string) error
	VerifyMobile(ctx context.Context, callingCode, mobile string) error
}

// Mail is a templated email dispatch request.
type Mail struct {
	Recipients []string          `json:"recipients"`
	TemplateID int               `json:"template_id"`
	Params     map[string]string `json:"params"`
	Subject    string            `json:"subject,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// Client is an HTTP Dispatcher against the comms gateway.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client for the given gateway base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type gatewayResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	logger := utils.GetLogger()

	payload, err := json.Marshal(body)
	if err != nil {
		return apperr.Wrap(apperr.ErrDispatchFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperr.Wrap(apperr.ErrDispatchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error("comms gateway unreachable", zap.String("path", path), zap.Error(err))
		return apperr.Wrap(apperr.ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Error("comms gateway rejected dispatch",
			zap.String("path", path), zap.Int("status", resp.StatusCode))
		return apperr.Wrap(apperr.ErrDispatchFailed,
			fmt.Errorf("gateway returned %d", resp.StatusCode))
	}

	var gw gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gw); err != nil {
		return apperr.Wrap(apperr.ErrDispatchFailed, err)
	}
	if gw.Status != "success" {
		return apperr.Wrap(apperr.ErrDispatchFailed,
			fmt.Errorf("gateway status %q: %s", gw.Status, gw.Message))
	}
	return nil
}

// SendMail dispatches a templated email.
func (c *Client) SendMail(ctx context.Context, mail Mail) error {
	return c.post(ctx, "/mail/send", mail)
}

// SendSMS dispatches a plain text message to a full international number.
func (c *Client) SendSMS(ctx context.Context, mobile, message string) error {
	return c.post(ctx, "/sms/send", map[string]string{
		"mobile":  mobile,
		"message": message,
	})
}

// VerifyMobile asks the gateway whether a number is reachable before any OTP
// is sent to it.
func (c *Client) VerifyMobile(ctx context.Context, callingCode, mobile string) error {
	payload := map[string]string{
		"calling_code": callingCode,
		"mobile":       mobile,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.ErrDispatchFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mobile/verify", bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.ErrDispatchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return apperr.ErrMobileInvalid
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return apperr.Wrap(apperr.ErrDispatchFailed,
			fmt.Errorf("gateway returned %d", resp.StatusCode))
	}

	var gw struct {
		Status string `json:"status"`
		Valid  bool   `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&gw); err != nil {
		return apperr.Wrap(apperr.ErrDispatchFailed, err)
	}
	if !gw.Valid {
		return apperr.ErrMobileInvalid
	}
	return nil
}
