package socialauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"veris/apperr"
)

const facebookGraphURL = "https://graph.facebook.com"

// FacebookVerifier validates Facebook access tokens through the Graph API
// debug_token endpoint, then resolves the profile.
type FacebookVerifier struct {
	appID     string
	appSecret string
	baseURL   string
	http      *http.Client
}

// NewFacebookVerifier builds a verifier for the given app credentials.
func NewFacebookVerifier(appID, appSecret string) *FacebookVerifier {
	return &FacebookVerifier{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   facebookGraphURL,
		http:      &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *FacebookVerifier) Provider() string { return "facebook" }

func (v *FacebookVerifier) Verify(ctx context.Context, token string) (*UserInfo, error) {
	debugURL := fmt.Sprintf("%s/debug_token?input_token=%s&access_token=%s",
		v.baseURL, url.QueryEscape(token),
		url.QueryEscape(v.appID+"|"+v.appSecret))

	var debug struct {
		Data struct {
			AppID   string `json:"app_id"`
			IsValid bool   `json:"is_valid"`
			UserID  string `json:"user_id"`
		} `json:"data"`
	}
	if err := v.get(ctx, debugURL, &debug); err != nil {
		return nil, apperr.Wrap(apperr.ErrUnauthorized, err)
	}
	if !debug.Data.IsValid || debug.Data.AppID != v.appID || debug.Data.UserID == "" {
		return nil, apperr.ErrUnauthorized
	}

	profileURL := fmt.Sprintf("%s/me?fields=id,name,email&access_token=%s",
		v.baseURL, url.QueryEscape(token))
	var profile struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := v.get(ctx, profileURL, &profile); err != nil {
		return nil, apperr.Wrap(apperr.ErrUnauthorized, err)
	}
	if profile.ID != debug.Data.UserID {
		return nil, apperr.ErrUnauthorized
	}

	return &UserInfo{SubjectID: profile.ID, Email: profile.Email, Name: profile.Name}, nil
}

func (v *FacebookVerifier) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("graph api returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
