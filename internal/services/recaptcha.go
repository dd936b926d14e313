package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrCaptchaFailed means the token was checked and rejected.
var ErrCaptchaFailed = errors.New("captcha verification failed")

const recaptchaEndpoint = "https://www.google.com/recaptcha/api/siteverify"

// RecaptchaVerifier checks contact form tokens with reCAPTCHA v2.
type RecaptchaVerifier struct {
	Secret string
	// Hostname, when set, must match the site the token was solved on.
	Hostname   string
	HTTPClient *http.Client
	Endpoint   string
}

type siteverifyResult struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// NewRecaptchaVerifier builds a verifier. siteURL is the public base URL;
// its host is compared against the hostname Google reports.
func NewRecaptchaVerifier(secret, siteURL string) *RecaptchaVerifier {
	v := &RecaptchaVerifier{
		Secret:     strings.TrimSpace(secret),
		Endpoint:   recaptchaEndpoint,
		HTTPClient: &http.Client{Timeout: 8 * time.Second},
	}
	if u, err := url.Parse(strings.TrimSpace(siteURL)); err == nil {
		v.Hostname = u.Hostname()
	}
	return v
}

// Verify checks a token. A rejected token yields an error wrapping
// ErrCaptchaFailed with the reason; transport problems are returned as is.
func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: missing-input-response", ErrCaptchaFailed)
	}

	form := url.Values{"secret": {v.Secret}, "response": {token}}
	if ip := strings.TrimSpace(remoteIP); ip != "" {
		form.Set("remoteip", ip)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := v.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("recaptcha siteverify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recaptcha siteverify http %d", resp.StatusCode)
	}

	var res siteverifyResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("recaptcha siteverify decode: %w", err)
	}
	if !res.Success {
		reason := "verification-failed"
		if len(res.ErrorCodes) > 0 {
			reason = strings.Join(res.ErrorCodes, ",")
		}
		return fmt.Errorf("%w: %s", ErrCaptchaFailed, reason)
	}
	if v.Hostname != "" && v.Hostname != "localhost" && !strings.EqualFold(res.Hostname, v.Hostname) {
		return fmt.Errorf("%w: hostname %q", ErrCaptchaFailed, res.Hostname)
	}
	return nil
}
