package phoneverify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "proxpay/pkg/errors"
	"proxpay/pkg/logger"
)

const twilioVerifyBaseURL = "https://verify.twilio.com/v2"

// TwilioProvider delivers codes through the Twilio Verify API.
type TwilioProvider struct {
	accountSID string
	authToken  string
	serviceSID string
	client     *http.Client
	logger     logger.Logger
}

func NewTwilioProvider(accountSID, authToken, serviceSID string, log logger.Logger) *TwilioProvider {
	return &TwilioProvider{
		accountSID: accountSID,
		authToken:  authToken,
		serviceSID: serviceSID,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

// Configured reports whether credentials are present.
func (p *TwilioProvider) Configured() bool {
	return p.accountSID != "" && p.authToken != "" && p.serviceSID != ""
}

func (p *TwilioProvider) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return pkgerrors.Wrap(err, "build verify request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrProviderError, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return pkgerrors.Wrap(pkgerrors.ErrProviderError, fmt.Sprintf("verify API returned %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrProviderError, "decode verify response")
	}
	return nil
}

// SendCode starts an SMS verification for the phone number.
func (p *TwilioProvider) SendCode(ctx context.Context, phoneNumber string) error {
	if !p.Configured() {
		return pkgerrors.ErrProviderUnavailable
	}

	endpoint := fmt.Sprintf("%s/Services/%s/Verifications", twilioVerifyBaseURL, p.serviceSID)
	form := url.Values{"To": {phoneNumber}, "Channel": {"sms"}}

	var body struct {
		Status string `json:"status"`
	}
	if err := p.postForm(ctx, endpoint, form, &body); err != nil {
		return err
	}

	p.logger.Info("Verification code sent", map[string]interface{}{
		"phone_number": phoneNumber,
		"status":       body.Status,
	})
	return nil
}

// CheckCode checks a submitted code against the outstanding verification.
func (p *TwilioProvider) CheckCode(ctx context.Context, phoneNumber, code string) (bool, error) {
	if !p.Configured() {
		return false, pkgerrors.ErrProviderUnavailable
	}

	endpoint := fmt.Sprintf("%s/Services/%s/VerificationCheck", twilioVerifyBaseURL, p.serviceSID)
	form := url.Values{"To": {phoneNumber}, "Code": {code}}

	var body struct {
		Status string `json:"status"`
	}
	if err := p.postForm(ctx, endpoint, form, &body); err != nil {
		return false, err
	}

	return body.Status == "approved", nil
}
