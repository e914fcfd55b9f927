package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/resilience"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// SMSConfig holds Twilio credentials for the SMS channel.
type SMSConfig struct {
	AccountSID string `yaml:"account_sid" mapstructure:"account_sid"`
	AuthToken  string `yaml:"auth_token" mapstructure:"auth_token"`
	From       string `yaml:"from" mapstructure:"from"`
	To         string `yaml:"to" mapstructure:"to"`
}

// SMSChannel delivers alerts as text messages through the Twilio REST API.
type SMSChannel struct {
	cfg     SMSConfig
	baseURL string
	client  *http.Client
}

func NewSMSChannel(cfg SMSConfig) *SMSChannel {
	return &SMSChannel{
		cfg:     cfg,
		baseURL: twilioBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Send(ctx context.Context, alert model.Alert) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.cfg.AccountSID)

	form := url.Values{}
	form.Set("From", c.cfg.From)
	form.Set("To", c.cfg.To)
	form.Set("Body", subject(alert)+": "+alert.Message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return eris.Wrap(err, "notify: build sms request")
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: send sms")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err = eris.Errorf("notify: twilio returned %d: %s", resp.StatusCode, string(body))
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(err, resp.StatusCode)
	}
	return err
}
