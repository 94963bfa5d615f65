package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioBaseURL = "https://api.twilio.com/2010-04-01"

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// FromNumber is the caller id for outbound calls.
	FromNumber string

	// VoiceURL and StatusURL are this service's public webhook endpoints.
	VoiceURL  string
	StatusURL string

	BaseURL    string
	HTTPClient *http.Client
}

// TwilioProvider talks to the Twilio REST API with basic auth and form posts.
type TwilioProvider struct {
	cfg    TwilioConfig
	client *http.Client
	now    func() time.Time
}

func NewTwilioProvider(cfg TwilioConfig) (*TwilioProvider, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: twilio account sid and auth token are required", ErrInvalidArgument)
	}
	if cfg.VoiceURL == "" {
		return nil, fmt.Errorf("%w: voice webhook url is required", ErrInvalidArgument)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TwilioProvider{cfg: cfg, client: client, now: time.Now}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

// HealthCheck fetches the account resource.
func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s.json", p.cfg.BaseURL, url.PathEscape(p.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return p.do(req, nil)
}

type twilioCall struct {
	SID         string `json:"sid"`
	To          string `json:"to"`
	From        string `json:"from"`
	Status      string `json:"status"`
	DateCreated string `json:"date_created"`
}

func (p *TwilioProvider) StartOutboundCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error) {
	to := strings.TrimSpace(req.To)
	if to == "" {
		return OutboundCallResult{}, fmt.Errorf("%w: to is required", ErrInvalidArgument)
	}
	from := strings.TrimSpace(req.From)
	if from == "" {
		from = p.cfg.FromNumber
	}
	if from == "" {
		return OutboundCallResult{}, fmt.Errorf("%w: from number is not configured", ErrInvalidArgument)
	}

	data := url.Values{}
	data.Set("To", to)
	data.Set("From", from)
	data.Set("Url", p.cfg.VoiceURL)
	data.Set("Method", http.MethodPost)
	if p.cfg.StatusURL != "" {
		data.Set("StatusCallback", p.cfg.StatusURL)
		data.Set("StatusCallbackMethod", http.MethodPost)
		data.Add("StatusCallbackEvent", "completed")
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", p.cfg.BaseURL, url.PathEscape(p.cfg.AccountSID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return OutboundCallResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var call twilioCall
	if err := p.do(httpReq, &call); err != nil {
		return OutboundCallResult{}, err
	}

	created := p.now().UTC()
	if t, err := time.Parse(time.RFC1123Z, call.DateCreated); err == nil {
		created = t.UTC()
	}
	return OutboundCallResult{
		CallID:    call.SID,
		Status:    call.Status,
		To:        call.To,
		From:      call.From,
		CreatedAt: created,
	}, nil
}

// APIError is an error body returned by the Twilio REST API.
type APIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio error %d (http %d): %s", e.Code, e.Status, e.Message)
}

func (p *TwilioProvider) do(req *http.Request, result any) error {
	req.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		if apiErr.Status == 0 {
			apiErr.Status = resp.StatusCode
		}
		return apiErr
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("twilio response: %w", err)
		}
	}
	return nil
}
