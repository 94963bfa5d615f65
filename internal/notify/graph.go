package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	graphScope          = "https://graph.microsoft.com/.default"
)

type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// From is the mailbox the summary is sent as; To is the staff recipient.
	From string
	To   string

	// Overrides for tests and sovereign clouds.
	TokenURL   string
	BaseURL    string
	HTTPClient *http.Client
}

// GraphMailer sends summaries through Microsoft Graph sendMail using an app-only token.
type GraphMailer struct {
	cfg    GraphConfig
	client *http.Client
}

func NewGraphMailer(cfg GraphConfig) (*GraphMailer, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("graph client id and secret are required")
	}
	if cfg.From == "" || cfg.To == "" {
		return nil, errors.New("graph mail from and to are required")
	}
	if cfg.TokenURL == "" {
		if cfg.TenantID == "" {
			return nil, errors.New("graph tenant id is required")
		}
		cfg.TokenURL = "https://login.microsoftonline.com/" + url.PathEscape(cfg.TenantID) + "/oauth2/v2.0/token"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGraphBaseURL
	}
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 10 * time.Second}
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{graphScope},
	}
	// The token source caches and refreshes the app token across sends.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(tokenCtx)
	client.Timeout = base.Timeout

	return &GraphMailer{cfg: cfg, client: client}, nil
}

type graphAddress struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphMessage struct {
	Message struct {
		Subject string `json:"subject"`
		Body    struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		} `json:"body"`
		ToRecipients []graphAddress `json:"toRecipients"`
	} `json:"message"`
	SaveToSentItems bool `json:"saveToSentItems"`
}

func (g *GraphMailer) Notify(ctx context.Context, subject, body string) error {
	var msg graphMessage
	msg.Message.Subject = subject
	msg.Message.Body.ContentType = "Text"
	msg.Message.Body.Content = body
	var to graphAddress
	to.EmailAddress.Address = g.cfg.To
	msg.Message.ToRecipients = []graphAddress{to}
	msg.SaveToSentItems = true

	buf, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	endpoint := g.cfg.BaseURL + "/users/" + url.PathEscape(g.cfg.From) + "/sendMail"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph sendMail: %w", err)
	}
	defer resp.Body.Close()

	// sendMail answers 202 Accepted with an empty body.
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Target: "graph", StatusCode: resp.StatusCode, Body: string(b)}
	}
	return nil
}
