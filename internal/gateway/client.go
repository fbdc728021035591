package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the provider's REST API. Satisfies Gateway.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type sessionDTO struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	PaymentRef  string            `json:"payment_ref"`
	ReceiptURL  string            `json:"receipt_url"`
	PaymentLink string            `json:"payment_link"`
	ClientToken string            `json:"client_token"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (c *Client) CreateCheckoutSession(ctx context.Context, in CreateSessionInput) (Session, error) {
	body := map[string]any{
		"account_id":      in.AccountID,
		"reference":       in.Reference,
		"amount_cents":    in.AmountCents,
		"currency":        in.Currency,
		"description":     in.Description,
		"customer_email":  in.CustomerEmail,
		"platform_fee":    in.FeeCents,
		"metadata":        in.Metadata,
	}
	var dto sessionDTO
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", body, &dto); err != nil {
		return Session{}, err
	}
	return dto.toSession(), nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var dto sessionDTO
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+sessionID, nil, &dto); err != nil {
		return Session{}, err
	}
	return dto.toSession(), nil
}

func (c *Client) AccountStatus(ctx context.Context, accountID string) (AccountStatus, error) {
	var dto struct {
		ChargesEnabled bool   `json:"charges_enabled"`
		PayoutsEnabled bool   `json:"payouts_enabled"`
		DisabledReason string `json:"disabled_reason"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+accountID, nil, &dto); err != nil {
		return AccountStatus{}, err
	}
	return AccountStatus{
		ChargesEnabled: dto.ChargesEnabled,
		PayoutsEnabled: dto.PayoutsEnabled,
		DisabledReason: dto.DisabledReason,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrSessionNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("provider rejected %s %s: %s", method, path, apiErr.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (d sessionDTO) toSession() Session {
	return Session{
		ID:          d.ID,
		Status:      SessionStatus(d.Status),
		AmountCents: d.AmountCents,
		Currency:    d.Currency,
		PaymentRef:  d.PaymentRef,
		ReceiptURL:  d.ReceiptURL,
		PaymentLink: d.PaymentLink,
		ClientToken: d.ClientToken,
	}
}
