package economy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sandai/pkbattle/src/domain/economy"
	"github.com/sandai/pkbattle/src/domain/shared"
)

// HTTPLedger talks to an external wallet service over JSON.
type HTTPLedger struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewHTTPLedger(baseURL, apiKey string) *HTTPLedger {
	return &HTTPLedger{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// WithHTTPClient sets a custom HTTP client.
func (l *HTTPLedger) WithHTTPClient(client *http.Client) *HTTPLedger {
	l.HTTPClient = client
	return l
}

type creditRequest struct {
	UserID   string `json:"user_id"`
	Coins    int64  `json:"coins"`
	Diamonds int64  `json:"diamonds"`
	Reason   string `json:"reason"`
}

type debitRequest struct {
	UserID string `json:"user_id"`
	Coins  int64  `json:"coins"`
	Reason string `json:"reason"`
}

func (l *HTTPLedger) Credit(ctx context.Context, user shared.PlayerID, amount economy.Amount, reason economy.Reason, key shared.IdempotencyKey) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	if err := key.Validate(); err != nil {
		return err
	}
	body := creditRequest{
		UserID:   string(user),
		Coins:    amount.Coins,
		Diamonds: amount.Diamonds,
		Reason:   string(reason),
	}
	return l.post(ctx, "/credit", body, key)
}

func (l *HTTPLedger) Debit(ctx context.Context, user shared.PlayerID, coins int64, reason economy.Reason) error {
	if coins <= 0 {
		return economy.ErrInvalidAmount
	}
	body := debitRequest{UserID: string(user), Coins: coins, Reason: string(reason)}
	return l.post(ctx, "/debit", body, "")
}

func (l *HTTPLedger) post(ctx context.Context, path string, payload any, key shared.IdempotencyKey) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if l.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.APIKey)
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", string(key))
	}

	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", economy.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict && key != "":
		// already applied under this key
		return nil
	case resp.StatusCode == http.StatusPaymentRequired:
		return economy.ErrInsufficientFunds
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return economy.ErrInvalidAmount
	default:
		return fmt.Errorf("%w: status %d", economy.ErrLedgerUnavailable, resp.StatusCode)
	}
}
