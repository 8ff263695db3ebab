package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marathon-billing-engine/internal/config"
)

// EmailClient sends transactional mail through the mailer service. Callers
// treat every send as best-effort: a failed notification never rolls back
// the entitlement it announces.
type EmailClient interface {
	SendEnrollmentConfirmation(ctx context.Context, userID, marathonName string) error
	SendPremiumActivated(ctx context.Context, userID string, endsAt time.Time) error
	SendPurchaseReceipt(ctx context.Context, userID, exerciseName string, expiresAt time.Time) error
}

type emailClientImpl struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       string
}

func NewEmailClient(cfg *config.Mailer) EmailClient {
	return &emailClientImpl{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		from:    cfg.From,
	}
}

type mailMessage struct {
	From     string         `json:"from"`
	UserID   string         `json:"user_id"`
	Template string         `json:"template"`
	Params   map[string]any `json:"params"`
}

func (c *emailClientImpl) send(ctx context.Context, msg mailMessage) error {
	msg.From = c.from

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/messages", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mailer error %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func (c *emailClientImpl) SendEnrollmentConfirmation(ctx context.Context, userID, marathonName string) error {
	return c.send(ctx, mailMessage{
		UserID:   userID,
		Template: "marathon-enrollment",
		Params: map[string]any{
			"marathon_name": marathonName,
		},
	})
}

func (c *emailClientImpl) SendPremiumActivated(ctx context.Context, userID string, endsAt time.Time) error {
	return c.send(ctx, mailMessage{
		UserID:   userID,
		Template: "premium-activated",
		Params: map[string]any{
			"ends_at": endsAt.Format(time.RFC3339),
		},
	})
}

func (c *emailClientImpl) SendPurchaseReceipt(ctx context.Context, userID, exerciseName string, expiresAt time.Time) error {
	return c.send(ctx, mailMessage{
		UserID:   userID,
		Template: "exercise-purchase",
		Params: map[string]any{
			"exercise_name": exerciseName,
			"expires_at":    expiresAt.Format(time.RFC3339),
		},
	})
}
