package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"modrota/internal/config"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// httpTransferService credits duty rewards through the external token
// service. Same best-effort shape as the ledger collaborator.
type httpTransferService struct {
	cfg    config.CollaboratorConfig
	client *http.Client
	logger *zap.Logger
}

// NewTransferService creates the HTTP token transfer collaborator.
func NewTransferService(cfg config.CollaboratorConfig, logger *zap.Logger) TransferService {
	return &httpTransferService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

type transferRequest struct {
	UserID int64 `json:"user_id"`
	Tokens int   `json:"tokens"`
	// BadgeID doubles as the idempotency key so retried credits for the
	// same badge cannot pay twice.
	BadgeID int64 `json:"badge_id"`
}

type transferReceipt struct {
	Ref string `json:"ref"`
}

// CreditReward transfers the duty reward with exponential backoff.
func (s *httpTransferService) CreditReward(ctx context.Context, userID int64, tokens int, badgeID int64) (string, error) {
	if s.cfg.TransferURL == "" || tokens <= 0 {
		return "", nil
	}

	payload, err := json.Marshal(transferRequest{UserID: userID, Tokens: tokens, BadgeID: badgeID})
	if err != nil {
		return "", fmt.Errorf("failed to encode transfer: %w", err)
	}

	var ref string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.cfg.TransferURL+"/transfers", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", fmt.Sprintf("badge-%d", badgeID))

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("transfer service returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("transfer rejected with %d", resp.StatusCode))
		}

		var receipt transferReceipt
		if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode transfer receipt: %w", err))
		}
		ref = receipt.Ref
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = s.cfg.MaxRetryElapsed
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		s.logger.Warn("Reward transfer failed after retries",
			zap.Int64("user_id", userID),
			zap.Int64("badge_id", badgeID),
			zap.Int("tokens", tokens),
			zap.Error(err),
		)
		return "", err
	}

	s.logger.Info("Reward credited",
		zap.Int64("user_id", userID),
		zap.Int64("badge_id", badgeID),
		zap.Int("tokens", tokens),
		zap.String("ref", ref),
	)
	return ref, nil
}
