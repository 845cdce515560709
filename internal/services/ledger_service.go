package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"modrota/internal/config"
	"modrota/internal/models"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// httpLedgerService posts moderation actions to the external audit ledger.
// Unconfigured (empty URL) it degrades to a no-op so local and test
// environments run without the collaborator.
type httpLedgerService struct {
	cfg    config.CollaboratorConfig
	client *http.Client
	logger *zap.Logger
}

// NewLedgerService creates the HTTP ledger collaborator.
func NewLedgerService(cfg config.CollaboratorConfig, logger *zap.Logger) LedgerService {
	return &httpLedgerService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

type ledgerEntry struct {
	BadgeID     int64  `json:"badge_id"`
	ContentType string `json:"content_type"`
	ContentID   int64  `json:"content_id"`
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
	FlagCount   int    `json:"flag_count"`
}

type ledgerReceipt struct {
	Ref string `json:"ref"`
}

// RecordAction writes the action to the ledger with exponential backoff.
// Callers run this after the decision transaction has committed; a ledger
// outage therefore never blocks or reverses a decision.
func (s *httpLedgerService) RecordAction(ctx context.Context, action *models.ModerationAction) (string, error) {
	if s.cfg.LedgerURL == "" {
		return "", nil
	}

	payload, err := json.Marshal(ledgerEntry{
		BadgeID:     action.BadgeID,
		ContentType: action.Content.Type,
		ContentID:   action.Content.ID,
		Decision:    string(action.Decision),
		Reason:      action.Reason,
		FlagCount:   action.FlagCount,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode ledger entry: %w", err)
	}

	var ref string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.cfg.LedgerURL+"/entries", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("ledger returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("ledger rejected entry with %d", resp.StatusCode))
		}

		var receipt ledgerReceipt
		if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode ledger receipt: %w", err))
		}
		ref = receipt.Ref
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = s.cfg.MaxRetryElapsed
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		s.logger.Warn("Ledger write failed after retries",
			zap.Int64("badge_id", action.BadgeID),
			zap.Int64("action_id", action.ID),
			zap.Error(err),
		)
		return "", err
	}
	return ref, nil
}
