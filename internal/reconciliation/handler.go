package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/example/storefront/internal/events"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/model"
)

// Handler records orphaned captures published by the payment flow
type Handler struct {
	store store.PaymentStore
}

// NewHandler creates a new reconciliation handler
func NewHandler(s store.PaymentStore) *Handler {
	return &Handler{store: s}
}

// HandleMessage processes one message from Kafka. Malformed messages are
// skipped; store failures are returned so the message is redelivered.
func (h *Handler) HandleMessage(ctx context.Context, key, value []byte) error {
	event, err := events.Parse(value)
	if err != nil {
		log.Printf("[Reconciler] Skipping malformed message %s: %v", key, err)
		return nil
	}

	if event.Type != events.TypeCaptureOrphaned {
		return nil
	}

	var e events.CaptureOrphaned
	if err := event.Decode(&e); err != nil {
		log.Printf("[Reconciler] Skipping undecodable %s event %s: %v", event.Type, event.ID, err)
		return nil
	}
	return h.handleCaptureOrphaned(ctx, e)
}

func (h *Handler) handleCaptureOrphaned(ctx context.Context, e events.CaptureOrphaned) error {
	if e.ExternalOrderID == "" {
		log.Printf("[Reconciler] Skipping orphaned capture without external order id")
		return nil
	}

	_, err := h.store.GetTransactionByExternalID(ctx, e.ExternalOrderID)
	if err == nil {
		log.Printf("[Reconciler] Gateway order %s has a ledger row, nothing to reconcile", e.ExternalOrderID)
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to check transaction %s: %w", e.ExternalOrderID, err)
	}

	rec := &model.Reconciliation{
		ExternalOrderID: e.ExternalOrderID,
		AccountID:       e.AccountID,
		Amount:          e.Amount,
		Currency:        e.Currency,
		Reason:          e.Reason,
		Status:          model.ReconciliationOpen,
	}
	err = h.store.CreateReconciliation(ctx, rec)
	if errors.Is(err, store.ErrConflict) {
		log.Printf("[Reconciler] Gateway order %s already recorded", e.ExternalOrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record reconciliation %s: %w", e.ExternalOrderID, err)
	}

	log.Printf("[Reconciler] Recorded orphaned capture %s: %s %s for account %s",
		e.ExternalOrderID, e.Amount.StringFixed(2), e.Currency, e.AccountID)
	return nil
}
