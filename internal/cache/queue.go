package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mailsync/internal/errors"
	"github.com/brandon/mailsync/pkg/types"
)

type pendingRow struct {
	ID         int64  `db:"id"`
	AccountID  string `db:"account_id"`
	ActionType string `db:"action_type"`
	Payload    string `db:"payload"`
	Attempts   int    `db:"attempts"`
	EnqueuedAt int64  `db:"enqueued_at"`
}

// Enqueue stores a mutation awaiting remote confirmation
func (c *Cache) Enqueue(ctx context.Context, accountID string, actionType types.ActionType, payload types.ActionPayload) (int64, error) {
	raw, err := payload.Encode()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO pending_actions (account_id, action_type, payload, attempts, enqueued_at)
		VALUES (?, ?, ?, 0, ?)`, accountID, string(actionType), raw, time.Now().UnixMilli())
	if err != nil {
		return 0, integrity(err, "failed to enqueue %s", actionType)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, integrity(err, "failed to read pending action id")
	}

	c.logger.WithFields(logrus.Fields{
		"account":   accountID,
		"action":    actionType,
		"action_id": id,
		"uid":       payload.UID,
	}).Info("Queued pending action")
	return id, nil
}

// ListPending returns an account's queued actions in enqueue order
func (c *Cache) ListPending(ctx context.Context, accountID string) ([]types.PendingAction, error) {
	var rows []pendingRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, action_type, payload, attempts, enqueued_at
		FROM pending_actions WHERE account_id = ? ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, integrity(err, "failed to list pending actions")
	}

	actions := make([]types.PendingAction, 0, len(rows))
	for _, r := range rows {
		payload, err := types.DecodePayload(r.Payload)
		if err != nil {
			return nil, integrity(err, "failed to decode pending action %d", r.ID)
		}
		actions = append(actions, types.PendingAction{
			ID:         r.ID,
			AccountID:  r.AccountID,
			Type:       types.ActionType(r.ActionType),
			Payload:    payload,
			Attempts:   r.Attempts,
			EnqueuedAt: time.UnixMilli(r.EnqueuedAt).UTC(),
		})
	}
	return actions, nil
}

// RemovePending deletes a confirmed action
func (c *Cache) RemovePending(ctx context.Context, id int64) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id); err != nil {
		return integrity(err, "failed to remove pending action %d", id)
	}
	return nil
}

// IncrementAttempts records a failed replay of an action
func (c *Cache) IncrementAttempts(ctx context.Context, id int64) error {
	if _, err := c.db.ExecContext(ctx, `UPDATE pending_actions SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return integrity(err, "failed to update pending action %d", id)
	}
	return nil
}
