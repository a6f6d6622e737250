// Package ledger holds the pure points-ledger computations. Functions here
// operate on in-memory snapshots and never perform I/O; the service layer is
// responsible for re-running them on freshly read rows inside a transaction.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/abarbosa/pontosledger/internal/common"
	"github.com/abarbosa/pontosledger/internal/models"
)

// defaultGrantDescription is used when an administrator grants points
// without providing a description.
const defaultGrantDescription = "Concessão de pontos pelo administrador."

// QuotaExpiry returns the expiry instant for a quota granted at now:
// December 10 of the grant year, midnight UTC. Unspent quota is forfeited
// from the effective balance after this instant.
func QuotaExpiry(now time.Time) time.Time {
	return time.Date(now.UTC().Year(), time.December, 10, 0, 0, 0, 0, time.UTC)
}

// SenderUpdate is the field set to write back to the sender's row.
type SenderUpdate struct {
	TotalPoints    int64
	QuotaRemaining int64
}

// ReceiverUpdate is the field set to write back to the receiver's row.
type ReceiverUpdate struct {
	TotalPoints int64
}

// TransferPlan is the full mutation set for one transfer: both balance
// updates and the two ledger entries, sharing a single timestamp.
type TransferPlan struct {
	Sender   SenderUpdate
	Receiver ReceiverUpdate
	Entries  [2]models.PointsEntry
}

// ComputeTransfer plans a points transfer from sender to receiver.
// Quota is consumed first, up to the transferred amount, before falling back
// to non-quota balance.
func ComputeTransfer(sender, receiver *models.User, amount int64, description string, now time.Time) (*TransferPlan, error) {
	if sender == nil || receiver == nil {
		return nil, common.ErrNotFound
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", common.ErrInvalidArgument)
	}
	if receiver.ID == "" {
		return nil, fmt.Errorf("%w: receiver id is required", common.ErrInvalidArgument)
	}
	if sender.ID == receiver.ID {
		return nil, fmt.Errorf("%w: cannot transfer points to yourself", common.ErrInvalidArgument)
	}
	if sender.TotalPoints < amount {
		return nil, common.ErrInsufficientBalance
	}

	quotaRemaining := sender.Quota.Remaining
	if quotaRemaining < 0 {
		quotaRemaining = 0
	}
	deductedFromQuota := amount
	if quotaRemaining < deductedFromQuota {
		deductedFromQuota = quotaRemaining
	}

	sent := models.PointsEntry{
		UserID:      sender.ID,
		UserName:    sender.Name,
		Amount:      -amount,
		Type:        models.EntrySent,
		IsQuota:     false,
		OccurredAt:  now,
		Description: strings.TrimSpace(fmt.Sprintf("Transferência para %s. %s", receiver.Name, description)),
	}
	received := models.PointsEntry{
		UserID:      receiver.ID,
		UserName:    receiver.Name,
		Amount:      amount,
		Type:        models.EntryReceived,
		IsQuota:     false,
		OccurredAt:  now,
		Description: strings.TrimSpace(fmt.Sprintf("Recebido de %s. %s", sender.Name, description)),
	}

	return &TransferPlan{
		Sender: SenderUpdate{
			TotalPoints:    sender.TotalPoints - amount,
			QuotaRemaining: quotaRemaining - deductedFromQuota,
		},
		Receiver: ReceiverUpdate{TotalPoints: receiver.TotalPoints + amount},
		Entries:  [2]models.PointsEntry{sent, received},
	}, nil
}

// TargetUpdate is the field set to write back to a grant target's row.
// Quota is nil when the grant leaves the existing quota untouched; when set
// it replaces any prior quota wholesale.
type TargetUpdate struct {
	TotalPoints int64
	Quota       *models.DistributableQuota
}

// GrantPlan is the mutation set for one administrator grant.
type GrantPlan struct {
	Target TargetUpdate
	Entry  models.PointsEntry
}

// ComputeGrant plans an administrator grant to target. When isQuota is true
// the target additionally receives a fresh distributable quota expiring on
// December 10 of the current year, replacing any prior one.
func ComputeGrant(target *models.User, amount int64, description string, isQuota bool, now time.Time) (*GrantPlan, error) {
	if target == nil {
		return nil, common.ErrNotFound
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", common.ErrInvalidArgument)
	}
	if target.ID == "" {
		return nil, fmt.Errorf("%w: target user id is required", common.ErrInvalidArgument)
	}

	update := TargetUpdate{TotalPoints: target.TotalPoints + amount}
	if isQuota {
		expiry := QuotaExpiry(now)
		update.Quota = &models.DistributableQuota{
			Total:     amount,
			Remaining: amount,
			ExpiresAt: &expiry,
		}
	}

	desc := strings.TrimSpace(description)
	if desc == "" {
		desc = defaultGrantDescription
	}

	return &GrantPlan{
		Target: update,
		Entry: models.PointsEntry{
			UserID:      target.ID,
			UserName:    target.Name,
			Amount:      amount,
			Type:        models.EntryAdminGrant,
			IsQuota:     isQuota,
			OccurredAt:  now,
			Description: desc,
		},
	}, nil
}

// ValidateProfileName validates and normalizes a profile name change.
func ValidateProfileName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: name must not be empty", common.ErrInvalidArgument)
	}
	return trimmed, nil
}

// ValidateAdminEdit validates an administrator edit of another user's
// name and role.
func ValidateAdminEdit(name string, role models.Role) (string, error) {
	trimmed, err := ValidateProfileName(name)
	if err != nil {
		return "", err
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", common.ErrInvalidArgument, role)
	}
	return trimmed, nil
}

// EffectiveBalance is the balance usable right now: the raw balance minus
// any expired unspent quota. The stored quota remaining is never mutated by
// expiry; only this derived value reflects the forfeit.
func EffectiveBalance(u models.User, now time.Time) int64 {
	balance := u.TotalPoints
	if u.Quota.ExpiresAt != nil && now.After(*u.Quota.ExpiresAt) {
		balance -= u.Quota.Remaining
	}
	return balance
}

// View builds the read model for an account, with both raw and effective
// balances populated.
func View(u models.User, now time.Time) models.UserView {
	return models.UserView{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Role:             u.Role,
		TotalPoints:      u.TotalPoints,
		EffectiveBalance: EffectiveBalance(u, now),
		Quota:            u.Quota,
	}
}
