// Package service executes the ledger engine's planned mutations against
// Postgres. Every balance mutation happens inside a RepeatableRead
// transaction with row locks taken in deterministic ID order; snapshots are
// always re-read and re-validated inside the transaction, never reused from
// before it.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/abarbosa/pontosledger/internal/common"
	"github.com/abarbosa/pontosledger/internal/ledger"
	"github.com/abarbosa/pontosledger/internal/models"
	"github.com/abarbosa/pontosledger/internal/policy"
	"github.com/abarbosa/pontosledger/internal/store"
)

const (
	txMaxRetries     = 3
	txRetryBaseDelay = 10 * time.Millisecond
)

// PointsService orchestrates transfers and grants.
type PointsService struct {
	db    *pgxpool.Pool
	store *store.Store
	guard *policy.Guard
	log   *zap.Logger
}

func NewPointsService(st *store.Store, guard *policy.Guard, log *zap.Logger) *PointsService {
	return &PointsService{
		db:    st.Pool(),
		store: st,
		guard: guard,
		log:   log,
	}
}

// Transfer moves points from the caller to the receiver atomically: both
// balance updates and both ledger entries commit together or not at all.
func (s *PointsService) Transfer(ctx context.Context, callerID string, req models.TransferRequest) (*models.OperationStatus, error) {
	if callerID == "" {
		return nil, common.ErrUnauthenticated
	}
	// Cheap argument checks before opening a transaction. The engine
	// re-validates everything against fresh snapshots inside it.
	if req.ReceiverID == "" {
		return nil, fmt.Errorf("%w: receiver id is required", common.ErrInvalidArgument)
	}
	// The id column is UUID-typed; a malformed id would fail the cast
	// server-side instead of reading as not-found.
	if _, err := uuid.Parse(req.ReceiverID); err != nil {
		return nil, fmt.Errorf("%w: receiver id must be a valid uuid", common.ErrInvalidArgument)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", common.ErrInvalidArgument)
	}
	if req.ReceiverID == callerID {
		return nil, fmt.Errorf("%w: cannot transfer points to yourself", common.ErrInvalidArgument)
	}

	var receiverName string
	err := s.withTxRetry(ctx, func(ctx context.Context) error {
		return s.transferTx(ctx, callerID, req, &receiverName)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("points transferred",
		zap.String("sender_id", callerID),
		zap.String("receiver_id", req.ReceiverID),
		zap.Int64("amount", req.Amount))

	return &models.OperationStatus{
		Success: true,
		Message: fmt.Sprintf("Pontos transferidos para %s com sucesso!", receiverName),
	}, nil
}

func (s *PointsService) transferTx(ctx context.Context, senderID string, req models.TransferRequest, receiverName *string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// Deterministic lock order prevents deadlocks between concurrent
	// transfers touching the same pair of accounts.
	first, second := senderID, req.ReceiverID
	if first > second {
		first, second = second, first
	}
	snapshots := map[string]*models.User{}
	for _, id := range []string{first, second} {
		u, err := lockUser(ctx, tx, id)
		if err != nil {
			return err
		}
		snapshots[id] = u
	}

	plan, err := ledger.ComputeTransfer(snapshots[senderID], snapshots[req.ReceiverID], req.Amount, req.Description, time.Now().UTC())
	if err != nil {
		return err
	}
	*receiverName = snapshots[req.ReceiverID].Name

	if _, err := tx.Exec(ctx,
		`UPDATE users SET total_points = $1, quota_remaining = $2 WHERE id = $3`,
		plan.Sender.TotalPoints, plan.Sender.QuotaRemaining, senderID); err != nil {
		return fmt.Errorf("sender update failed: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET total_points = $1 WHERE id = $2`,
		plan.Receiver.TotalPoints, req.ReceiverID); err != nil {
		return fmt.Errorf("receiver update failed: %w", err)
	}

	// Both legs appended in one statement, sharing the plan's timestamp.
	sent, received := plan.Entries[0], plan.Entries[1]
	if _, err := tx.Exec(ctx,
		`INSERT INTO points_entries (user_id, user_name, amount, type, is_quota, occurred_at, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7), ($8, $9, $10, $11, $12, $6, $13)`,
		sent.UserID, sent.UserName, sent.Amount, sent.Type, sent.IsQuota, sent.OccurredAt, sent.Description,
		received.UserID, received.UserName, received.Amount, received.Type, received.IsQuota, received.Description); err != nil {
		return fmt.Errorf("ledger entries failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// Grant credits points to a user on behalf of an administrator, optionally
// replacing the user's distributable quota.
func (s *PointsService) Grant(ctx context.Context, callerID string, req models.GrantRequest) (*models.OperationStatus, error) {
	if _, err := s.guard.Admin(ctx, callerID); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: target user id is required", common.ErrInvalidArgument)
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		return nil, fmt.Errorf("%w: target user id must be a valid uuid", common.ErrInvalidArgument)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", common.ErrInvalidArgument)
	}

	var targetName string
	err := s.withTxRetry(ctx, func(ctx context.Context) error {
		return s.grantTx(ctx, req, &targetName)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("points granted",
		zap.String("admin_id", callerID),
		zap.String("user_id", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.Bool("is_quota", req.IsQuota))

	return &models.OperationStatus{
		Success: true,
		Message: fmt.Sprintf("Pontos concedidos para %s!", targetName),
	}, nil
}

func (s *PointsService) grantTx(ctx context.Context, req models.GrantRequest, targetName *string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	target, err := lockUser(ctx, tx, req.UserID)
	if err != nil {
		return err
	}

	plan, err := ledger.ComputeGrant(target, req.Amount, req.Description, req.IsQuota, time.Now().UTC())
	if err != nil {
		return err
	}
	*targetName = target.Name

	if plan.Target.Quota != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET total_points = $1, quota_total = $2, quota_remaining = $3, quota_expires_at = $4 WHERE id = $5`,
			plan.Target.TotalPoints, plan.Target.Quota.Total, plan.Target.Quota.Remaining, plan.Target.Quota.ExpiresAt, req.UserID); err != nil {
			return fmt.Errorf("target update failed: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET total_points = $1 WHERE id = $2`,
			plan.Target.TotalPoints, req.UserID); err != nil {
			return fmt.Errorf("target update failed: %w", err)
		}
	}

	e := plan.Entry
	if _, err := tx.Exec(ctx,
		`INSERT INTO points_entries (user_id, user_name, amount, type, is_quota, occurred_at, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.UserID, e.UserName, e.Amount, e.Type, e.IsQuota, e.OccurredAt, e.Description); err != nil {
		return fmt.Errorf("ledger entry failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// History returns ledger entries visible to the caller: administrators read
// the whole ledger, collaborators only their own entries.
func (s *PointsService) History(ctx context.Context, callerID string) ([]models.PointsEntry, error) {
	caller, err := s.guard.Caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if caller.Role == models.RoleAdministrator {
		return s.store.ListEntries(ctx)
	}
	return s.store.ListEntriesForUser(ctx, caller.ID)
}

// lockUser reads one user row under FOR UPDATE inside tx.
func lockUser(ctx context.Context, tx pgx.Tx, id string) (*models.User, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, name, email, role, total_points, quota_total, quota_remaining, quota_expires_at, password_hash, created_at
		 FROM users WHERE id = $1 FOR UPDATE`, id)

	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.TotalPoints,
		&u.Quota.Total, &u.Quota.Remaining, &u.Quota.ExpiresAt, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	return &u, nil
}

// withTxRetry runs fn, retrying the whole transaction (reads included) on
// serialization failures with exponential backoff. Exhausted retries are
// reported as an internal failure, never as a partial state.
func (s *PointsService) withTxRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(txMaxRetries, retry.NewExponential(txRetryBaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isSerializationFailure(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if isSerializationFailure(err) {
		s.log.Warn("transaction conflict persisted after retries", zap.Error(err))
		return fmt.Errorf("%w: transaction conflict persisted", common.ErrInternal)
	}
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure and deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
