package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abarbosa/pontosledger/internal/common"
	"github.com/abarbosa/pontosledger/internal/models"
	"github.com/abarbosa/pontosledger/internal/policy"
	"github.com/abarbosa/pontosledger/internal/store"
)

// These tests exercise the orchestrator against a live Postgres instance.
// They verify the atomicity and concurrency guarantees that cannot be shown
// with fakes. Set RUN_LEDGER_INTEGRATION=true and DB_SOURCE to run them.
func newIntegrationService(t *testing.T) (*PointsService, *store.Store) {
	t.Helper()
	if os.Getenv("RUN_LEDGER_INTEGRATION") != "true" {
		t.Skip("set RUN_LEDGER_INTEGRATION=true to run this integration test")
	}
	dbURL := os.Getenv("DB_SOURCE")
	if dbURL == "" {
		t.Fatal("DB_SOURCE is required")
	}

	st, err := store.NewStore(context.Background(), dbURL)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	guard := policy.New(st)
	return NewPointsService(st, guard, zap.NewNop()), st
}

func createTestUser(t *testing.T, st *store.Store, name string, points, quotaRemaining int64) models.User {
	t.Helper()
	u := models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        fmt.Sprintf("%s-%s@test.example.com", name, uuid.NewString()[:8]),
		Role:         models.RoleCollaborator,
		TotalPoints:  points,
		PasswordHash: "x",
	}
	if quotaRemaining > 0 {
		expiry := time.Date(time.Now().UTC().Year(), time.December, 10, 0, 0, 0, 0, time.UTC)
		u.Quota = models.DistributableQuota{Total: quotaRemaining, Remaining: quotaRemaining, ExpiresAt: &expiry}
	}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u
}

func TestIntegration_TransferQuotaScenario(t *testing.T) {
	svc, st := newIntegrationService(t)
	ctx := context.Background()

	sender := createTestUser(t, st, "sender", 100, 30)
	receiver := createTestUser(t, st, "receiver", 0, 0)

	status, err := svc.Transfer(ctx, sender.ID, models.TransferRequest{ReceiverID: receiver.ID, Amount: 50})
	require.NoError(t, err)
	assert.True(t, status.Success)

	gotSender, err := st.GetUser(ctx, sender.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), gotSender.TotalPoints)
	assert.Equal(t, int64(0), gotSender.Quota.Remaining)

	gotReceiver, err := st.GetUser(ctx, receiver.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), gotReceiver.TotalPoints)

	senderEntries, err := st.ListEntriesForUser(ctx, sender.ID)
	require.NoError(t, err)
	require.Len(t, senderEntries, 1)
	assert.Equal(t, int64(-50), senderEntries[0].Amount)

	receiverEntries, err := st.ListEntriesForUser(ctx, receiver.ID)
	require.NoError(t, err)
	require.Len(t, receiverEntries, 1)
	assert.Equal(t, int64(50), receiverEntries[0].Amount)
	assert.True(t, senderEntries[0].OccurredAt.Equal(receiverEntries[0].OccurredAt))
}

func TestIntegration_InsufficientBalanceWritesNothing(t *testing.T) {
	svc, st := newIntegrationService(t)
	ctx := context.Background()

	sender := createTestUser(t, st, "poor", 40, 0)
	receiver := createTestUser(t, st, "rich", 0, 0)

	_, err := svc.Transfer(ctx, sender.ID, models.TransferRequest{ReceiverID: receiver.ID, Amount: 50})
	require.ErrorIs(t, err, common.ErrInsufficientBalance)

	gotSender, err := st.GetUser(ctx, sender.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), gotSender.TotalPoints)

	entries, err := st.ListEntriesForUser(ctx, sender.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIntegration_ConcurrentTransfersNeverOverdraw(t *testing.T) {
	svc, st := newIntegrationService(t)
	ctx := context.Background()

	// Two transfers of 60 from a balance of 100: each fits alone, both
	// together do not. Exactly one may commit.
	sender := createTestUser(t, st, "contended", 100, 0)
	r1 := createTestUser(t, st, "first", 0, 0)
	r2 := createTestUser(t, st, "second", 0, 0)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, receiverID := range []string{r1.ID, r2.ID} {
		wg.Add(1)
		go func(i int, receiverID string) {
			defer wg.Done()
			_, results[i] = svc.Transfer(ctx, sender.ID, models.TransferRequest{ReceiverID: receiverID, Amount: 60})
		}(i, receiverID)
	}
	wg.Wait()

	var failures int
	for _, err := range results {
		if err != nil {
			require.True(t, errors.Is(err, common.ErrInsufficientBalance), "unexpected failure: %v", err)
			failures++
		}
	}
	require.Equal(t, 1, failures, "exactly one of the two transfers must fail")

	gotSender, err := st.GetUser(ctx, sender.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), gotSender.TotalPoints)
	assert.GreaterOrEqual(t, gotSender.TotalPoints, int64(0))
}

func TestIntegration_QuotaGrantReplacesPrior(t *testing.T) {
	svc, st := newIntegrationService(t)
	ctx := context.Background()

	admin := models.User{
		ID:           uuid.NewString(),
		Name:         "root",
		Email:        fmt.Sprintf("root-%s@test.example.com", uuid.NewString()[:8]),
		Role:         models.RoleAdministrator,
		PasswordHash: "x",
	}
	require.NoError(t, st.CreateUser(ctx, admin))

	target := createTestUser(t, st, "target", 10, 45)

	status, err := svc.Grant(ctx, admin.ID, models.GrantRequest{UserID: target.ID, Amount: 200, IsQuota: true})
	require.NoError(t, err)
	assert.True(t, status.Success)

	got, err := st.GetUser(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(210), got.TotalPoints)
	assert.Equal(t, int64(200), got.Quota.Total)
	assert.Equal(t, int64(200), got.Quota.Remaining)
	require.NotNil(t, got.Quota.ExpiresAt)
	assert.Equal(t, time.December, got.Quota.ExpiresAt.UTC().Month())
	assert.Equal(t, 10, got.Quota.ExpiresAt.UTC().Day())

	entries, err := st.ListEntriesForUser(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsQuota)
	assert.Equal(t, models.EntryAdminGrant, entries[0].Type)
}

func TestIntegration_GrantRequiresAdmin(t *testing.T) {
	svc, st := newIntegrationService(t)
	ctx := context.Background()

	caller := createTestUser(t, st, "plain", 0, 0)
	target := createTestUser(t, st, "target2", 0, 0)

	_, err := svc.Grant(ctx, caller.ID, models.GrantRequest{UserID: target.ID, Amount: 10})
	require.ErrorIs(t, err, common.ErrPermissionDenied)
}
