package transfer

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/limoney/backend/src/apperrors"
	"github.com/username/limoney/backend/src/database"
	"github.com/username/limoney/backend/src/models"
	"github.com/username/limoney/backend/src/security"
)

type fixture struct {
	machine *Machine
	alice   security.ActorContext
	bob     security.ActorContext
	admin   security.ActorContext
}

func setupMachine(t *testing.T) *fixture {
	t.Helper()
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))

	alice := &models.User{Username: "alice", Email: "alice@example.com", Password: "x"}
	require.NoError(t, alice.CreateUser(database.DB))
	bob := &models.User{Username: "bob", Email: "bob@example.com", Password: "x"}
	require.NoError(t, bob.CreateUser(database.DB))
	admin := &models.User{Username: "root", Email: "root@example.com", Password: "x", UserType: models.UserTypeAdmin}
	require.NoError(t, admin.CreateUser(database.DB))

	return &fixture{
		machine: NewMachine(database.DB),
		alice:   security.ActorContext{UserID: alice.ID, Role: "standard"},
		bob:     security.ActorContext{UserID: bob.ID, Role: "standard"},
		admin:   security.ActorContext{UserID: admin.ID, Role: "admin"},
	}
}

func addAccount(t *testing.T, userID int64, extID string, balance int64) int64 {
	t.Helper()
	account := &models.Account{
		UserID:            userID,
		ExternalAccountID: extID,
		Name:              extID,
		Balance:           balance,
	}
	_, err := models.UpsertAccount(database.DB, account)
	require.NoError(t, err)
	return account.ID
}

func accountBalance(t *testing.T, accountID int64) int64 {
	t.Helper()
	var balance int64
	require.NoError(t, database.DB.QueryRow(
		`SELECT balance FROM user_accounts WHERE id = ?`, accountID).Scan(&balance))
	return balance
}

func TestRequestApproveHappyPath(t *testing.T) {
	f := setupMachine(t)
	aliceAcct := addAccount(t, f.alice.UserID, "alice-1", 5000)  // $50
	bobAcct := addAccount(t, f.bob.UserID, "bob-1", 20000)       // $200

	request, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind:           models.KindRequest,
		RecipientEmail: "bob@example.com",
		Amount:         5000,
		Notes:          "concert tickets",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, request.Status)

	require.NoError(t, f.machine.Approve(f.bob, request.ID))

	updated, err := models.RequestByID(database.DB, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, updated.Status)

	assert.Equal(t, int64(15000), accountBalance(t, bobAcct))
	assert.Equal(t, int64(10000), accountBalance(t, aliceAcct))
}

func TestApproveInsufficientFundsLeavesRequestPending(t *testing.T) {
	f := setupMachine(t)
	addAccount(t, f.alice.UserID, "alice-1", 0)
	bobAcct := addAccount(t, f.bob.UserID, "bob-1", 1000) // $10

	request, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind:           models.KindRequest,
		RecipientEmail: "bob@example.com",
		Amount:         5000,
	})
	require.NoError(t, err)

	err = f.machine.Approve(f.bob, request.ID)
	var fundsErr *apperrors.InsufficientFunds
	require.True(t, errors.As(err, &fundsErr))
	assert.Equal(t, int64(1000), fundsErr.Balance)
	assert.Equal(t, int64(5000), fundsErr.Requested)

	// The whole approval rolled back: still pending, no money moved.
	updated, err := models.RequestByID(database.DB, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, updated.Status)
	assert.Equal(t, int64(1000), accountBalance(t, bobAcct))
}

func TestApproveTwiceIsAlreadyProcessed(t *testing.T) {
	f := setupMachine(t)
	addAccount(t, f.alice.UserID, "alice-1", 0)
	addAccount(t, f.bob.UserID, "bob-1", 20000)

	request, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "bob@example.com", Amount: 5000,
	})
	require.NoError(t, err)

	require.NoError(t, f.machine.Approve(f.bob, request.ID))

	err = f.machine.Approve(f.bob, request.ID)
	assert.Equal(t, "ALREADY_PROCESSED", apperrors.CodeOf(err))

	err = f.machine.Reject(f.bob, request.ID)
	assert.Equal(t, "ALREADY_PROCESSED", apperrors.CodeOf(err))
}

func TestOnlyRecipientCanApprove(t *testing.T) {
	f := setupMachine(t)
	addAccount(t, f.bob.UserID, "bob-1", 20000)

	request, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "bob@example.com", Amount: 5000,
	})
	require.NoError(t, err)

	err = f.machine.Approve(f.alice, request.ID)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
}

func TestCreateRequestValidation(t *testing.T) {
	f := setupMachine(t)

	_, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "alice@example.com", Amount: 100,
	})
	assert.Equal(t, "SELF_TRANSFER", apperrors.CodeOf(err))

	_, err = f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "nobody@example.com", Amount: 100,
	})
	assert.Equal(t, "RECIPIENT_NOT_FOUND", apperrors.CodeOf(err))

	_, err = f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "bob@example.com", Amount: 0,
	})
	assert.Equal(t, "INVALID_AMOUNT", apperrors.CodeOf(err))

	_, err = f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: "teleport", RecipientEmail: "bob@example.com", Amount: 100,
	})
	assert.Equal(t, "INVALID_KIND", apperrors.CodeOf(err))
}

func TestSendSettlesImmediately(t *testing.T) {
	f := setupMachine(t)
	aliceAcct := addAccount(t, f.alice.UserID, "alice-1", 10000)
	bobAcct := addAccount(t, f.bob.UserID, "bob-1", 500)

	request, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind:           models.KindSend,
		RecipientEmail: "bob@example.com",
		Amount:         2500,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, request.Status)

	assert.Equal(t, int64(7500), accountBalance(t, aliceAcct))
	assert.Equal(t, int64(3000), accountBalance(t, bobAcct))
}

func TestSendAccountScopedCheck(t *testing.T) {
	f := setupMachine(t)
	smallAcct := addAccount(t, f.alice.UserID, "alice-small", 500) // $5
	bigAcct := addAccount(t, f.alice.UserID, "alice-big", 10000)   // $100
	addAccount(t, f.bob.UserID, "bob-1", 0)

	// Scoped to the small account: fails even though the user has $105 total.
	_, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind:           models.KindSend,
		RecipientEmail: "bob@example.com",
		Amount:         5000,
		AccountID:      smallAcct,
	})
	var fundsErr *apperrors.InsufficientFunds
	require.True(t, errors.As(err, &fundsErr))
	assert.Equal(t, int64(500), fundsErr.Balance)
	assert.Equal(t, int64(500), accountBalance(t, smallAcct), "failed send must not move money")

	// Unscoped: the aggregate covers it, drained largest-first.
	_, err = f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind:           models.KindSend,
		RecipientEmail: "bob@example.com",
		Amount:         10200,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), accountBalance(t, bigAcct))
	assert.Equal(t, int64(300), accountBalance(t, smallAcct))
}

func TestSendCreditsRecipientPrimaryAccount(t *testing.T) {
	f := setupMachine(t)
	addAccount(t, f.alice.UserID, "alice-1", 10000)
	bobFirst := addAccount(t, f.bob.UserID, "bob-1", 0)
	bobSecond := addAccount(t, f.bob.UserID, "bob-2", 0)

	_, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindSend, RecipientEmail: "bob@example.com", Amount: 2500,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2500), accountBalance(t, bobFirst))
	assert.Equal(t, int64(0), accountBalance(t, bobSecond))
}

func TestCancelIsSenderOnlyAndPendingOnly(t *testing.T) {
	f := setupMachine(t)
	addAccount(t, f.bob.UserID, "bob-1", 20000)

	request, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "bob@example.com", Amount: 100,
	})
	require.NoError(t, err)

	err = f.machine.Cancel(f.bob, request.ID)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	require.NoError(t, f.machine.Cancel(f.alice, request.ID))

	_, err = models.RequestByID(database.DB, request.ID)
	assert.Error(t, err, "cancelled request is deleted")
}

func TestRejectByEitherParty(t *testing.T) {
	f := setupMachine(t)

	request, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "bob@example.com", Amount: 100,
	})
	require.NoError(t, err)

	err = f.machine.Reject(f.admin, request.ID)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err), "non-party cannot reject")

	require.NoError(t, f.machine.Reject(f.alice, request.ID))

	updated, err := models.RequestByID(database.DB, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, updated.Status)
}

func TestAdminOverrideRequiresAdmin(t *testing.T) {
	f := setupMachine(t)

	request, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "bob@example.com", Amount: 100,
	})
	require.NoError(t, err)

	_, err = f.machine.AdminOverride(f.bob, request.ID, OverrideInput{Status: models.StatusRejected})
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
}

func TestAdminOverrideStatusSticksWhenSettlementFails(t *testing.T) {
	f := setupMachine(t)
	addAccount(t, f.bob.UserID, "bob-1", 100) // far short of the amount

	request, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "bob@example.com", Amount: 5000,
	})
	require.NoError(t, err)

	result, err := f.machine.AdminOverride(f.admin, request.ID, OverrideInput{
		Status: models.StatusApproved,
		Notes:  "dispute resolved offline",
	})
	require.NoError(t, err)

	// The status write stands even though the settlement failed; the caller
	// is told the books need manual reconciliation.
	assert.Equal(t, models.StatusApproved, result.Request.Status)
	require.Error(t, result.SettlementErr)
	var fundsErr *apperrors.InsufficientFunds
	assert.True(t, errors.As(result.SettlementErr, &fundsErr))

	assert.True(t, result.Request.AdminID.Valid)
	assert.Equal(t, f.admin.UserID, result.Request.AdminID.Int64)
	assert.True(t, result.Request.AdminActionAt.Valid)
}

func TestAdminOverrideApprovedSettles(t *testing.T) {
	f := setupMachine(t)
	aliceAcct := addAccount(t, f.alice.UserID, "alice-1", 0)
	bobAcct := addAccount(t, f.bob.UserID, "bob-1", 20000)

	request, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "bob@example.com", Amount: 5000,
	})
	require.NoError(t, err)

	result, err := f.machine.AdminOverride(f.admin, request.ID, OverrideInput{
		Status: models.StatusApproved,
	})
	require.NoError(t, err)
	require.NoError(t, result.SettlementErr)

	assert.Equal(t, models.StatusApproved, result.Request.Status)
	assert.Equal(t, int64(15000), accountBalance(t, bobAcct))
	assert.Equal(t, int64(5000), accountBalance(t, aliceAcct))
}

func TestAdminOverrideDoesNotSettleTwice(t *testing.T) {
	f := setupMachine(t)
	addAccount(t, f.alice.UserID, "alice-1", 0)
	bobAcct := addAccount(t, f.bob.UserID, "bob-1", 20000)

	request, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "bob@example.com", Amount: 5000,
	})
	require.NoError(t, err)
	require.NoError(t, f.machine.Approve(f.bob, request.ID))
	require.Equal(t, int64(15000), accountBalance(t, bobAcct))

	// Re-marking an already settled request must not move money again.
	result, err := f.machine.AdminOverride(f.admin, request.ID, OverrideInput{
		Status: models.StatusApproved,
	})
	require.NoError(t, err)
	assert.NoError(t, result.SettlementErr)
	assert.Equal(t, int64(15000), accountBalance(t, bobAcct))

	// Neither does promoting it to completed.
	result, err = f.machine.AdminOverride(f.admin, request.ID, OverrideInput{
		Status: models.StatusCompleted,
	})
	require.NoError(t, err)
	assert.NoError(t, result.SettlementErr)
	assert.Equal(t, int64(15000), accountBalance(t, bobAcct))
}

func TestToggleFlagOnRequests(t *testing.T) {
	f := setupMachine(t)

	request, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "bob@example.com", Amount: 100,
	})
	require.NoError(t, err)

	outsider := &models.User{Username: "eve", Email: "eve@example.com", Password: "x"}
	require.NoError(t, outsider.CreateUser(database.DB))

	_, err = f.machine.ToggleFlag(security.ActorContext{UserID: outsider.ID, Role: "standard"}, request.ID)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	flagged, err := f.machine.ToggleFlag(f.bob, request.ID)
	require.NoError(t, err)
	assert.True(t, flagged)

	// Admins can flag any request.
	flagged, err = f.machine.ToggleFlag(f.admin, request.ID)
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestListingScopes(t *testing.T) {
	f := setupMachine(t)

	_, err := f.machine.CreateRequest(f.alice, CreateRequestInput{
		Kind: models.KindRequest, RecipientEmail: "bob@example.com", Amount: 100,
	})
	require.NoError(t, err)

	mine, err := f.machine.RequestsForUser(f.alice)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	pending, err := f.machine.PendingApprovals(f.bob)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	pending, err = f.machine.PendingApprovals(f.alice)
	require.NoError(t, err)
	assert.Empty(t, pending, "sender has nothing to approve")

	_, err = f.machine.AllRequests(f.alice)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	all, err := f.machine.AllRequests(f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
