package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abarbosa/pontosledger/internal/auth"
	"github.com/abarbosa/pontosledger/internal/common"
	"github.com/abarbosa/pontosledger/internal/models"
)

type fakePoints struct {
	transferStatus *models.OperationStatus
	transferErr    error
	grantStatus    *models.OperationStatus
	grantErr       error
	history        []models.PointsEntry
	historyErr     error

	gotCallerID string
	gotTransfer models.TransferRequest
	gotGrant    models.GrantRequest
}

func (f *fakePoints) Transfer(_ context.Context, callerID string, req models.TransferRequest) (*models.OperationStatus, error) {
	f.gotCallerID = callerID
	f.gotTransfer = req
	return f.transferStatus, f.transferErr
}

func (f *fakePoints) Grant(_ context.Context, callerID string, req models.GrantRequest) (*models.OperationStatus, error) {
	f.gotCallerID = callerID
	f.gotGrant = req
	return f.grantStatus, f.grantErr
}

func (f *fakePoints) History(_ context.Context, callerID string) ([]models.PointsEntry, error) {
	f.gotCallerID = callerID
	return f.history, f.historyErr
}

type fakeUsers struct {
	registerStatus *models.OperationStatus
	registerErr    error
	loginResp      *models.LoginResponse
	loginErr       error
	me             models.UserView
	meErr          error
	list           []models.UserView
	listErr        error
	profileStatus  *models.OperationStatus
	profileErr     error
	adminStatus    *models.OperationStatus
	adminErr       error

	gotCallerID string
	gotUserID   string
	gotAdminReq models.AdminUpdateRequest
}

func (f *fakeUsers) Register(_ context.Context, req models.RegisterRequest) (*models.OperationStatus, error) {
	return f.registerStatus, f.registerErr
}

func (f *fakeUsers) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	return f.loginResp, f.loginErr
}

func (f *fakeUsers) Me(_ context.Context, callerID string) (models.UserView, error) {
	f.gotCallerID = callerID
	return f.me, f.meErr
}

func (f *fakeUsers) List(_ context.Context, callerID string) ([]models.UserView, error) {
	f.gotCallerID = callerID
	return f.list, f.listErr
}

func (f *fakeUsers) UpdateProfile(_ context.Context, callerID string, req models.ProfileUpdateRequest) (*models.OperationStatus, error) {
	f.gotCallerID = callerID
	return f.profileStatus, f.profileErr
}

func (f *fakeUsers) AdminUpdate(_ context.Context, callerID, userID string, req models.AdminUpdateRequest) (*models.OperationStatus, error) {
	f.gotCallerID = callerID
	f.gotUserID = userID
	f.gotAdminReq = req
	return f.adminStatus, f.adminErr
}

const testCallerID = "11111111-2222-3333-4444-555555555555"

func newTestServer(t *testing.T, points *fakePoints, users *fakeUsers) (*httptest.Server, string) {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", "pontosledger", time.Hour)
	token, err := tokens.Generate(models.User{ID: testCallerID, Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)

	h := NewHandler(points, users, zap.NewNop())
	ts := httptest.NewServer(NewRouter(h, tokens))
	t.Cleanup(ts.Close)
	return ts, token
}

func doJSON(t *testing.T, method, url, token string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeStatus(t *testing.T, resp *http.Response) models.OperationStatus {
	t.Helper()
	defer resp.Body.Close()
	var status models.OperationStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return status
}

func TestTransfer_Success(t *testing.T) {
	points := &fakePoints{transferStatus: &models.OperationStatus{Success: true, Message: "Pontos transferidos para Bruno com sucesso!"}}
	ts, token := newTestServer(t, points, &fakeUsers{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/points/transfer", token,
		models.TransferRequest{ReceiverID: "r1", Amount: 50, Description: "valeu"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeStatus(t, resp)
	assert.True(t, status.Success)
	assert.Equal(t, testCallerID, points.gotCallerID)
	assert.Equal(t, int64(50), points.gotTransfer.Amount)
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	points := &fakePoints{transferErr: common.ErrInsufficientBalance}
	ts, token := newTestServer(t, points, &fakeUsers{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/points/transfer", token,
		models.TransferRequest{ReceiverID: "r1", Amount: 500})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	status := decodeStatus(t, resp)
	assert.False(t, status.Success)
	assert.Equal(t, "Saldo insuficiente.", status.Message)
}

func TestTransfer_MissingToken(t *testing.T) {
	points := &fakePoints{}
	ts, _ := newTestServer(t, points, &fakeUsers{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/points/transfer", "",
		models.TransferRequest{ReceiverID: "r1", Amount: 10})

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, points.gotCallerID)
}

func TestTransfer_BadToken(t *testing.T) {
	ts, _ := newTestServer(t, &fakePoints{}, &fakeUsers{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/points/transfer", "garbage",
		models.TransferRequest{ReceiverID: "r1", Amount: 10})

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTransfer_MalformedJSON(t *testing.T) {
	ts, token := newTestServer(t, &fakePoints{}, &fakeUsers{})

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/points/transfer", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGrant_PermissionDenied(t *testing.T) {
	points := &fakePoints{grantErr: common.ErrPermissionDenied}
	ts, token := newTestServer(t, points, &fakeUsers{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/points/grant", token,
		models.GrantRequest{UserID: "u2", Amount: 100})

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	status := decodeStatus(t, resp)
	assert.Equal(t, "Esta ação requer privilégios de administrador.", status.Message)
}

func TestGrant_TargetNotFound(t *testing.T) {
	points := &fakePoints{grantErr: common.ErrNotFound}
	ts, token := newTestServer(t, points, &fakeUsers{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/points/grant", token,
		models.GrantRequest{UserID: "ghost", Amount: 100})

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestGrant_Success(t *testing.T) {
	points := &fakePoints{grantStatus: &models.OperationStatus{Success: true, Message: "Pontos concedidos para Carla!"}}
	ts, token := newTestServer(t, points, &fakeUsers{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/points/grant", token,
		models.GrantRequest{UserID: "u2", Amount: 200, IsQuota: true})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.True(t, points.gotGrant.IsQuota)
	assert.Equal(t, int64(200), points.gotGrant.Amount)
}

func TestRegister_NotWhitelisted(t *testing.T) {
	users := &fakeUsers{registerErr: fmt.Errorf("%w: email is not authorized to register", common.ErrPermissionDenied)}
	ts, _ := newTestServer(t, &fakePoints{}, users)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/register", "",
		models.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "secret123"})

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	status := decodeStatus(t, resp)
	assert.Equal(t, "Este e-mail não está autorizado a se cadastrar.", status.Message)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	users := &fakeUsers{registerErr: common.ErrAlreadyExists}
	ts, _ := newTestServer(t, &fakePoints{}, users)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/register", "",
		models.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "secret123"})

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	status := decodeStatus(t, resp)
	assert.Equal(t, "Este e-mail já está em uso.", status.Message)
}

func TestRegister_Success(t *testing.T) {
	users := &fakeUsers{registerStatus: &models.OperationStatus{Success: true, Message: "Usuário cadastrado com sucesso!"}}
	ts, _ := newTestServer(t, &fakePoints{}, users)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/register", "",
		models.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "secret123"})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	status := decodeStatus(t, resp)
	assert.True(t, status.Success)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	users := &fakeUsers{loginErr: common.ErrUnauthenticated}
	ts, _ := newTestServer(t, &fakePoints{}, users)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/login", "",
		models.LoginRequest{Email: "ana@example.com", Password: "wrong"})

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestLogin_Success(t *testing.T) {
	users := &fakeUsers{loginResp: &models.LoginResponse{
		Token: "signed-token",
		User:  models.UserView{ID: testCallerID, Name: "Ana"},
	}}
	ts, _ := newTestServer(t, &fakePoints{}, users)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/login", "",
		models.LoginRequest{Email: "ana@example.com", Password: "secret123"})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()
	var out models.LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "signed-token", out.Token)
	assert.Equal(t, "Ana", out.User.Name)
}

func TestHistory_ReturnsEntries(t *testing.T) {
	points := &fakePoints{history: []models.PointsEntry{
		{ID: 2, UserID: testCallerID, Amount: -50, Type: models.EntrySent},
		{ID: 1, UserID: testCallerID, Amount: 100, Type: models.EntryAdminGrant},
	}}
	ts, token := newTestServer(t, points, &fakeUsers{})

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/points/history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var entries []models.PointsEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, models.EntrySent, entries[0].Type)
	assert.Equal(t, testCallerID, points.gotCallerID)
}

func TestHistory_EmptyIsArray(t *testing.T) {
	ts, token := newTestServer(t, &fakePoints{}, &fakeUsers{})

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/points/history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var entries []models.PointsEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestMe_ReturnsView(t *testing.T) {
	users := &fakeUsers{me: models.UserView{ID: testCallerID, Name: "Ana", TotalPoints: 80, EffectiveBalance: 60}}
	ts, token := newTestServer(t, &fakePoints{}, users)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var view models.UserView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, int64(60), view.EffectiveBalance)
	assert.Equal(t, testCallerID, users.gotCallerID)
}

func TestAdminUpdateUser_PathVariable(t *testing.T) {
	users := &fakeUsers{adminStatus: &models.OperationStatus{Success: true, Message: "Usuário atualizado com sucesso!"}}
	ts, token := newTestServer(t, &fakePoints{}, users)

	resp := doJSON(t, http.MethodPut, ts.URL+"/api/v1/users/target-7", token,
		models.AdminUpdateRequest{Name: "Novo Nome", Role: models.RoleAdministrator})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "target-7", users.gotUserID)
	assert.Equal(t, models.RoleAdministrator, users.gotAdminReq.Role)
}

func TestUpdateProfile_InvalidName(t *testing.T) {
	users := &fakeUsers{profileErr: fmt.Errorf("%w: name must not be empty", common.ErrInvalidArgument)}
	ts, token := newTestServer(t, &fakePoints{}, users)

	resp := doJSON(t, http.MethodPut, ts.URL+"/api/v1/me/profile", token,
		models.ProfileUpdateRequest{Name: "   "})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestInternalErrorIsOpaque(t *testing.T) {
	points := &fakePoints{transferErr: fmt.Errorf("pq: connection reset by peer")}
	ts, token := newTestServer(t, points, &fakeUsers{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/points/transfer", token,
		models.TransferRequest{ReceiverID: "r1", Amount: 10})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	status := decodeStatus(t, resp)
	assert.Equal(t, "Ocorreu um erro interno.", status.Message)
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, &fakePoints{}, &fakeUsers{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
