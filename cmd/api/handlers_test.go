package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/config"
	"edutrack/internal/gifts"
	"edutrack/internal/ledger"
	"edutrack/internal/model"
	"edutrack/internal/queue"
	"edutrack/internal/roster"
	"edutrack/internal/store"
)

func newTestAPI(t *testing.T) (*gin.Engine, *api, *store.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.App{
		JWTIssuer:     "edutrack",
		JWTSigningKey: "test-signing-key",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		AdminAPIKey:   "test-admin-key",
	}
	mem := store.NewMemory()
	giftSvc := gifts.NewService(mem)

	app := &api{
		cfg:        cfg,
		ledger:     ledger.NewService(mem, giftSvc),
		roster:     roster.NewService(mem),
		attendance: attendance.NewService(mem),
		gifts:      giftSvc,
		reports:    mem,
		queue:      queue.NewInMemory(4),
	}

	r := gin.New()
	staff := auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, model.RoleAdmin, model.RoleTeacher)
	admin := auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, model.RoleAdmin)
	student := auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, model.RoleStudent)
	anyUser := auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer)
	app.registerRoutes(r, staff, admin, student, anyUser)
	return r, app, mem
}

func bearer(t *testing.T, app *api, subject string, role model.Role) string {
	t.Helper()
	pair, err := auth.Issue(subject, role, app.cfg.JWTIssuer, app.cfg.JWTSigningKey, app.cfg.AccessTTL, app.cfg.RefreshTTL)
	require.NoError(t, err)
	return "Bearer " + pair.AccessToken
}

func doJSON(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIssueTokenForAdmin(t *testing.T) {
	r, _, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token",
		bytes.NewBufferString(`{"user_id": "admin", "role": "ADMIN"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", "test-admin-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["access_token"])
	assert.NotEmpty(t, resp["refresh_token"])
}

func TestIssueTokenRejectsBadAdminKey(t *testing.T) {
	r, _, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token",
		bytes.NewBufferString(`{"user_id": "admin", "role": "ADMIN"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", "wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegistrationApprovalFlow(t *testing.T) {
	r, app, _ := newTestAPI(t)
	adminTok := bearer(t, app, "admin", model.RoleAdmin)

	w := doJSON(r, http.MethodPost, "/v1/registrations", "", map[string]any{
		"name": "Ravi Kumar", "email": "ravi@example.com", "role": "STUDENT", "roll_no": "S-101",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var reg model.RegistrationRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))

	// Unauthenticated approval is rejected.
	w = doJSON(r, http.MethodPost, "/v1/registrations/"+reg.ID+"/approve", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/v1/registrations/"+reg.ID+"/approve", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var approval struct {
		EntityID string `json:"entity_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &approval))
	require.NotEmpty(t, approval.EntityID)

	// Re-approval conflicts.
	w = doJSON(r, http.MethodPost, "/v1/registrations/"+reg.ID+"/approve", adminTok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The new student can fetch their own profile.
	studentTok := bearer(t, app, approval.EntityID, model.RoleStudent)
	w = doJSON(r, http.MethodGet, "/v1/me", studentTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "S-101")
}

func TestAwardAndRedeemOverHTTP(t *testing.T) {
	r, app, mem := newTestAPI(t)
	teacherTok := bearer(t, app, "teacher-1", model.RoleTeacher)
	adminTok := bearer(t, app, "admin", model.RoleAdmin)

	st := model.Student{ID: "student-1", Name: "Asha", RollNo: "S-1", Section: "A"}
	require.NoError(t, mem.InsertStudent(context.Background(), st))
	studentTok := bearer(t, app, st.ID, model.RoleStudent)

	w := doJSON(r, http.MethodPost, "/v1/gifts", adminTok, map[string]any{"name": "Water Bottle", "cost": 300})
	require.Equal(t, http.StatusCreated, w.Code)
	var gift model.Gift
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gift))

	// Students cannot award coins.
	w = doJSON(r, http.MethodPost, "/v1/students/"+st.ID+"/coins", studentTok, map[string]any{"amount": 999})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodPost, "/v1/students/"+st.ID+"/coins", teacherTok, map[string]any{"amount": 250})
	require.Equal(t, http.StatusCreated, w.Code)

	// 250 coins cannot cover a 300 coin gift.
	w = doJSON(r, http.MethodPost, "/v1/redemptions", studentTok, map[string]any{"gift_id": gift.ID})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_BALANCE")

	w = doJSON(r, http.MethodPost, "/v1/students/"+st.ID+"/coins", teacherTok, map[string]any{"amount": 100})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, http.MethodPost, "/v1/redemptions", studentTok, map[string]any{"gift_id": gift.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	var redemption model.RedemptionRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &redemption))

	w = doJSON(r, http.MethodPost, "/v1/redemptions/"+redemption.ID+"/approve", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := mem.StudentByID(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Coins)

	w = doJSON(r, http.MethodPost, "/v1/redemptions/"+redemption.ID+"/approve", adminTok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMarkAttendanceIdempotentOverHTTP(t *testing.T) {
	r, app, mem := newTestAPI(t)
	teacherTok := bearer(t, app, "teacher-1", model.RoleTeacher)
	require.NoError(t, mem.InsertStudent(context.Background(), model.Student{ID: "student-1", Name: "Asha", RollNo: "S-1"}))

	body := map[string]any{"user_id": "student-1", "role": "STUDENT", "date": "2026-08-31"}
	w := doJSON(r, http.MethodPost, "/v1/attendance", teacherTok, body)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, http.MethodPost, "/v1/attendance", teacherTok, body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"created":false`)
}

func TestRefreshTokenRotation(t *testing.T) {
	r, _, mem := newTestAPI(t)
	require.NoError(t, mem.InsertStudent(context.Background(), model.Student{ID: "student-1", Name: "Asha", RollNo: "S-1"}))

	w := doJSON(r, http.MethodPost, "/v1/auth/token", "", map[string]any{"user_id": "student-1", "role": "STUDENT"})
	require.Equal(t, http.StatusCreated, w.Code)
	var first struct {
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	w = doJSON(r, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": first.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	// The old refresh token is now revoked.
	w = doJSON(r, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestImportStudentsCSV(t *testing.T) {
	r, app, _ := newTestAPI(t)
	adminTok := bearer(t, app, "admin", model.RoleAdmin)

	csv := "name,rollNo,section\nAsha,S-1,A\n,S-2,A\nRavi,S-3,B\n"
	req := httptest.NewRequest(http.MethodPost, "/v1/import/students", bytes.NewBufferString(csv))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Authorization", adminTok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"imported":2`)

	w2 := doJSON(r, http.MethodGet, "/v1/students?search=ravi", adminTok, nil)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Contains(t, w2.Body.String(), "S-3")
}

func TestRequestReportQueuesJob(t *testing.T) {
	r, app, mem := newTestAPI(t)
	adminTok := bearer(t, app, "admin", model.RoleAdmin)

	w := doJSON(r, http.MethodPost, "/v1/reports", adminTok, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var rep model.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, model.ReportPending, rep.Status)

	stored, err := mem.ReportByID(context.Background(), rep.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	messages, err := app.queue.Consume(context.Background())
	require.NoError(t, err)
	select {
	case msg := <-messages:
		assert.Equal(t, queue.TypeReport, msg.Type)
		assert.Equal(t, rep.ID, string(msg.Body))
	case <-time.After(time.Second):
		t.Fatal("report job not queued")
	}

	w = doJSON(r, http.MethodGet, fmt.Sprintf("/v1/reports/%s", rep.ID), adminTok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
