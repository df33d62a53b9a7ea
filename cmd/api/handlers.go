package main

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"edutrack/internal/apperr"
	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/cloudinary"
	"edutrack/internal/config"
	"edutrack/internal/gifts"
	"edutrack/internal/ledger"
	"edutrack/internal/model"
	"edutrack/internal/queue"
	"edutrack/internal/report"
	"edutrack/internal/roster"
)

// api bundles the services the handlers dispatch to.
type api struct {
	cfg        config.App
	ledger     *ledger.Service
	roster     *roster.Service
	attendance *attendance.Service
	gifts      *gifts.Service
	reports    report.Repository
	queue      queue.Queue
	cdn        *cloudinary.Client
}

func (a *api) registerRoutes(r *gin.Engine, staff, admin, student, anyUser gin.HandlerFunc) {
	r.POST("/v1/auth/token", a.issueToken)
	r.POST("/v1/auth/refresh", a.refreshToken)
	r.POST("/v1/registrations", a.submitRegistration)

	st := r.Group("/v1", staff)
	st.POST("/attendance", a.markAttendance)
	st.GET("/attendance", a.listAttendance)
	st.POST("/students/:id/coins", a.awardCoins)
	st.GET("/students", a.listStudents)
	st.GET("/students/:id", a.studentProfile)

	ad := r.Group("/v1", admin)
	ad.GET("/registrations", a.listRegistrations)
	ad.POST("/registrations/:id/approve", a.approveRegistration)
	ad.POST("/registrations/:id/reject", a.rejectRegistration)
	ad.POST("/import/students", a.importStudents)
	ad.POST("/gifts", a.addGift)
	ad.POST("/gifts/image", a.uploadGiftImage)
	ad.GET("/redemptions", a.listRedemptions)
	ad.POST("/redemptions/:id/approve", a.approveRedemption)
	ad.POST("/redemptions/:id/reject", a.rejectRedemption)
	ad.GET("/teachers", a.listTeachers)
	ad.GET("/stats/sections", a.sectionStats)
	ad.GET("/stats/summary", a.statsSummary)
	ad.POST("/reports", a.requestReport)
	ad.GET("/reports/:id", a.getReport)

	me := r.Group("/v1", student)
	me.POST("/redemptions", a.requestRedemption)
	me.GET("/me", a.myProfile)
	me.GET("/me/redemptions", a.myRedemptions)

	any := r.Group("/v1", anyUser)
	any.GET("/gifts", a.listGifts)
}

func respondErr(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error on %s: %v", c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": apperr.KindOf(err)})
}

// ---- auth ----

func (a *api) issueToken(c *gin.Context) {
	var req struct {
		UserID string     `json:"user_id" binding:"required"`
		Role   model.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Role {
	case model.RoleAdmin:
		if c.GetHeader("X-Admin-Key") != a.cfg.AdminAPIKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			return
		}
	case model.RoleTeacher:
		if _, err := a.roster.TeacherByID(c.Request.Context(), req.UserID); err != nil {
			respondErr(c, err)
			return
		}
	case model.RoleStudent:
		if _, err := a.roster.StudentByID(c.Request.Context(), req.UserID); err != nil {
			respondErr(c, err)
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	tokens, err := auth.Issue(req.UserID, req.Role, a.cfg.JWTIssuer, a.cfg.JWTSigningKey, a.cfg.AccessTTL, a.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	if err := a.roster.SaveRefreshToken(c.Request.Context(), tokens.RefreshToken, req.UserID, req.Role, tokens.RefreshExp); err != nil {
		log.Printf("saving refresh token failed: %v", err)
	}

	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (a *api) refreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := auth.Parse(req.RefreshToken, a.cfg.JWTSigningKey, a.cfg.JWTIssuer)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	active, err := a.roster.RefreshTokenActive(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondErr(c, err)
		return
	}
	if !active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token revoked or expired"})
		return
	}

	tokens, err := auth.Issue(claims.Subject, claims.Role, a.cfg.JWTIssuer, a.cfg.JWTSigningKey, a.cfg.AccessTTL, a.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	_ = a.roster.RevokeRefreshToken(c.Request.Context(), req.RefreshToken)
	if err := a.roster.SaveRefreshToken(c.Request.Context(), tokens.RefreshToken, claims.Subject, claims.Role, tokens.RefreshExp); err != nil {
		log.Printf("saving refresh token failed: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// ---- registrations ----

func (a *api) submitRegistration(c *gin.Context) {
	var in roster.RegistrationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := a.roster.SubmitRegistration(c.Request.Context(), in)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (a *api) listRegistrations(c *gin.Context) {
	reqs, err := a.roster.Registrations(c.Request.Context(), model.RequestStatus(c.Query("status")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registrations": reqs})
}

func (a *api) approveRegistration(c *gin.Context) {
	entityID, err := a.roster.ApproveRegistration(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": model.StatusApproved, "entity_id": entityID})
}

func (a *api) rejectRegistration(c *gin.Context) {
	if err := a.roster.RejectRegistration(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": model.StatusRejected})
}

// ---- roster ----

func (a *api) importStudents(c *gin.Context) {
	var reader io.Reader
	if file, _, err := c.Request.FormFile("file"); err == nil {
		defer file.Close()
		reader = file
	} else {
		reader = c.Request.Body
	}

	rows, err := roster.ParseImportCSV(reader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable csv"})
		return
	}
	imported, err := a.roster.ImportStudents(c.Request.Context(), rows)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported})
}

func (a *api) listStudents(c *gin.Context) {
	students, err := a.roster.Students(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (a *api) studentProfile(c *gin.Context) {
	a.renderProfile(c, c.Param("id"))
}

func (a *api) myProfile(c *gin.Context) {
	a.renderProfile(c, auth.ClaimsFrom(c).Subject)
}

func (a *api) renderProfile(c *gin.Context, studentID string) {
	ctx := c.Request.Context()
	student, err := a.roster.StudentByID(ctx, studentID)
	if err != nil {
		respondErr(c, err)
		return
	}
	txs, err := a.ledger.Transactions(ctx, studentID)
	if err != nil {
		respondErr(c, err)
		return
	}
	records, err := a.attendance.List(ctx, studentID, "", 365, 0)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"student":      student,
		"transactions": txs,
		"attendance":   records,
	})
}

func (a *api) listTeachers(c *gin.Context) {
	teachers, err := a.roster.Teachers(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teachers": teachers})
}

// ---- attendance ----

func (a *api) markAttendance(c *gin.Context) {
	var req struct {
		UserID string     `json:"user_id" binding:"required"`
		Role   model.Role `json:"role" binding:"required"`
		Date   string     `json:"date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := auth.ClaimsFrom(c).Subject
	rec, created, err := a.attendance.Mark(c.Request.Context(), actor, req.UserID, req.Role, req.Date)
	if err != nil {
		respondErr(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"record": rec, "created": created})
}

func (a *api) listAttendance(c *gin.Context) {
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	records, err := a.attendance.List(c.Request.Context(), c.Query("user_id"), c.Query("date"), limit, offset)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// ---- ledger ----

func (a *api) awardCoins(c *gin.Context) {
	var req struct {
		Amount int `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := auth.ClaimsFrom(c).Subject
	tx, err := a.ledger.AwardCoins(c.Request.Context(), actor, c.Param("id"), req.Amount)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

func (a *api) requestRedemption(c *gin.Context) {
	var req struct {
		GiftID string `json:"gift_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	studentID := auth.ClaimsFrom(c).Subject
	redemption, err := a.ledger.RequestRedemption(c.Request.Context(), studentID, req.GiftID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, redemption)
}

func (a *api) listRedemptions(c *gin.Context) {
	reqs, err := a.ledger.Redemptions(c.Request.Context(), c.Query("student_id"), model.RequestStatus(c.Query("status")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redemptions": reqs})
}

func (a *api) myRedemptions(c *gin.Context) {
	studentID := auth.ClaimsFrom(c).Subject
	reqs, err := a.ledger.Redemptions(c.Request.Context(), studentID, model.RequestStatus(c.Query("status")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redemptions": reqs})
}

func (a *api) approveRedemption(c *gin.Context) {
	actor := auth.ClaimsFrom(c).Subject
	redemption, err := a.ledger.ApproveRedemption(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, redemption)
}

func (a *api) rejectRedemption(c *gin.Context) {
	if err := a.ledger.RejectRedemption(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": model.StatusRejected})
}

// ---- gifts ----

func (a *api) listGifts(c *gin.Context) {
	catalog, err := a.gifts.Gifts(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gifts": catalog})
}

func (a *api) addGift(c *gin.Context) {
	var in gifts.GiftInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	gift, err := a.gifts.AddGift(c.Request.Context(), in)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gift)
}

// uploadGiftImage uploads a base64 image or multipart file to Cloudinary
// and returns the public URL for use in POST /v1/gifts.
func (a *api) uploadGiftImage(c *gin.Context) {
	if a.cdn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}

	var result *cloudinary.UploadResult
	var err error

	switch {
	case strings.Contains(c.ContentType(), "multipart/form-data"):
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(file)
		if ferr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return
		}
		result, err = a.cdn.UploadBytes(data, header.Filename)

	default:
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
			return
		}
		result, err = a.cdn.UploadBase64(body.Data)
	}

	if err != nil {
		log.Printf("cloudinary upload failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":       result.SecureURL,
		"public_id": result.PublicID,
		"width":     result.Width,
		"height":    result.Height,
		"bytes":     result.Bytes,
	})
}

// ---- stats & reports ----

func (a *api) sectionStats(c *gin.Context) {
	stats, err := a.attendance.SectionStats(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": stats})
}

func (a *api) statsSummary(c *gin.Context) {
	sum, err := a.attendance.Summary(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (a *api) requestReport(c *gin.Context) {
	rep := model.Report{
		ID:          uuid.NewString(),
		Status:      model.ReportPending,
		RequestedBy: auth.ClaimsFrom(c).Subject,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.reports.InsertReport(c.Request.Context(), rep); err != nil {
		respondErr(c, err)
		return
	}
	if err := a.queue.Publish(c.Request.Context(), queue.Message{Type: queue.TypeReport, Body: []byte(rep.ID)}); err != nil {
		log.Printf("queue publish failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report queue unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, rep)
}

func (a *api) getReport(c *gin.Context) {
	rep, err := a.reports.ReportByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if rep == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.JSON(http.StatusOK, rep)
}
