package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"avatarmaxapi/emailqueue"
	"avatarmaxapi/models"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type RequestEmailIn struct {
	// defaults to the name and email captured on the avatar request
	RecipientEmail *string `json:"recipient_email" validate:"omitempty,email,max=255"`
	RecipientName  *string `json:"recipient_name" validate:"omitempty,max=100"`
}

type EmailRequestedResponse struct {
	EmailRequestID uint   `json:"email_request_id"`
	Status         string `json:"status"`
}

type EmailStatusResponse struct {
	ID              uint       `json:"id"`
	AvatarRequestID uint       `json:"avatar_request_id"`
	RecipientEmail  string     `json:"recipient_email"`
	Status          string     `json:"status"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	ErrorCode       *string    `json:"error_code,omitempty"`
	SMTPMessageID   *string    `json:"smtp_message_id,omitempty"`
}

type EmailsController struct{}

func (controller *EmailsController) EmailRoutes(g *echo.Group) {
	g.GET("/statistics", controller.GetStatistics)
	g.GET("/:emailId", controller.GetEmailStatus)
}

func (controller *EmailsController) RequestEmail(c echo.Context) error {
	var req RequestEmailIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	avatarId, err := strconv.ParseUint(c.Param("avatarId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid avatar request id"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var avatarRequest models.AvatarRequest
	if err := db.First(&avatarRequest, avatarId).Error; err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Avatar request not found"})
	}
	if avatarRequest.Status != models.AvatarStatusCompleted {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Avatar is not ready to be emailed yet"})
	}

	recipientEmail := avatarRequest.Email
	if req.RecipientEmail != nil && *req.RecipientEmail != "" {
		recipientEmail = *req.RecipientEmail
	}
	recipientName := avatarRequest.Name
	if req.RecipientName != nil && *req.RecipientName != "" {
		recipientName = *req.RecipientName
	}

	repo := emailqueue.NewRepository(db)
	if err := repo.MarkAvatarEmailRequested(avatarRequest.ID); err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Sorry, could not queue email, please try again"})
	}
	emailRequestID, err := repo.Enqueue(avatarRequest.ID, recipientEmail, recipientName)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Sorry, could not queue email, please try again"})
	}
	fmt.Println("[Queue] Email request queued, Avatar ID: ", avatarRequest.ID, " Email request ID: ", emailRequestID)

	return c.JSON(http.StatusCreated, EmailRequestedResponse{
		EmailRequestID: emailRequestID,
		Status:         models.EmailStatusPending,
	})
}

func (controller *EmailsController) GetEmailStatus(c echo.Context) error {
	emailId, err := strconv.ParseUint(c.Param("emailId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid email request id"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	emailRequest, err := emailqueue.NewRepository(db).GetStatus(uint(emailId))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Email request not found"})
	}

	return c.JSON(http.StatusOK, EmailStatusResponse{
		ID:              emailRequest.ID,
		AvatarRequestID: emailRequest.AvatarRequestID,
		RecipientEmail:  emailRequest.RecipientEmail,
		Status:          emailRequest.Status,
		RetryCount:      emailRequest.RetryCount,
		MaxRetries:      emailRequest.MaxRetries,
		NextRetryAt:     emailRequest.NextRetryAt,
		SentAt:          emailRequest.SentAt,
		ErrorMessage:    emailRequest.ErrorMessage,
		ErrorCode:       emailRequest.ErrorCode,
		SMTPMessageID:   emailRequest.SMTPMessageID,
	})
}

func (controller *EmailsController) GetStatistics(c echo.Context) error {
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	stats, err := emailqueue.NewRepository(db).GetStatistics()
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to compute email statistics"})
	}
	return c.JSON(http.StatusOK, stats)
}
