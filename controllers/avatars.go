package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"avatarmaxapi/models"
	"avatarmaxapi/services"
	"avatarmaxapi/tasks"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// Request structs for validation
type CreateAvatarIn struct {
	Name      string  `json:"name" validate:"required,max=100"`
	Email     string  `json:"email" validate:"required,email,max=255"`
	Superhero string  `json:"superhero" validate:"required,max=100"`
	Car       string  `json:"car" validate:"required,max=100"`
	Color     string  `json:"color" validate:"required,max=50"`
	FileName  *string `json:"file_name" validate:"required,max=200"`
}

// Response structs
type AvatarCreatedResponse struct {
	RequestID     uint   `json:"request_id"`
	Status        string `json:"status"`
	FileUploadUrl string `json:"file_upload_url"`
}

type AvatarStatusResponse struct {
	RequestID             uint     `json:"request_id"`
	Name                  string   `json:"name"`
	Superhero             string   `json:"superhero"`
	Car                   string   `json:"car"`
	Color                 string   `json:"color"`
	Status                string   `json:"status"`
	GenerationTimeSeconds *int     `json:"generation_time_seconds,omitempty"`
	ErrorMessage          *string  `json:"error_message,omitempty"`
	AvatarUrl             *string  `json:"avatar_url,omitempty"`
	StyleScore            *float64 `json:"style_score,omitempty"`
	StyleCommentary       *string  `json:"style_commentary,omitempty"`
	EmailRequested        bool     `json:"email_requested"`
	CreatedAt             string   `json:"created_at"`
}

type GenerationStartedResponse struct {
	RequestID uint   `json:"request_id"`
	Status    string `json:"status"`
}

type AvatarsController struct {
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
}

func (controller *AvatarsController) AvatarRoutes(g *echo.Group) {
	g.POST("", controller.CreateAvatar)
	g.POST("/:avatarId/generate", controller.StartGeneration)
	g.GET("/:avatarId", controller.GetAvatarStatus)
	g.GET("/:avatarId/qr", controller.GetDownloadQR)
}

func (controller *AvatarsController) CreateAvatar(c echo.Context) error {
	var req CreateAvatarIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	if !services.IsAllowedImageName(*req.FileName) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Only jpg, jpeg, png or webp images are supported"})
	}

	avatarRequest := models.AvatarRequest{
		Name:      req.Name,
		Email:     req.Email,
		Superhero: req.Superhero,
		Car:       req.Car,
		Color:     req.Color,
		Status:    models.AvatarStatusPending,
	}

	var bucketName = services.GetEnv("R2_BUCKET_NAME", "")
	safeFileName := fmt.Sprintf("uploads/%s", *req.FileName)
	uploadUrl, presignErr := controller.AWSService.PresignLink(context.Background(), bucketName, safeFileName)
	if presignErr != nil {
		log.Printf("Unable to presign upload for %s!, %s", req.Name, presignErr)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Error while preparing photo upload"})
	}
	avatarRequest.OriginalImagePath = &safeFileName

	if err := db.Create(&avatarRequest).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create avatar request, please try again"})
	}

	response := AvatarCreatedResponse{
		RequestID:     avatarRequest.ID,
		Status:        avatarRequest.Status,
		FileUploadUrl: uploadUrl,
	}

	return c.JSON(http.StatusCreated, response)
}

func (controller *AvatarsController) StartGeneration(c echo.Context) error {
	avatarId, err := strconv.ParseUint(c.Param("avatarId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid avatar request id"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Service is not available, please try again a bit later"})
	}

	var avatarRequest models.AvatarRequest
	if err := db.First(&avatarRequest, avatarId).Error; err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Avatar request not found"})
	}
	if avatarRequest.Status == models.AvatarStatusProcessing {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Generation is already in progress"})
	}

	task, err := tasks.NewAvatarGenerationTask(avatarRequest.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Sorry, could not start generation, please try again"})
	}
	info, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Queue("generate"))
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Sorry, could not start generation, please try again"})
	}
	fmt.Println("[Queue] Avatar generation task submitted, Request ID: ", avatarRequest.ID, " Task ID: ", info.ID)

	return c.JSON(http.StatusAccepted, GenerationStartedResponse{
		RequestID: avatarRequest.ID,
		Status:    avatarRequest.Status,
	})
}

func (controller *AvatarsController) GetAvatarStatus(c echo.Context) error {
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

	response := AvatarStatusResponse{
		RequestID:             avatarRequest.ID,
		Name:                  avatarRequest.Name,
		Superhero:             avatarRequest.Superhero,
		Car:                   avatarRequest.Car,
		Color:                 avatarRequest.Color,
		Status:                avatarRequest.Status,
		GenerationTimeSeconds: avatarRequest.GenerationTimeSeconds,
		ErrorMessage:          avatarRequest.ErrorMessage,
		StyleScore:            avatarRequest.StyleScore,
		StyleCommentary:       avatarRequest.StyleCommentary,
		EmailRequested:        avatarRequest.EmailRequested,
		CreatedAt:             avatarRequest.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}

	if avatarRequest.Status == models.AvatarStatusCompleted && avatarRequest.GeneratedImagePath != nil {
		url, err := controller.URLCache.GetReadURL(c.Request().Context(), *avatarRequest.GeneratedImagePath)
		if err != nil {
			log.Printf("CACHE WARNING: failed to resolve read URL for key '%s': %v", *avatarRequest.GeneratedImagePath, err)
			sentry.CaptureException(err)
		} else if url != "" {
			response.AvatarUrl = &url
		}
	}

	return c.JSON(http.StatusOK, response)
}

func (controller *AvatarsController) GetDownloadQR(c echo.Context) error {
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
	if avatarRequest.Status != models.AvatarStatusCompleted || avatarRequest.GeneratedImagePath == nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Avatar is not ready yet"})
	}

	url, err := controller.URLCache.GetReadURL(c.Request().Context(), *avatarRequest.GeneratedImagePath)
	if err != nil || url == "" {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to resolve download link"})
	}

	qrPng, err := services.GenerateDownloadQR(url)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate QR code"})
	}
	return c.Blob(http.StatusOK, "image/png", qrPng)
}
