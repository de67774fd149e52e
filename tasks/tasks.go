package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"avatarmaxapi/emailqueue"
	"avatarmaxapi/models"
	"avatarmaxapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type AvatarGenerationPayload struct {
	AvatarRequestID uint `json:"avatar_request_id"`
}

func NewAvatarGenerationTask(avatarRequestID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(AvatarGenerationPayload{AvatarRequestID: avatarRequestID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask("generate:avatar", payload), nil

}

// NewEmailSweepTask is enqueued by the scheduler; the payload is empty, each
// run drains whatever is eligible.
func NewEmailSweepTask() (*asynq.Task, error) {
	return asynq.NewTask("email:sweep", nil), nil
}

// HandleAvatarGenerationTask runs the full generation pipeline for one avatar
// request: download the kiosk photo, call the generation API, brand the
// result, score it, upload it and complete the request.
func HandleAvatarGenerationTask(
	ctx context.Context, t *asynq.Task, db *gorm.DB, generator services.ImageGeneratorProvider,
	scorer services.StyleScorerProvider, awsService services.AWSServiceProvider) error {
	var payload AvatarGenerationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Avatar: %v] Start Processing\n", payload.AvatarRequestID)

	var avatarRequest models.AvatarRequest
	res := db.First(&avatarRequest, payload.AvatarRequestID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving avatar request for processing %v", payload.AvatarRequestID))
		return res.Error
	}
	if avatarRequest.Status == models.AvatarStatusCompleted {
		fmt.Printf("[Avatar: %v] Already completed\n", payload.AvatarRequestID)
		return nil
	}

	startedAt := time.Now()
	avatarRequest.Status = models.AvatarStatusProcessing
	avatarRequest.ErrorMessage = nil
	if err := db.Save(&avatarRequest).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Avatar: %v] Error on saving processing status %v", payload.AvatarRequestID, err))
		return err
	}

	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	if avatarRequest.OriginalImagePath == nil || *avatarRequest.OriginalImagePath == "" {
		saveAvatarProcessingFail(db, avatarRequest, "No photo was uploaded for this request, please start over")
		return nil
	}

	fileUrl, err := awsService.GetPresignedR2FileReadURL(ctx, bucketName, *avatarRequest.OriginalImagePath)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Avatar: %v] Error on getting presigned URL for file %s: %v", payload.AvatarRequestID, *avatarRequest.OriginalImagePath, err))
		saveAvatarProcessingFail(db, avatarRequest, "Failed to read your photo, please try again")
		return err
	}
	originalBytes, err := services.ReadFileFromUrl(fileUrl)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Avatar: %v] Error on downloading file %s: %v", payload.AvatarRequestID, *avatarRequest.OriginalImagePath, err))
		saveAvatarProcessingFail(db, avatarRequest, "Failed to read your photo, please try again")
		return err
	}
	fmt.Printf("[Avatar: %v] Downloaded original photo, %d bytes\n", payload.AvatarRequestID, len(originalBytes))

	normalized, err := services.ProcessUploadedImage(originalBytes)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Avatar: %v] Error on normalizing photo: %v", payload.AvatarRequestID, err))
		saveAvatarProcessingFail(db, avatarRequest, "Your photo could not be read, please upload a jpg or png photo")
		return nil
	}

	prompt := services.BuildGenerationPrompt(avatarRequest.Superhero, avatarRequest.Color, avatarRequest.Car)
	fmt.Printf("[Avatar: %v] Prompt: %s\n", payload.AvatarRequestID, prompt)

	result, err := generator.GenerateAvatar(ctx, normalized, prompt)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Avatar: %v] Error on generation call: %v", payload.AvatarRequestID, err))
		saveAvatarProcessingFail(db, avatarRequest, "Generation service is unavailable, please try again")
		return err
	}
	if !result.Success() {
		fmt.Printf("[Avatar: %v] Generation rejected: %s\n", payload.AvatarRequestID, result.ErrorMessage)
		sentry.CaptureException(fmt.Errorf("[Avatar: %v] Generation rejected: %s", payload.AvatarRequestID, result.ErrorMessage))
		saveAvatarProcessingFail(db, avatarRequest, result.ErrorMessage)
		return nil
	}

	generatedBytes, err := services.ReadFileFromUrl(result.ImageURL)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Avatar: %v] Error on downloading generated image %s: %v", payload.AvatarRequestID, result.ImageURL, err))
		saveAvatarProcessingFail(db, avatarRequest, "Failed to fetch your generated avatar, please try again")
		return err
	}

	finalBytes := brandAvatar(ctx, db, payload.AvatarRequestID, generatedBytes, awsService, bucketName)

	// scoring is best effort, a completed avatar never fails on it
	if quality, scoreErr := scorer.ScoreAvatar(ctx, finalBytes, avatarRequest.Superhero); scoreErr != nil {
		fmt.Printf("[Avatar: %v] Style scoring failed: %v\n", payload.AvatarRequestID, scoreErr)
		sentry.CaptureException(scoreErr)
	} else if quality != nil {
		avatarRequest.StyleScore = &quality.StyleScore
		avatarRequest.StyleCommentary = &quality.Commentary
	}

	safeFileName := fmt.Sprintf("avatars/avatar-%v.png", avatarRequest.ID)
	uploadUrl, presignErr := awsService.PresignLink(ctx, bucketName, safeFileName)
	if presignErr != nil {
		sentry.CaptureException(fmt.Errorf("[Avatar: %v] Unable to create presign link for %s: %v", avatarRequest.ID, safeFileName, presignErr))
		saveAvatarProcessingFail(db, avatarRequest, "Failed to store your avatar, please try again")
		return presignErr
	}
	respBody, statusCode, err := awsService.UploadToPresignedURL(ctx, bucketName, uploadUrl, finalBytes)
	fmt.Printf("[Avatar: %v] R2 Upload file size %v, url %s, response body: %s, status code: %d\n", payload.AvatarRequestID, len(finalBytes), uploadUrl, respBody, statusCode)
	if err != nil || (statusCode != 200 && statusCode != 204) {
		sentry.CaptureException(fmt.Errorf("[Avatar: %v] Error on uploading avatar %s: %v", payload.AvatarRequestID, safeFileName, err))
		saveAvatarProcessingFail(db, avatarRequest, "Failed to store your avatar, please try again")
		return err
	}

	generationSeconds := int(time.Since(startedAt).Seconds())
	avatarRequest.GeneratedImagePath = &safeFileName
	avatarRequest.GenerationTimeSeconds = &generationSeconds
	avatarRequest.Status = models.AvatarStatusCompleted
	avatarRequest.ErrorMessage = nil
	if err := db.Save(&avatarRequest).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Avatar: %v] Error on saving completed avatar %v", payload.AvatarRequestID, err))
		return err
	}
	fmt.Printf("[Avatar: %v] Generation finished in %vs\n", payload.AvatarRequestID, generationSeconds)
	return nil
}

// brandAvatar stamps the event logo onto the generated image when a logo is
// configured in the bucket. Any problem leaves the image unbranded.
func brandAvatar(ctx context.Context, db *gorm.DB, avatarRequestID uint, avatarBytes []byte, awsService services.AWSServiceProvider, bucketName string) []byte {
	logoKey := services.GetEnv("LOGO_OBJECT_KEY", "assets/innovation-garage-logo.png")
	exists, err := awsService.Exists(ctx, bucketName, logoKey)
	if err != nil || !exists {
		if err != nil {
			fmt.Printf("[Avatar: %v] Logo lookup failed: %v\n", avatarRequestID, err)
		}
		return avatarBytes
	}
	logoBytes, err := awsService.ReadBytes(ctx, bucketName, logoKey)
	if err != nil {
		fmt.Printf("[Avatar: %v] Logo read failed: %v\n", avatarRequestID, err)
		return avatarBytes
	}
	branded, err := services.OverlayLogo(avatarBytes, logoBytes, 0.22, 0.03)
	if err != nil {
		fmt.Printf("[Avatar: %v] Logo overlay failed: %v\n", avatarRequestID, err)
		sentry.CaptureException(err)
		return avatarBytes
	}
	return branded
}

func saveAvatarProcessingFail(db *gorm.DB, avatarRequest models.AvatarRequest, msg string) error {
	avatarRequest.Status = models.AvatarStatusFailed
	avatarRequest.ErrorMessage = &msg
	tx := db.Save(&avatarRequest)
	if tx.Error != nil {
		sentry.CaptureException(fmt.Errorf("[Fail Avatar %v] Error on saving avatar request for failed status", avatarRequest.ID))
		return tx.Error
	}
	return nil
}

// HandleEmailSweepTask runs one drain pass over the email queue. Scheduled
// every few minutes; also runnable standalone via cmd/emailworker.
func HandleEmailSweepTask(ctx context.Context, t *asynq.Task, db *gorm.DB, mailer services.MailerProvider, awsService services.AWSServiceProvider) error {
	if services.GetEnv("ENABLE_EMAIL_FEATURE", "true") != "true" {
		fmt.Println("[Email sweep] Email feature is disabled, skipping")
		return nil
	}

	batchSize, err := strconv.Atoi(services.GetEnv("EMAIL_BATCH_SIZE", "50"))
	if err != nil || batchSize <= 0 {
		batchSize = 50
	}

	processor := emailqueue.QueueProcessor{
		Repo:       emailqueue.NewRepository(db),
		Mailer:     mailer,
		AWSService: awsService,
		BucketName: services.GetEnv("R2_BUCKET_NAME", ""),
		BatchSize:  batchSize,
	}
	summary, err := processor.ProcessQueue(ctx)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}
	fmt.Printf("[Email sweep] Summary: %v processed, %v sent, %v failed\n", summary.Processed, summary.Success, summary.Failed)
	return nil
}
