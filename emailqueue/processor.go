package emailqueue

import (
	"context"
	"fmt"
	"strings"

	"avatarmaxapi/models"
	"avatarmaxapi/services"

	"github.com/getsentry/sentry-go"
)

const dryRunMessageID = "dry-run-message-id"

// SweepSummary reports one drain pass. Processed = Success + Failed.
type SweepSummary struct {
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
}

// QueueProcessor drains eligible email requests sequentially: resolve the
// avatar image from object storage, render the message, hand it to the
// mailer, record the outcome. Send failures are recorded per row and never
// abort the sweep; repository errors do.
type QueueProcessor struct {
	Repo       *Repository
	Mailer     services.MailerProvider
	AWSService services.AWSServiceProvider
	BucketName string
	BatchSize  int
	DryRun     bool
}

func (p *QueueProcessor) ProcessQueue(ctx context.Context) (SweepSummary, error) {
	summary := SweepSummary{}

	batch, err := p.Repo.FetchEligibleBatch(p.BatchSize, true)
	if err != nil {
		sentry.CaptureException(err)
		return summary, fmt.Errorf("failed to fetch email batch: %v", err)
	}
	if len(batch) == 0 {
		fmt.Println("[Email sweep] No pending email requests")
		return summary, nil
	}
	fmt.Printf("[Email sweep] Found %v email request(s) to process\n", len(batch))

	for i := range batch {
		if err := p.processOne(ctx, &batch[i], &summary); err != nil {
			sentry.CaptureException(err)
			return summary, err
		}
	}

	fmt.Printf("[Email sweep] Done: %v processed, %v sent, %v failed\n",
		summary.Processed, summary.Success, summary.Failed)
	return summary, nil
}

// processOne attempts delivery for a single row. The returned error is only
// for repository failures; delivery problems land in the row itself.
func (p *QueueProcessor) processOne(ctx context.Context, emailRequest *models.EmailRequest, summary *SweepSummary) error {
	summary.Processed++
	fmt.Printf("[Email: %v] Processing request for %s (attempt %v)\n",
		emailRequest.ID, emailRequest.RecipientEmail, emailRequest.RetryCount+1)

	if !p.DryRun {
		if err := p.Repo.MarkSending(emailRequest.ID); err != nil {
			return fmt.Errorf("failed to mark email request %v as sending: %v", emailRequest.ID, err)
		}
	}

	messageID, errorCode, sendErr := p.deliver(ctx, emailRequest)
	if sendErr != nil {
		summary.Failed++
		fmt.Printf("[Email: %v] Delivery failed (%s): %v\n", emailRequest.ID, errorCode, sendErr)
		if p.DryRun {
			return nil
		}
		return p.Repo.MarkFailed(emailRequest.ID, sendErr.Error(), errorCode)
	}

	summary.Success++
	fmt.Printf("[Email: %v] Sent, message id %s\n", emailRequest.ID, messageID)
	if p.DryRun {
		return nil
	}
	return p.Repo.MarkSent(emailRequest.ID, messageID)
}

// deliver prepares and sends one message. Anything that goes wrong before the
// SMTP handoff is a processing error; only the mailer call itself yields
// SMTP_SEND_FAILED.
func (p *QueueProcessor) deliver(ctx context.Context, emailRequest *models.EmailRequest) (string, string, error) {
	avatar := emailRequest.AvatarRequest
	if avatar.GeneratedImagePath == nil || *avatar.GeneratedImagePath == "" {
		return "", models.EmailErrorProcessingError,
			fmt.Errorf("avatar request %v has no generated image path", emailRequest.AvatarRequestID)
	}
	objectKey := *avatar.GeneratedImagePath

	exists, err := p.AWSService.Exists(ctx, p.BucketName, objectKey)
	if err != nil {
		return "", models.EmailErrorProcessingError,
			fmt.Errorf("failed to check avatar image %s: %v", objectKey, err)
	}
	if !exists {
		return "", models.EmailErrorProcessingError,
			fmt.Errorf("avatar image not found at %s", objectKey)
	}

	imageBytes, err := p.AWSService.ReadBytes(ctx, p.BucketName, objectKey)
	if err != nil {
		return "", models.EmailErrorProcessingError,
			fmt.Errorf("failed to read avatar image %s: %v", objectKey, err)
	}

	emailImage, err := services.ResizeForEmail(imageBytes)
	if err != nil {
		return "", models.EmailErrorProcessingError,
			fmt.Errorf("failed to prepare avatar image for email: %v", err)
	}

	rendered, err := RenderAvatarEmail(EmailTemplateData{
		Name:      emailRequest.RecipientName,
		Superhero: avatar.Superhero,
		Color:     avatar.Color,
		Car:       avatar.Car,
	})
	if err != nil {
		return "", models.EmailErrorProcessingError,
			fmt.Errorf("failed to render email templates: %v", err)
	}

	if p.DryRun {
		return dryRunMessageID, "", nil
	}

	messageID, err := p.Mailer.SendAvatarEmail(ctx, services.AvatarEmailIn{
		ToAddress:       emailRequest.RecipientEmail,
		ToName:          emailRequest.RecipientName,
		Subject:         rendered.Subject,
		HtmlBody:        rendered.Html,
		TextBody:        rendered.Text,
		InlineImage:     emailImage,
		AttachmentImage: emailImage,
		AvatarRequestID: emailRequest.AvatarRequestID,
	})
	if err != nil {
		return "", models.EmailErrorSMTPSendFailed, fmt.Errorf("SMTP send failed: %v", err)
	}
	return strings.TrimSpace(messageID), "", nil
}
