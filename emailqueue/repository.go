package emailqueue

import (
	"time"

	"avatarmaxapi/models"

	"gorm.io/gorm"
)

const DefaultMaxRetries = 3

const baseBackoffMinutes = 5

// BackoffDelay returns the wait imposed after the n-th failed attempt:
// 5 minutes doubling each retry (5, 10, 20, ...).
func BackoffDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	return time.Duration(baseBackoffMinutes) * time.Minute * (1 << (retryCount - 1))
}

// Repository is the only writer of email_requests rows. The worker never
// computes eligibility or retry schedules itself; it all lives here, and every
// status transition is a single UPDATE keyed by id so overlapping sweeps
// cannot corrupt a row.
type Repository struct {
	DB *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{DB: db}
}

// Enqueue inserts a fresh pending delivery chain for a completed avatar
// request. Callers are expected to have checked the avatar status; storage
// errors propagate so the web flow can tell the user queueing failed.
func (r *Repository) Enqueue(avatarRequestID uint, recipientEmail string, recipientName string) (uint, error) {
	emailRequest := models.EmailRequest{
		AvatarRequestID: avatarRequestID,
		RecipientEmail:  recipientEmail,
		RecipientName:   recipientName,
		Status:          models.EmailStatusPending,
		RequestedAt:     time.Now().UTC(),
		MaxRetries:      DefaultMaxRetries,
	}
	if err := r.DB.Create(&emailRequest).Error; err != nil {
		return 0, err
	}
	return emailRequest.ID, nil
}

// FetchEligibleBatch returns up to limit rows that should be processed now,
// oldest first, with the owning AvatarRequest joined in the same query.
// A row is eligible when pending, or, if includeRetries is set, when failed
// with retries left and its next_retry_at elapsed (or never scheduled).
func (r *Repository) FetchEligibleBatch(limit int, includeRetries bool) ([]models.EmailRequest, error) {
	query := r.DB.Joins("AvatarRequest")
	if includeRetries {
		query = query.Where(
			"email_requests.status = ? OR (email_requests.status = ? AND email_requests.retry_count < email_requests.max_retries AND (email_requests.next_retry_at IS NULL OR email_requests.next_retry_at <= ?))",
			models.EmailStatusPending, models.EmailStatusFailed, time.Now().UTC(),
		)
	} else {
		query = query.Where("email_requests.status = ?", models.EmailStatusPending)
	}

	var requests []models.EmailRequest
	err := query.
		Order("email_requests.created_at ASC").
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// MarkSending flips the row to sending. No-op (not an error) when the row is
// gone; no status guard either, a crashed worker leaves rows parked in
// sending with no reclaim path.
func (r *Repository) MarkSending(emailRequestID uint) error {
	return r.DB.Model(&models.EmailRequest{}).
		Where("id = ?", emailRequestID).
		Update("status", models.EmailStatusSending).Error
}

func (r *Repository) MarkSent(emailRequestID uint, providerMessageID string) error {
	return r.DB.Model(&models.EmailRequest{}).
		Where("id = ?", emailRequestID).
		Updates(map[string]interface{}{
			"status":          models.EmailStatusSent,
			"sent_at":         time.Now().UTC(),
			"smtp_message_id": providerMessageID,
		}).Error
}

// MarkFailed records the attempt outcome and does the retry bookkeeping in
// one atomic UPDATE: retry_count increments (capped at max_retries) and
// next_retry_at is scheduled with exponential backoff only while retries
// remain; an exhausted row keeps next_retry_at NULL and is permanently
// ineligible. Column references on the right-hand side read pre-update
// values, so the post-increment count is retry_count + 1.
func (r *Repository) MarkFailed(emailRequestID uint, errorMessage string, errorCode string) error {
	return r.DB.Model(&models.EmailRequest{}).
		Where("id = ?", emailRequestID).
		Updates(map[string]interface{}{
			"status":        models.EmailStatusFailed,
			"retry_count":   gorm.Expr("LEAST(retry_count + 1, max_retries)"),
			"error_message": errorMessage,
			"error_code":    errorCode,
			"next_retry_at": gorm.Expr(
				"CASE WHEN retry_count + 1 < max_retries THEN NOW() + interval '1 minute' * (? * power(2, retry_count)) ELSE NULL END",
				baseBackoffMinutes,
			),
		}).Error
}

// MarkAvatarEmailRequested stamps the opt-in flag on the avatar request. Used
// once per user opt-in, for confirmation display only; the worker never reads
// it.
func (r *Repository) MarkAvatarEmailRequested(avatarRequestID uint) error {
	return r.DB.Model(&models.AvatarRequest{}).
		Where("id = ?", avatarRequestID).
		Updates(map[string]interface{}{
			"email_requested":    true,
			"email_request_time": time.Now().UTC(),
		}).Error
}

func (r *Repository) GetStatus(emailRequestID uint) (*models.EmailRequest, error) {
	var emailRequest models.EmailRequest
	if err := r.DB.First(&emailRequest, emailRequestID).Error; err != nil {
		return nil, err
	}
	return &emailRequest, nil
}

type EmailStatistics struct {
	Total       int64   `json:"total_requests"`
	Pending     int64   `json:"pending"`
	Sent        int64   `json:"sent"`
	Failed      int64   `json:"failed"`
	Retrying    int64   `json:"retrying"`
	SuccessRate float64 `json:"success_rate"`
}

func (r *Repository) GetStatistics() (*EmailStatistics, error) {
	stats := EmailStatistics{}
	model := func() *gorm.DB { return r.DB.Model(&models.EmailRequest{}) }

	if err := model().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := model().Where("status = ?", models.EmailStatusPending).Count(&stats.Pending).Error; err != nil {
		return nil, err
	}
	if err := model().Where("status = ?", models.EmailStatusSent).Count(&stats.Sent).Error; err != nil {
		return nil, err
	}
	if err := model().Where("status = ?", models.EmailStatusFailed).Count(&stats.Failed).Error; err != nil {
		return nil, err
	}
	if err := model().Where("status = ? AND retry_count < max_retries", models.EmailStatusFailed).Count(&stats.Retrying).Error; err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(stats.Total)
	}
	return &stats, nil
}
