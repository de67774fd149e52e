package models

import "time"

const (
	EmailStatusPending = "pending"
	EmailStatusSending = "sending"
	EmailStatusSent    = "sent"
	EmailStatusFailed  = "failed"
	EmailStatusBounced = "bounced"
)

const (
	EmailErrorSMTPSendFailed  = "SMTP_SEND_FAILED"
	EmailErrorProcessingError = "PROCESSING_ERROR"
)

// EmailRequest is one delivery chain for a generated avatar: the initial
// attempt plus up to MaxRetries retries share this single row.
type EmailRequest struct {
	JsonModel
	AvatarRequestID uint          `gorm:"index:idx_email_requests_avatar_id" json:"avatar_request_id"`
	AvatarRequest   AvatarRequest `json:"-"`

	RecipientEmail string `json:"recipient_email"`
	RecipientName  string `json:"recipient_name"`

	Status      string     `gorm:"default:pending;index:idx_email_requests_status;index:idx_email_requests_pending,priority:1" json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	SentAt      *time.Time `json:"sent_at"`

	RetryCount  int        `gorm:"default:0" json:"retry_count"`
	MaxRetries  int        `gorm:"default:3" json:"max_retries"`
	NextRetryAt *time.Time `gorm:"index:idx_email_requests_pending,priority:2" json:"next_retry_at"`

	ErrorMessage *string `gorm:"type:text" json:"error_message"`
	ErrorCode    *string `json:"error_code"`

	// provider message id, set only once the email went out
	SMTPMessageID *string `gorm:"column:smtp_message_id" json:"smtp_message_id"`
}
