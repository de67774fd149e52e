package models

import "time"

type JsonModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// pending, processing, completed, failed
const (
	AvatarStatusPending    = "pending"
	AvatarStatusProcessing = "processing"
	AvatarStatusCompleted  = "completed"
	AvatarStatusFailed     = "failed"
)

type AvatarRequest struct {
	JsonModel
	Name      string `json:"name"`
	Email     string `json:"email"`
	Superhero string `json:"superhero"`
	Car       string `json:"car"`
	Color     string `json:"color"`

	Status                string  `gorm:"default:pending" json:"status"`
	GenerationTimeSeconds *int    `json:"generation_time_seconds"`
	ErrorMessage          *string `gorm:"type:text" json:"error_message"`

	// object storage keys, not local paths
	OriginalImagePath  *string `json:"original_image_path"`
	GeneratedImagePath *string `json:"generated_image_path"`

	EmailRequested   bool       `gorm:"default:false" json:"email_requested"`
	EmailRequestTime *time.Time `json:"email_request_time"`

	// set by the style scorer after generation, both optional
	StyleScore      *float64 `json:"style_score"`
	StyleCommentary *string  `gorm:"type:text" json:"style_commentary"`
}
