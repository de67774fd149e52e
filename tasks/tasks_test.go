package tasks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"avatarmaxapi/dbhelper"
	"avatarmaxapi/models"
	"avatarmaxapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleAvatarGenerationTaskOk(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	avatarRequest := test.FakeAvatarRequest(db, models.AvatarStatusPending)
	require.NoError(t, db.Model(&models.AvatarRequest{}).Where("id = ?", avatarRequest.ID).
		Update("original_image_path", "uploads/test-photo.png").Error)

	mockImage := test.PNGBytes(1200, 900)
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(mockImage)
	}))
	defer mockServer.Close()

	awsServiceMock := &test.AWSProviderMock{MockUrl: mockServer.URL}
	generatorMock := test.GeneratorMock{MockUrl: mockServer.URL}

	fakeTask, err := NewAvatarGenerationTask(avatarRequest.ID)
	require.NoError(t, err)

	err = HandleAvatarGenerationTask(context.Background(), fakeTask, db, generatorMock, test.ScorerMock{}, awsServiceMock)
	assert.NoError(t, err)

	var updated models.AvatarRequest
	require.NoError(t, db.First(&updated, avatarRequest.ID).Error)
	assert.Equal(t, models.AvatarStatusCompleted, updated.Status)
	require.NotNil(t, updated.GeneratedImagePath)
	assert.Equal(t, fmt.Sprintf("avatars/avatar-%v.png", avatarRequest.ID), *updated.GeneratedImagePath)
	require.NotNil(t, updated.GenerationTimeSeconds)
	require.NotNil(t, updated.StyleScore)
	assert.Equal(t, 8.5, *updated.StyleScore)
	assert.Nil(t, updated.ErrorMessage)
}

func TestHandleAvatarGenerationTaskGenerationRejected(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	avatarRequest := test.FakeAvatarRequest(db, models.AvatarStatusPending)
	require.NoError(t, db.Model(&models.AvatarRequest{}).Where("id = ?", avatarRequest.ID).
		Update("original_image_path", "uploads/test-photo.png").Error)

	mockImage := test.PNGBytes(600, 600)
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(mockImage)
	}))
	defer mockServer.Close()

	awsServiceMock := &test.AWSProviderMock{MockUrl: mockServer.URL}
	generatorMock := test.GeneratorMock{FailureMessage: "generation failed: content policy"}

	fakeTask, err := NewAvatarGenerationTask(avatarRequest.ID)
	require.NoError(t, err)

	// provider-side rejection is permanent, the task must not be retried
	err = HandleAvatarGenerationTask(context.Background(), fakeTask, db, generatorMock, test.ScorerMock{}, awsServiceMock)
	assert.NoError(t, err)

	var updated models.AvatarRequest
	require.NoError(t, db.First(&updated, avatarRequest.ID).Error)
	assert.Equal(t, models.AvatarStatusFailed, updated.Status)
	require.NotNil(t, updated.ErrorMessage)
	assert.Contains(t, *updated.ErrorMessage, "content policy")
}

func TestHandleAvatarGenerationTaskMissingPhoto(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	avatarRequest := test.FakeAvatarRequest(db, models.AvatarStatusPending)

	fakeTask, err := NewAvatarGenerationTask(avatarRequest.ID)
	require.NoError(t, err)

	err = HandleAvatarGenerationTask(context.Background(), fakeTask, db, test.GeneratorMock{}, test.ScorerMock{}, &test.AWSProviderMock{})
	assert.NoError(t, err)

	var updated models.AvatarRequest
	require.NoError(t, db.First(&updated, avatarRequest.ID).Error)
	assert.Equal(t, models.AvatarStatusFailed, updated.Status)
	require.NotNil(t, updated.ErrorMessage)
}

func TestHandleEmailSweepTask(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	avatarRequest := test.FakeAvatarRequest(db, models.AvatarStatusCompleted)
	emailRequest := models.EmailRequest{
		AvatarRequestID: avatarRequest.ID,
		RecipientEmail:  avatarRequest.Email,
		RecipientName:   avatarRequest.Name,
		Status:          models.EmailStatusPending,
		MaxRetries:      3,
	}
	require.NoError(t, db.Create(&emailRequest).Error)

	awsServiceMock := &test.AWSProviderMock{
		Objects: map[string][]byte{
			*avatarRequest.GeneratedImagePath: test.PNGBytes(900, 700),
		},
	}
	mailer := &test.MailerMock{}

	sweepTask, err := NewEmailSweepTask()
	require.NoError(t, err)

	err = HandleEmailSweepTask(context.Background(), sweepTask, db, mailer, awsServiceMock)
	assert.NoError(t, err)

	require.Len(t, mailer.Sent, 1)
	var updated models.EmailRequest
	require.NoError(t, db.First(&updated, emailRequest.ID).Error)
	assert.Equal(t, models.EmailStatusSent, updated.Status)
}
