package emailqueue

import (
	"testing"
	"time"

	"avatarmaxapi/dbhelper"
	"avatarmaxapi/models"
	"avatarmaxapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func fakeEmailRequest(t *testing.T, db *gorm.DB, avatarRequestID uint) *models.EmailRequest {
	repo := NewRepository(db)
	id, err := repo.Enqueue(avatarRequestID, "taylor@example.com", "Taylor")
	require.NoError(t, err)
	emailRequest, err := repo.GetStatus(id)
	require.NoError(t, err)
	return emailRequest
}

func setFailedState(t *testing.T, db *gorm.DB, id uint, retryCount int, nextRetryAt *time.Time) {
	err := db.Model(&models.EmailRequest{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        models.EmailStatusFailed,
		"retry_count":   retryCount,
		"next_retry_at": nextRetryAt,
	}).Error
	require.NoError(t, err)
}

func timePtr(value time.Time) *time.Time {
	return &value
}

func TestEnqueueDefaults(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	avatar := test.FakeAvatarRequest(db, models.AvatarStatusCompleted)

	emailRequest := fakeEmailRequest(t, db, avatar.ID)

	assert.Equal(t, models.EmailStatusPending, emailRequest.Status)
	assert.Equal(t, 0, emailRequest.RetryCount)
	assert.Equal(t, 3, emailRequest.MaxRetries)
	assert.Nil(t, emailRequest.NextRetryAt)
	assert.Nil(t, emailRequest.SentAt)
	assert.Equal(t, avatar.ID, emailRequest.AvatarRequestID)
}

func TestFetchEligibleBatchPendingAndRetries(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	repo := NewRepository(db)
	avatar := test.FakeAvatarRequest(db, models.AvatarStatusCompleted)

	pendingReq := fakeEmailRequest(t, db, avatar.ID)

	retryDue := fakeEmailRequest(t, db, avatar.ID)
	setFailedState(t, db, retryDue.ID, 1, timePtr(time.Now().UTC().Add(-time.Minute)))

	retryNotDue := fakeEmailRequest(t, db, avatar.ID)
	setFailedState(t, db, retryNotDue.ID, 1, timePtr(time.Now().UTC().Add(time.Hour)))

	exhausted := fakeEmailRequest(t, db, avatar.ID)
	setFailedState(t, db, exhausted.ID, 3, nil)

	sent := fakeEmailRequest(t, db, avatar.ID)
	require.NoError(t, repo.MarkSent(sent.ID, "<done@example.com>"))

	batch, err := repo.FetchEligibleBatch(50, true)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, pendingReq.ID, batch[0].ID)
	assert.Equal(t, retryDue.ID, batch[1].ID)
	// join brings the owning avatar request along
	assert.Equal(t, avatar.Superhero, batch[0].AvatarRequest.Superhero)
}

func TestFetchEligibleBatchWithoutRetries(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	repo := NewRepository(db)
	avatar := test.FakeAvatarRequest(db, models.AvatarStatusCompleted)

	pendingReq := fakeEmailRequest(t, db, avatar.ID)
	retryDue := fakeEmailRequest(t, db, avatar.ID)
	setFailedState(t, db, retryDue.ID, 1, timePtr(time.Now().UTC().Add(-time.Minute)))

	batch, err := repo.FetchEligibleBatch(50, false)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, pendingReq.ID, batch[0].ID)
}

func TestFetchEligibleBatchNullNextRetryStillEligible(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	repo := NewRepository(db)
	avatar := test.FakeAvatarRequest(db, models.AvatarStatusCompleted)

	// failed with retries left but no schedule yet: due immediately
	unscheduled := fakeEmailRequest(t, db, avatar.ID)
	setFailedState(t, db, unscheduled.ID, 1, nil)

	batch, err := repo.FetchEligibleBatch(50, true)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, unscheduled.ID, batch[0].ID)
}

func TestFetchEligibleBatchFIFOAndLimit(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	repo := NewRepository(db)
	avatar := test.FakeAvatarRequest(db, models.AvatarStatusCompleted)

	first := fakeEmailRequest(t, db, avatar.ID)
	second := fakeEmailRequest(t, db, avatar.ID)
	fakeEmailRequest(t, db, avatar.ID)

	batch, err := repo.FetchEligibleBatch(2, true)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, first.ID, batch[0].ID)
	assert.Equal(t, second.ID, batch[1].ID)
}

func TestMarkSentRecordsTimestampAndMessageID(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	repo := NewRepository(db)
	avatar := test.FakeAvatarRequest(db, models.AvatarStatusCompleted)
	emailRequest := fakeEmailRequest(t, db, avatar.ID)

	require.NoError(t, repo.MarkSending(emailRequest.ID))
	row, err := repo.GetStatus(emailRequest.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmailStatusSending, row.Status)

	require.NoError(t, repo.MarkSent(emailRequest.ID, "<abc123@smtp.example.com>"))
	row, err = repo.GetStatus(emailRequest.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmailStatusSent, row.Status)
	require.NotNil(t, row.SentAt)
	assert.WithinDuration(t, time.Now(), *row.SentAt, time.Minute)
	require.NotNil(t, row.SMTPMessageID)
	assert.Equal(t, "<abc123@smtp.example.com>", *row.SMTPMessageID)
}

func TestMarkFailedSchedulesRetryWithBackoff(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	repo := NewRepository(db)
	avatar := test.FakeAvatarRequest(db, models.AvatarStatusCompleted)
	emailRequest := fakeEmailRequest(t, db, avatar.ID)

	require.NoError(t, repo.MarkFailed(emailRequest.ID, "SMTP send failed: connection refused", models.EmailErrorSMTPSendFailed))

	row, err := repo.GetStatus(emailRequest.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmailStatusFailed, row.Status)
	assert.Equal(t, 1, row.RetryCount)
	require.NotNil(t, row.ErrorCode)
	assert.Equal(t, models.EmailErrorSMTPSendFailed, *row.ErrorCode)
	require.NotNil(t, row.ErrorMessage)
	assert.Contains(t, *row.ErrorMessage, "connection refused")
	require.NotNil(t, row.NextRetryAt)
	assert.WithinDuration(t, time.Now().Add(BackoffDelay(1)), *row.NextRetryAt, time.Minute)
}

func TestMarkFailedSecondFailureDoublesDelay(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	repo := NewRepository(db)
	avatar := test.FakeAvatarRequest(db, models.AvatarStatusCompleted)
	emailRequest := fakeEmailRequest(t, db, avatar.ID)
	setFailedState(t, db, emailRequest.ID, 1, nil)

	require.NoError(t, repo.MarkFailed(emailRequest.ID, "SMTP send failed: timeout", models.EmailErrorSMTPSendFailed))

	row, err := repo.GetStatus(emailRequest.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, row.RetryCount)
	require.NotNil(t, row.NextRetryAt)
	assert.WithinDuration(t, time.Now().Add(BackoffDelay(2)), *row.NextRetryAt, time.Minute)
	assert.Equal(t, 2*BackoffDelay(1), BackoffDelay(2))
}

func TestMarkFailedExhaustsRetries(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	repo := NewRepository(db)
	avatar := test.FakeAvatarRequest(db, models.AvatarStatusCompleted)
	emailRequest := fakeEmailRequest(t, db, avatar.ID)
	setFailedState(t, db, emailRequest.ID, 2, timePtr(time.Now().UTC().Add(-time.Minute)))

	require.NoError(t, repo.MarkFailed(emailRequest.ID, "SMTP send failed: rejected", models.EmailErrorSMTPSendFailed))

	row, err := repo.GetStatus(emailRequest.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmailStatusFailed, row.Status)
	assert.Equal(t, 3, row.RetryCount)
	assert.Nil(t, row.NextRetryAt)

	// no longer eligible, even with retries included
	batch, err := repo.FetchEligibleBatch(50, true)
	require.NoError(t, err)
	assert.Len(t, batch, 0)

	// a further failure must not push the count past the cap
	require.NoError(t, repo.MarkFailed(emailRequest.ID, "SMTP send failed: rejected", models.EmailErrorSMTPSendFailed))
	row, err = repo.GetStatus(emailRequest.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, row.RetryCount)
	assert.Nil(t, row.NextRetryAt)
}

func TestMarkAvatarEmailRequested(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	repo := NewRepository(db)
	avatar := test.FakeAvatarRequest(db, models.AvatarStatusCompleted)

	require.NoError(t, repo.MarkAvatarEmailRequested(avatar.ID))

	var updated models.AvatarRequest
	require.NoError(t, db.First(&updated, avatar.ID).Error)
	assert.True(t, updated.EmailRequested)
	require.NotNil(t, updated.EmailRequestTime)
	assert.WithinDuration(t, time.Now(), *updated.EmailRequestTime, time.Minute)
}

func TestGetStatistics(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	repo := NewRepository(db)
	avatar := test.FakeAvatarRequest(db, models.AvatarStatusCompleted)

	sentOne := fakeEmailRequest(t, db, avatar.ID)
	require.NoError(t, repo.MarkSent(sentOne.ID, "<one@example.com>"))
	sentTwo := fakeEmailRequest(t, db, avatar.ID)
	require.NoError(t, repo.MarkSent(sentTwo.ID, "<two@example.com>"))

	fakeEmailRequest(t, db, avatar.ID)

	retrying := fakeEmailRequest(t, db, avatar.ID)
	setFailedState(t, db, retrying.ID, 1, timePtr(time.Now().UTC().Add(time.Hour)))

	exhausted := fakeEmailRequest(t, db, avatar.ID)
	setFailedState(t, db, exhausted.ID, 3, nil)

	stats, err := repo.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(2), stats.Sent)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Retrying)
	assert.InDelta(t, 0.4, stats.SuccessRate, 0.0001)
}

func TestGetStatisticsEmpty(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	repo := NewRepository(db)

	stats, err := repo.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
	assert.Equal(t, float64(0), stats.SuccessRate)
}
