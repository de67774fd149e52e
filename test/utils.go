package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"

	"avatarmaxapi/models"
	"avatarmaxapi/services"

	"gorm.io/gorm"
)

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {

	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func StringPtr(s string) *string {
	return &s
}

// PNGBytes renders a flat-color PNG, enough for the resize and overlay paths.
func PNGBytes(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

// FakeAvatarRequest inserts an avatar request in the given status. Completed
// requests get a generated image key so email delivery paths can resolve it.
func FakeAvatarRequest(db *gorm.DB, status string) *models.AvatarRequest {
	avatarRequest := &models.AvatarRequest{
		Name:      "Taylor",
		Email:     "taylor@example.com",
		Superhero: "Batman",
		Car:       "Mustang",
		Color:     "red",
		Status:    status,
	}
	if status == models.AvatarStatusCompleted {
		avatarRequest.GeneratedImagePath = StringPtr(fmt.Sprintf("avatars/avatar-test-%v.png", status))
		avatarRequest.OriginalImagePath = StringPtr("uploads/original-test.png")
	}
	db.Create(avatarRequest)
	return avatarRequest
}

type AWSProviderMock struct {
	MockUrl string
	// Objects maps storage keys to file contents for Exists and ReadBytes.
	Objects    map[string][]byte
	StorageErr error
}

func (awsService *AWSProviderMock) InitPresignClient(ctx context.Context) error {
	return nil
}

func (awsService *AWSProviderMock) PresignLink(ctx context.Context, bucketName string, fileName string) (string, error) {

	return fmt.Sprintf("https://fakebucketurl.com/%s", fileName), nil
}

func (awsService *AWSProviderMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	if awsService.MockUrl != "" {
		return awsService.MockUrl, nil
	}
	return fmt.Sprintf("https://fakebucketurl.com/%s", fileKey), nil
}

func (awsService *AWSProviderMock) UploadToPresignedURL(ctx context.Context, bucketName, url string, fileContent []byte) (string, int, error) {
	if awsService.Objects == nil {
		awsService.Objects = map[string][]byte{}
	}
	awsService.Objects[url] = fileContent
	return url, 204, nil
}

func (awsService *AWSProviderMock) Exists(ctx context.Context, bucketName, fileKey string) (bool, error) {
	if awsService.StorageErr != nil {
		return false, awsService.StorageErr
	}
	_, ok := awsService.Objects[fileKey]
	return ok, nil
}

func (awsService *AWSProviderMock) ReadBytes(ctx context.Context, bucketName, fileKey string) ([]byte, error) {
	if awsService.StorageErr != nil {
		return nil, awsService.StorageErr
	}
	content, ok := awsService.Objects[fileKey]
	if !ok {
		return nil, fmt.Errorf("no such key %s", fileKey)
	}
	return content, nil
}

type MailerMock struct {
	SendErr   error
	MessageID string
	Sent      []services.AvatarEmailIn
}

func (m *MailerMock) SendAvatarEmail(ctx context.Context, in services.AvatarEmailIn) (string, error) {
	if m.SendErr != nil {
		return "", m.SendErr
	}
	m.Sent = append(m.Sent, in)
	if m.MessageID != "" {
		return m.MessageID, nil
	}
	return fmt.Sprintf("<mock-message-%v@example.com>", len(m.Sent)), nil
}

type GeneratorMock struct {
	MockUrl        string
	Err            error
	FailureMessage string
}

func (g GeneratorMock) GenerateAvatar(ctx context.Context, originalImage []byte, prompt string) (services.GenerationResult, error) {
	if g.Err != nil {
		return services.GenerationResult{}, g.Err
	}
	if g.FailureMessage != "" {
		return services.GenerationResult{ErrorMessage: g.FailureMessage}, nil
	}
	return services.GenerationResult{ImageURL: g.MockUrl}, nil
}

type ScorerMock struct {
	Err error
}

func (s ScorerMock) ScoreAvatar(ctx context.Context, avatarImage []byte, superhero string) (*services.QualityResult, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return &services.QualityResult{StyleScore: 8.5, Commentary: "Gotham approves of this look!"}, nil
}

type URLCacheMock struct {
	MockUrl string
}

func (c *URLCacheMock) GetReadURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", nil
	}
	if c.MockUrl != "" {
		return c.MockUrl, nil
	}
	return fmt.Sprintf("https://fakebucketurl.com/%s", objectKey), nil
}
