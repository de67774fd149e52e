package services

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	mail "github.com/wneessen/go-mail"
)

const smtpSendTimeout = 30 * time.Second

// AvatarEmailIn carries everything a single send needs. The image bytes go out
// twice: inline (referenced from the HTML body by content id) and as a regular
// attachment the recipient can download.
type AvatarEmailIn struct {
	ToAddress       string
	ToName          string
	Subject         string
	HtmlBody        string
	TextBody        string
	InlineImage     []byte
	AttachmentImage []byte
	AvatarRequestID uint
}

type MailerProvider interface {
	// returns the provider-assigned message id on success
	SendAvatarEmail(ctx context.Context, in AvatarEmailIn) (string, error)
}

type BrevoMailer struct {
	FromAddress string
	FromName    string
	ReplyTo     string
}

func NewBrevoMailer() *BrevoMailer {
	fromAddress := GetEnv("EMAIL_FROM_ADDRESS", "avatars@innovationgarage.com")
	return &BrevoMailer{
		FromAddress: fromAddress,
		FromName:    GetEnv("EMAIL_FROM_NAME", "Innovation Garage Superhero Creator"),
		ReplyTo:     GetEnv("EMAIL_REPLY_TO", fromAddress),
	}
}

func (mailer *BrevoMailer) SendAvatarEmail(ctx context.Context, in AvatarEmailIn) (string, error) {
	port, err := strconv.Atoi(GetEnv("BREVO_SMTP_PORT", "587"))
	if err != nil {
		return "", fmt.Errorf("invalid BREVO_SMTP_PORT: %v", err)
	}
	client, err := mail.NewClient(
		GetEnv("BREVO_SMTP_SERVER", "smtp-relay.brevo.com"),
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(GetEnv("BREVO_SMTP_LOGIN", "")),
		mail.WithPassword(GetEnv("BREVO_SMTP_PASSWORD", "")),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(smtpSendTimeout),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create SMTP client: %v", err)
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(mailer.FromName, mailer.FromAddress); err != nil {
		return "", fmt.Errorf("invalid from address: %v", err)
	}
	if err := msg.AddToFormat(in.ToName, in.ToAddress); err != nil {
		return "", fmt.Errorf("invalid recipient address: %v", err)
	}
	if err := msg.ReplyTo(mailer.ReplyTo); err != nil {
		return "", fmt.Errorf("invalid reply-to address: %v", err)
	}
	msg.Subject(in.Subject)
	// tracking headers, same as the kiosk web flow emits
	msg.SetGenHeader("X-Avatar-Request-ID", fmt.Sprintf("%d", in.AvatarRequestID))
	msg.SetGenHeader("X-Mailer", "Innovation Garage Avatar Generator")
	msg.SetMessageID()

	msg.SetBodyString(mail.TypeTextPlain, in.TextBody)
	msg.AddAlternativeString(mail.TypeTextHTML, in.HtmlBody)

	msg.EmbedReader("superhero_avatar.png", bytes.NewReader(in.InlineImage),
		mail.WithFileContentID("avatar"))
	msg.AttachReader("superhero_avatar.png", bytes.NewReader(in.AttachmentImage))

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", err
	}

	messageID := msg.GetGenHeader(mail.HeaderMessageID)
	if len(messageID) == 0 || messageID[0] == "" {
		return fmt.Sprintf("avatar-%d", time.Now().UnixNano()), nil
	}
	return messageID[0], nil
}
