package emailqueue

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/avatar_email.html"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/avatar_email.txt"))
)

type EmailTemplateData struct {
	Name      string
	Superhero string
	Color     string
	Car       string
}

type RenderedEmail struct {
	Subject string
	Html    string
	Text    string
}

// RenderAvatarEmail produces the subject and both bodies for the delivery
// email. The HTML body references the inline image as cid:avatar.
func RenderAvatarEmail(data EmailTemplateData) (*RenderedEmail, error) {
	var htmlBuf bytes.Buffer
	if err := htmlTemplate.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML body: %v", err)
	}

	var textBuf bytes.Buffer
	if err := textTemplate.Execute(&textBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render text body: %v", err)
	}

	return &RenderedEmail{
		Subject: fmt.Sprintf("Your %s Avatar is Ready! 🦸", data.Superhero),
		Html:    htmlBuf.String(),
		Text:    textBuf.String(),
	}, nil
}
