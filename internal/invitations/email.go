package invitations

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/wondershark/backend/pkg/mailer"
)

//go:embed templates/*
var templatesFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templatesFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templatesFS, "templates/*.txt"))
)

// ExpiryLayout formats expiry timestamps for people.
const ExpiryLayout = "January 2, 2006 at 3:04 PM MST"

// FormatExpiry renders t in UTC with ExpiryLayout.
func FormatExpiry(t time.Time) string {
	return t.UTC().Format(ExpiryLayout)
}

type emailData struct {
	Name       string
	AgencyName string
	AcceptURL  string
	ExpiresAt  string
	Resend     bool
}

// RenderEmail builds the invitation message for n.
func RenderEmail(n Notification) (mailer.Message, error) {
	data := emailData{
		Name:       n.Invitation.Name,
		AgencyName: n.AgencyName,
		AcceptURL:  n.AcceptURL,
		ExpiresAt:  FormatExpiry(n.Invitation.ExpiresAt),
		Resend:     n.Resend,
	}
	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, "invitation.html", data); err != nil {
		return mailer.Message{}, err
	}
	if err := textTemplates.ExecuteTemplate(&text, "invitation.txt", data); err != nil {
		return mailer.Message{}, err
	}
	subject := "You have been invited to join " + n.AgencyName + " on WonderShark"
	if n.Resend {
		subject = "Reminder: your invitation to join " + n.AgencyName
	}
	return mailer.Message{
		ToName:    n.Invitation.Name,
		ToAddress: n.Invitation.Email,
		Subject:   subject,
		HTML:      html.String(),
		Text:      text.String(),
	}, nil
}
