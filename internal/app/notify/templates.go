package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

var verificationTmpl = template.Must(template.New("verification").Parse(
	`Hi {{.Username}},

Welcome! Please verify your email address by opening the link below:

{{.Link}}

The link expires in {{.TTL}}. If you did not create this account, you can
ignore this mail.
`))

var passwordResetTmpl = template.Must(template.New("passwordReset").Parse(
	`Hi {{.Username}},

We received a request to reset the password for your account. Open the link
below to choose a new password:

{{.Link}}

The link expires in {{.TTL}}. If you did not request a reset, you can ignore
this mail and your password will stay unchanged.
`))

type linkData struct {
	Username string
	Link     string
	TTL      string
}

func VerificationMail(to, username, link, ttl string) (Message, error) {
	body, err := renderTemplate(verificationTmpl, linkData{Username: username, Link: link, TTL: ttl})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Please verify your email", Body: body}, nil
}

func PasswordResetMail(to, username, link, ttl string) (Message, error) {
	body, err := renderTemplate(passwordResetTmpl, linkData{Username: username, Link: link, TTL: ttl})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Password reset request", Body: body}, nil
}

func renderTemplate(tmpl *template.Template, data linkData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render mail template %q: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
