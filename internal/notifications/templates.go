package notifications

import (
	"fmt"
	"net/url"
	"strings"
)

type Message struct {
	Subject string
	HTML    string
	Text    string
	Link    string
}

// Links builds the frontend URLs embedded in account emails.
type Links struct {
	FrontendURL string
	AppName     string
}

func (l Links) base() string {
	return strings.TrimRight(l.FrontendURL, "/")
}

func (l Links) appName() string {
	if l.AppName == "" {
		return "Doctor Directory"
	}
	return l.AppName
}

func (l Links) Verification(token string) Message {
	link := l.base() + "/verify-email?token=" + url.QueryEscape(token)
	name := l.appName()

	return Message{
		Subject: "Please verify your email for " + name,
		HTML: fmt.Sprintf(`<h2>Welcome to %s</h2>
<p>Thank you for registering. Please verify your email by clicking the link below:</p>
<a href="%s" target="_blank" rel="noopener noreferrer">Verify Email</a>
<p>This link will expire in 24 hours.</p>`, name, link),
		Text: fmt.Sprintf("Welcome to %s.\n\nVerify your email: %s\n\nThis link will expire in 24 hours.\n", name, link),
		Link: link,
	}
}

func (l Links) PasswordReset(token string) Message {
	link := l.base() + "/user/reset-password/" + url.PathEscape(token)
	name := l.appName()

	return Message{
		Subject: "Reset Your Password - " + name,
		HTML: fmt.Sprintf(`<h2>Password Reset Request</h2>
<p>You requested a password reset. Click the link below to set a new password:</p>
<a href="%s" target="_blank">Reset Password</a>
<p>This link will expire in 1 hour.</p>
<p>If you did not request this, you can safely ignore this email.</p>`, link),
		Text: fmt.Sprintf("Reset your password: %s\n\nThis link will expire in 1 hour. If you did not request this, ignore this email.\n", link),
		Link: link,
	}
}
