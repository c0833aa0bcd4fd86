package mail

import (
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

const appName = "ShelfCircle"

var subjects = map[Kind]string{
	KindPasswordResetRequest: "Password change requested - " + appName,
	KindPasswordChanged:      "Password changed successfully - " + appName,
	KindEmailChangeRequest:   "Confirm your email change - " + appName,
	KindEmailChanged:         "Email address changed successfully - " + appName,
}

var textBodies = map[Kind]string{
	KindPasswordResetRequest: `Hello {{.Username}},

We received a request to change your password. Open the link below to choose
a new one. The link is valid for 24 hours and can be used only once.

{{.ActionURL}}

If you did not request this change, you can safely ignore this message.

- The {{.App}} team`,

	KindPasswordChanged: `Hello {{.Username}},

Your password was changed successfully. If you did not make this change,
request a password reset immediately and consider logging out of all devices
from your profile.

- The {{.App}} team`,

	KindEmailChangeRequest: `Hello {{.Username}},

We received a request to use this address ({{.NewEmail}}) for your account.
Open the link below to confirm. The link is valid for 24 hours and can be
used only once.

{{.ActionURL}}

If you did not request this change, you can safely ignore this message.

- The {{.App}} team`,

	KindEmailChanged: `Hello {{.Username}},

The email address of your account was changed from {{.OldEmail}} to
{{.NewEmail}}. If you did not make this change, contact support.

- The {{.App}} team`,
}

var htmlBodies = map[Kind]string{
	KindPasswordResetRequest: `<html><body>
<p>Hello {{.Username}},</p>
<p>We received a request to change your password. Click the button below to
choose a new one. The link is valid for <strong>24 hours</strong> and can be
used only once.</p>
<p><a href="{{.ActionURL}}">Change my password</a></p>
<p>If the button does not work, copy this address into your browser:<br>
{{.ActionURL}}</p>
<p>If you did not request this change, you can safely ignore this message.</p>
<p>- The {{.App}} team</p>
</body></html>`,

	KindPasswordChanged: `<html><body>
<p>Hello {{.Username}},</p>
<p>Your password was changed successfully. If you did not make this change,
request a password reset immediately and consider logging out of all devices
from your profile.</p>
<p>- The {{.App}} team</p>
</body></html>`,

	KindEmailChangeRequest: `<html><body>
<p>Hello {{.Username}},</p>
<p>We received a request to use this address ({{.NewEmail}}) for your
account. Click the button below to confirm. The link is valid for
<strong>24 hours</strong> and can be used only once.</p>
<p><a href="{{.ActionURL}}">Confirm my new email</a></p>
<p>If the button does not work, copy this address into your browser:<br>
{{.ActionURL}}</p>
<p>If you did not request this change, you can safely ignore this message.</p>
<p>- The {{.App}} team</p>
</body></html>`,

	KindEmailChanged: `<html><body>
<p>Hello {{.Username}},</p>
<p>The email address of your account was changed from {{.OldEmail}} to
{{.NewEmail}}. If you did not make this change, contact support.</p>
<p>- The {{.App}} team</p>
</body></html>`,
}

type templateContext struct {
	Data
	App string
}

func render(kind Kind, data Data) (subject, text, html string, err error) {
	subject, ok := subjects[kind]
	if !ok {
		return "", "", "", fmt.Errorf("unknown mail kind %q", kind)
	}

	ctx := templateContext{Data: data, App: appName}

	text, err = renderText(string(kind)+"-text", textBodies[kind], ctx)
	if err != nil {
		return "", "", "", err
	}
	html, err = renderHTML(string(kind)+"-html", htmlBodies[kind], ctx)
	if err != nil {
		return "", "", "", err
	}
	return subject, text, html, nil
}

func renderText(name, body string, ctx templateContext) (string, error) {
	tmpl, err := texttemplate.New(name).Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse mail template %s: %w", name, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx); err != nil {
		return "", fmt.Errorf("render mail template %s: %w", name, err)
	}
	return sb.String(), nil
}

func renderHTML(name, body string, ctx templateContext) (string, error) {
	tmpl, err := htmltemplate.New(name).Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse mail template %s: %w", name, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx); err != nil {
		return "", fmt.Errorf("render mail template %s: %w", name, err)
	}
	return sb.String(), nil
}
