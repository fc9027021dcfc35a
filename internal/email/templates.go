package email

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"
)

const (
	TemplatePickupScheduled = "pickup_scheduled"
	TemplatePickupRejected  = "pickup_rejected"
	TemplateOrderStatus     = "order_status"
)

// NotificationInfo is the data every notification template renders from.
type NotificationInfo struct {
	CustomerName  string
	CustomerEmail string
	Reference     string
	ServiceType   string
	Status        string
	Note          string
	PreferredSlot time.Time
	Barcode       string
	TrackingURL   string
}

type EmailTemplate struct {
	Subject string
	HTML    string
	Text    string
}

var builtinTemplates = map[string]EmailTemplate{
	TemplatePickupScheduled: {
		Subject: "Pickup request received - {{.Reference}}",
		HTML:    pickupScheduledHTML,
		Text:    pickupScheduledText,
	},
	TemplatePickupRejected: {
		Subject: "Update on your pickup request - {{.Reference}}",
		HTML:    pickupRejectedHTML,
		Text:    pickupRejectedText,
	},
	TemplateOrderStatus: {
		Subject: "{{.Reference}} is now {{humanize .Status}}",
		HTML:    orderStatusHTML,
		Text:    orderStatusText,
	},
}

type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("January 2, 2006 at 3:04 PM")
		},
		"humanize": func(s string) string {
			return strings.ReplaceAll(s, "_", " ")
		},
	}

	tmpl := template.New("email").Funcs(funcMap)
	for key, t := range builtinTemplates {
		if _, err := tmpl.New(key + "_subject").Parse(t.Subject); err != nil {
			return nil, fmt.Errorf("failed to parse subject template %s: %w", key, err)
		}
		if _, err := tmpl.New(key + "_html").Parse(t.HTML); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", key, err)
		}
		if _, err := tmpl.New(key + "_text").Parse(t.Text); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", key, err)
		}
	}

	return &Renderer{templates: tmpl}, nil
}

// Render produces the email for templateName addressed to the customer in data.
func (r *Renderer) Render(ctx context.Context, templateName string, data *NotificationInfo) (*Email, error) {
	if _, ok := builtinTemplates[templateName]; !ok {
		return nil, fmt.Errorf("unknown email template %q", templateName)
	}
	if data == nil {
		return nil, fmt.Errorf("template data is required")
	}

	var subjectBuf, htmlBuf, textBuf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&subjectBuf, templateName+"_subject", data); err != nil {
		return nil, fmt.Errorf("failed to render subject template: %w", err)
	}
	if err := r.templates.ExecuteTemplate(&htmlBuf, templateName+"_html", data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := r.templates.ExecuteTemplate(&textBuf, templateName+"_text", data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: strings.TrimSpace(subjectBuf.String()),
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

const pickupScheduledText = `Hi {{.CustomerName}},

We've received your {{.ServiceType}} pickup request ({{.Reference}}).
{{if not .PreferredSlot.IsZero}}Preferred slot: {{formatDate .PreferredSlot}}
{{end}}
Our team will confirm the pickup shortly.

Thank you for choosing ReStitch!
`

const pickupScheduledHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Pickup request received</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #0f766e;">Pickup request received</h1>
  <p>Hi {{.CustomerName}},</p>
  <p>We've received your <strong>{{.ServiceType}}</strong> pickup request ({{.Reference}}).</p>
  {{if not .PreferredSlot.IsZero}}<p><strong>Preferred slot:</strong> {{formatDate .PreferredSlot}}</p>{{end}}
  <p>Our team will confirm the pickup shortly.</p>
  <p style="color: #6b7280; font-size: 14px;">Thank you for choosing ReStitch!</p>
</body>
</html>
`

const pickupRejectedText = `Hi {{.CustomerName}},

Unfortunately we couldn't accept your pickup request ({{.Reference}}).
{{if .Note}}
Reason: {{.Note}}
{{end}}
You're welcome to schedule a new pickup at any time.

The ReStitch team
`

const pickupRejectedHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Pickup request update</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #b91c1c;">Pickup request update</h1>
  <p>Hi {{.CustomerName}},</p>
  <p>Unfortunately we couldn't accept your pickup request ({{.Reference}}).</p>
  {{if .Note}}<p><strong>Reason:</strong> {{.Note}}</p>{{end}}
  <p>You're welcome to schedule a new pickup at any time.</p>
  <p style="color: #6b7280; font-size: 14px;">The ReStitch team</p>
</body>
</html>
`

const orderStatusText = `Hi {{.CustomerName}},

{{.Reference}} ({{.ServiceType}}) is now: {{humanize .Status}}.
{{if .Note}}
{{.Note}}
{{end}}{{if .Barcode}}
Tracking code: {{.Barcode}}
{{if .TrackingURL}}Track your order: {{.TrackingURL}}
{{end}}{{end}}
The ReStitch team
`

const orderStatusHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Order update</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #0f766e;">Order update</h1>
  <p>Hi {{.CustomerName}},</p>
  <p>{{.Reference}} ({{.ServiceType}}) is now <strong>{{humanize .Status}}</strong>.</p>
  {{if .Note}}<p>{{.Note}}</p>{{end}}
  {{if .Barcode}}
  <p><strong>Tracking code:</strong> {{.Barcode}}</p>
  {{if .TrackingURL}}<p><a href="{{.TrackingURL}}" style="display: inline-block; background: #0f766e; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px;">Track your order</a></p>{{end}}
  {{end}}
  <p style="color: #6b7280; font-size: 14px;">The ReStitch team</p>
</body>
</html>
`
