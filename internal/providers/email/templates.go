package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// PublishData feeds the post-publish notification template.
type PublishData struct {
	PageTitle       string
	PostTitle       string
	PostHTML        template.HTML
	PostURL         string
	UnsubscribeURL  string
	PhysicalAddress string
}

type WelcomeData struct {
	PageTitle string
	PageURL   string
}

type MagicLinkData struct {
	PageTitle string
	LinkURL   string
}

var publishTmpl = template.Must(template.New("publish").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1a1a1a; max-width: 600px; margin: 0 auto;">
  <p style="color: #6b7280; font-size: 13px;">{{.PageTitle}}</p>
  <h1 style="font-size: 22px;">{{.PostTitle}}</h1>
  <div>{{.PostHTML}}</div>
  <p><a href="{{.PostURL}}">Read on the web</a></p>
  <hr style="border: none; border-top: 1px solid #e5e7eb;">
  <p style="color: #9ca3af; font-size: 12px;">
    {{.PhysicalAddress}}<br>
    <a href="{{.UnsubscribeURL}}" style="color: #9ca3af;">Unsubscribe</a>
  </p>
</body>
</html>`))

var welcomeTmpl = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1a1a1a; max-width: 600px; margin: 0 auto;">
  <h1 style="font-size: 22px;">{{.PageTitle}} is live</h1>
  <p>Your page is set up and ready to share updates with your audience.</p>
  <p><a href="{{.PageURL}}">View your page</a></p>
</body>
</html>`))

var magicLinkTmpl = template.Must(template.New("magic_link").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1a1a1a; max-width: 600px; margin: 0 auto;">
  <h1 style="font-size: 22px;">Confirm your subscription</h1>
  <p>Click the link below to confirm your subscription to {{.PageTitle}}.</p>
  <p><a href="{{.LinkURL}}">Confirm subscription</a></p>
  <p style="color: #9ca3af; font-size: 12px;">If you did not request this, you can ignore this email.</p>
</body>
</html>`))

func RenderPublish(data PublishData) (string, error) {
	return render(publishTmpl, data)
}

func RenderWelcome(data WelcomeData) (string, error) {
	return render(welcomeTmpl, data)
}

func RenderMagicLink(data MagicLinkData) (string, error) {
	return render(magicLinkTmpl, data)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", t.Name(), err)
	}
	return buf.String(), nil
}
