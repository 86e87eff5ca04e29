package email

import (
	"html/template"
	"strings"
	"testing"
)

func TestRenderPublish(t *testing.T) {
	html, err := RenderPublish(PublishData{
		PageTitle:       "Acme Updates",
		PostTitle:       "v2.0 released",
		PostHTML:        template.HTML("<p>Big release.</p>"),
		PostURL:         "https://changes.page/acme/123",
		UnsubscribeURL:  "https://changes.page/unsubscribe?token=tok-1",
		PhysicalAddress: "1 Main St, Springfield",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"v2.0 released",
		"<p>Big release.</p>",
		"https://changes.page/acme/123",
		"https://changes.page/unsubscribe?token=tok-1",
		"1 Main St, Springfield",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered email missing %q", want)
		}
	}
}

func TestRenderPublishEscapesTitle(t *testing.T) {
	html, err := RenderPublish(PublishData{
		PageTitle: "Acme",
		PostTitle: "<script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatal("expected title to be escaped")
	}
}

func TestRenderWelcome(t *testing.T) {
	html, err := RenderWelcome(WelcomeData{
		PageTitle: "Acme Updates",
		PageURL:   "https://changes.page/acme",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "Acme Updates is live") {
		t.Fatal("rendered email missing headline")
	}
	if !strings.Contains(html, "https://changes.page/acme") {
		t.Fatal("rendered email missing page link")
	}
}

func TestRenderMagicLink(t *testing.T) {
	html, err := RenderMagicLink(MagicLinkData{
		PageTitle: "Acme Updates",
		LinkURL:   "https://changes.page/api/subscribers/verify?token=tok-1",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "https://changes.page/api/subscribers/verify?token=tok-1") {
		t.Fatal("rendered email missing confirmation link")
	}
}
