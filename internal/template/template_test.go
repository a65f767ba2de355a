package template

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func emailContext() EmailContext {
	return EmailContext{
		SSID:     "Guest",
		PSK:      "Sunshine#4x",
		Date:     time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC),
		Networks: []string{"Org1 / HQ", "Org1 / Branch"},
		Images:   map[string]string{"qrcode.png": "qrcodepng"},
	}
}

func TestDefaultRenders(t *testing.T) {
	set, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	text, err := set.RenderText(emailContext())
	if err != nil {
		t.Fatalf("RenderText: %v", err)
	}
	for _, want := range []string{"Guest", "Sunshine#4x", "05/03/2024", "Org1 / Branch"} {
		if !strings.Contains(text, want) {
			t.Errorf("text body missing %q:\n%s", want, text)
		}
	}

	html, err := set.RenderHTML(emailContext())
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if !strings.Contains(html, `src="cid:qrcodepng"`) {
		t.Errorf("html body missing QR reference:\n%s", html)
	}
	if !strings.Contains(html, "GUEST wireless passphrase changed") {
		t.Errorf("html heading not upper-cased:\n%s", html)
	}
}

func TestDryRunNotice(t *testing.T) {
	set, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	const notice = "DRYRUN: this change was not applied."

	for _, dryRun := range []bool{false, true} {
		data := emailContext()
		data.DryRun = dryRun

		text, err := set.RenderText(data)
		if err != nil {
			t.Fatal(err)
		}
		html, err := set.RenderHTML(data)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(text, notice) != dryRun || strings.Contains(html, notice) != dryRun {
			t.Errorf("dryRun=%v: notice shown in text=%v html=%v", dryRun,
				strings.Contains(text, notice), strings.Contains(html, notice))
		}
	}
}

func TestHTMLOmitsQRWithoutImage(t *testing.T) {
	set, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	ctx := emailContext()
	ctx.Images = nil

	html, err := set.RenderHTML(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "<img") {
		t.Errorf("unexpected image tag:\n%s", html)
	}
}

func TestHTMLEscapesValues(t *testing.T) {
	set, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	ctx := emailContext()
	ctx.PSK = "a<b>&c"

	html, err := set.RenderHTML(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "a<b>&c") || !strings.Contains(html, "a&lt;b&gt;&amp;c") {
		t.Errorf("passphrase not escaped:\n%s", html)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(TextTemplateName, "{{.SSID | lower}} {{title \"new key\"}}")
	write(HTMLTemplateName, `<img src="{{cid "logo.gif"}}">`)
	write("logo.gif", "GIF89a")
	write("notes.md", "ignored")

	set, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	images := set.Images()
	if len(images) != 1 || images[0].Name != "logo.gif" || images[0].ContentID != "logogif" {
		t.Errorf("images = %+v", images)
	}

	text, err := set.RenderText(EmailContext{SSID: "GUEST"})
	if err != nil {
		t.Fatal(err)
	}
	if text != "guest New Key" {
		t.Errorf("text = %q", text)
	}

	html, err := set.RenderHTML(EmailContext{})
	if err != nil {
		t.Fatal(err)
	}
	if html != `<img src="cid:logogif">` {
		t.Errorf("html = %q", html)
	}
}

func TestValidateDirMissingTemplate(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, TextTemplateName), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), HTMLTemplateName) {
		t.Errorf("ValidateDir error = %v", err)
	}
}

func TestValidateDirParseError(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, TextTemplateName), []byte("{{.SSID"), 0o644)
	os.WriteFile(filepath.Join(dir, HTMLTemplateName), []byte("ok"), 0o644)

	if err := ValidateDir(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestWriteDefaultsSuffixes(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "templates", "psk")

	tests := []string{"default", "default2", "default3"}
	for _, want := range tests {
		got, err := WriteDefaults(parent)
		if err != nil {
			t.Fatalf("WriteDefaults: %v", err)
		}
		if filepath.Base(got) != want {
			t.Errorf("dir = %s, want %s", got, want)
		}
		if err := ValidateDir(got); err != nil {
			t.Errorf("written set invalid: %v", err)
		}
	}
}

func TestContentID(t *testing.T) {
	tests := map[string]string{
		"qrcode.png":  "qrcodepng",
		"logo.v2.jpg": "logov2jpg",
		"plain":       "plain",
	}
	for in, want := range tests {
		if got := ContentID(in); got != want {
			t.Errorf("ContentID(%q) = %q, want %q", in, got, want)
		}
	}
}
