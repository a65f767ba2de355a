// Package template renders the PSK notification email from a template set.
//
// A template set is a directory holding templatetxt.tmpl (plain text body),
// templatehtml.tmpl (HTML body) and any number of png, bmp, jpg or gif images.
// Images are embedded in the email and referenced from HTML with
// {{cid "name.png"}}.
package template

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// TextTemplateName is the plain text body template
	TextTemplateName = "templatetxt.tmpl"
	// HTMLTemplateName is the HTML body template
	HTMLTemplateName = "templatehtml.tmpl"

	defaultRoot = "defaults/psk"
)

//go:embed defaults/psk/*
var defaults embed.FS

var imageExtensions = []string{".png", ".bmp", ".jpg", ".gif"}

// EmailContext provides data available in templates
type EmailContext struct {
	SSID     string
	PSK      string
	Date     time.Time
	Networks []string          // "organization / network" of every updated site
	Images   map[string]string // file name -> content id
	DryRun   bool              // the change was only planned
}

// Image is a picture shipped with a template set
type Image struct {
	Name      string
	ContentID string
	Data      []byte
}

// Set is a parsed template set
type Set struct {
	text   *texttemplate.Template
	html   *htmltemplate.Template
	images []Image
}

// Default returns the built-in template set
func Default() (*Set, error) {
	sub, err := fs.Sub(defaults, defaultRoot)
	if err != nil {
		return nil, err
	}
	return load(sub, "built-in")
}

// LoadDir parses the template set in dir. Both templates must exist.
func LoadDir(dir string) (*Set, error) {
	return load(os.DirFS(dir), dir)
}

// ValidateDir checks that dir holds both templates and that they parse
func ValidateDir(dir string) error {
	_, err := LoadDir(dir)
	return err
}

func load(fsys fs.FS, label string) (*Set, error) {
	for _, name := range []string{TextTemplateName, HTMLTemplateName} {
		if _, err := fs.Stat(fsys, name); err != nil {
			return nil, fmt.Errorf("template %s missing from %s (generate one with 'psktemplategen'): %w", name, label, err)
		}
	}

	textSource, err := fs.ReadFile(fsys, TextTemplateName)
	if err != nil {
		return nil, err
	}
	htmlSource, err := fs.ReadFile(fsys, HTMLTemplateName)
	if err != nil {
		return nil, err
	}

	set := &Set{}
	set.text, err = texttemplate.New(TextTemplateName).Funcs(texttemplate.FuncMap(templateFuncs())).Parse(string(textSource))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", TextTemplateName, err)
	}
	set.html, err = htmltemplate.New(HTMLTemplateName).Funcs(htmltemplate.FuncMap(templateFuncs())).Parse(string(htmlSource))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", HTMLTemplateName, err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !isImage(entry.Name()) {
			continue
		}
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading image %s: %w", entry.Name(), err)
		}
		set.images = append(set.images, Image{Name: entry.Name(), ContentID: ContentID(entry.Name()), Data: data})
	}

	return set, nil
}

func isImage(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, allowed := range imageExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// ContentID derives the MIME content id of an image file name: the name with
// dots removed
func ContentID(name string) string {
	return strings.ReplaceAll(name, ".", "")
}

// Images returns the images of the set
func (s *Set) Images() []Image {
	return s.images
}

// RenderText executes the plain text template
func (s *Set) RenderText(ctx EmailContext) (string, error) {
	var buf bytes.Buffer
	if err := s.text.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", TextTemplateName, err)
	}
	return buf.String(), nil
}

// RenderHTML executes the HTML template
func (s *Set) RenderHTML(ctx EmailContext) (string, error) {
	var buf bytes.Buffer
	if err := s.html.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", HTMLTemplateName, err)
	}
	return buf.String(), nil
}

// templateFuncs returns custom template functions
func templateFuncs() map[string]any {
	return map[string]any{
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
		"trim":      strings.TrimSpace,
		"replace":   strings.ReplaceAll,
		"contains":  strings.Contains,
		"hasPrefix": strings.HasPrefix,
		"hasSuffix": strings.HasSuffix,
		"join":      strings.Join,

		"title": func(s string) string {
			return cases.Title(language.English).String(s)
		},

		"formatDate": func(t time.Time) string {
			return t.Format("02/01/2006")
		},

		// cid yields the src value referencing an embedded image
		"cid": func(name string) htmltemplate.URL {
			return htmltemplate.URL("cid:" + ContentID(name))
		},

		"hasImage": func(images map[string]string, name string) bool {
			_, ok := images[name]
			return ok
		},
	}
}

// WriteDefaults copies the built-in set into parent/default, or
// parent/default2, parent/default3 and so on when that exists. It returns
// the directory written.
func WriteDefaults(parent string) (string, error) {
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", parent, err)
	}

	target := filepath.Join(parent, "default")
	for suffix := 2; ; suffix++ {
		err := os.Mkdir(target, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("creating %s: %w", target, err)
		}
		target = filepath.Join(parent, "default"+strconv.Itoa(suffix))
	}

	entries, err := fs.ReadDir(defaults, defaultRoot)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := fs.ReadFile(defaults, path.Join(defaultRoot, name))
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(target, name), data, 0o644); err != nil {
			return "", fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return target, nil
}
