// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

//go:embed templates/*
var templateFS embed.FS

// RenderedEmail holds both HTML and text versions of a rendered email
type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

// TemplateSet holds HTML and text versions of a template
type TemplateSet struct {
	HTML *template.Template
	Text *texttemplate.Template
}

// deadLetterAlertData is what the alert templates render.
type deadLetterAlertData struct {
	models.DeadLetterAlert
	SentAt time.Time
}

func templateFuncs() map[string]any {
	return map[string]any{
		"upper":      strings.ToUpper,
		"formatTime": formatTime,
	}
}

// loadTemplateSet parses the HTML and text variants of a template from the embedded files
func loadTemplateSet(name string) (TemplateSet, error) {
	htmlPath := "templates/" + name + ".html"
	textPath := "templates/" + name + ".txt"

	html, err := template.New(name + ".html").Funcs(templateFuncs()).ParseFS(templateFS, htmlPath)
	if err != nil {
		return TemplateSet{}, fmt.Errorf("failed to parse %s template: %w", htmlPath, err)
	}
	text, err := texttemplate.New(name + ".txt").Funcs(templateFuncs()).ParseFS(templateFS, textPath)
	if err != nil {
		return TemplateSet{}, fmt.Errorf("failed to parse %s template: %w", textPath, err)
	}

	return TemplateSet{HTML: html, Text: text}, nil
}

// render executes both variants of set with data
func (set TemplateSet) render(data any) (*RenderedEmail, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := set.HTML.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := set.Text.Execute(&textBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}
	return &RenderedEmail{HTML: htmlBuf.String(), Text: textBuf.String()}, nil
}

// formatTime formats a time for display in emails
func formatTime(t time.Time) string {
	return t.UTC().Format("Monday, January 2, 2006 at 3:04 PM MST")
}
