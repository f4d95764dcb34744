package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Cash Discrepancy {{.SeverityLabel}}]
Station: {{.Station}}
Stage: {{.Stage}}{{ if .ReferenceType }} ({{.ReferenceType}}){{ end }}
Reference: {{.ReferenceID}}
Expected: {{.Expected}}
Actual: {{.Actual}}
Difference: {{.Discrepancy}} ({{.Percent}}%)
Reported By: {{.Actor}}
Time: {{.OccurredAt}}
Suggestion: {{.Suggestion}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Station       string
	StationID     string
	TenantID      string
	Stage         string
	ReferenceID   string
	ReferenceType string
	Actor         string
	Expected      string
	Actual        string
	Discrepancy   string
	Percent       string
	Severity      string
	SeverityLabel string
	OccurredAt    string
	Suggestion    string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("discrepancy-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("notify template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
