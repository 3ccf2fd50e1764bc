package notifier

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

const timeLayout = "2006-01-02 15:04:05 MST"

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *template.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	Title         string
	AlertName     string
	ProjectName   string
	Severity      string
	SeverityColor string
	Metric        string
	Summary       string
	ActualValue   string
	Threshold     string
	Operator      string
	State         string
	PreviousState string
	Resolved      bool
	Timestamp     string
	DashboardURL  string
	Test          bool
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	htmlTmpl, err := template.New("alert.html").Funcs(funcs).ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("alert.txt").Funcs(funcs).ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// severityColor returns the color for a severity level.
func severityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#d32f2f" // red
	case models.SeverityHigh:
		return "#f57c00" // orange
	case models.SeverityMedium:
		return "#fbc02d" // yellow
	case models.SeverityLow:
		return "#388e3c" // green
	default:
		return "#757575" // gray
	}
}

// PayloadToTemplateData converts a payload to template data.
func PayloadToTemplateData(p *Payload) TemplateData {
	color := severityColor(p.Severity)
	if p.Resolved() {
		color = "#388e3c"
	}
	return TemplateData{
		Title:         p.Title(),
		AlertName:     p.AlertName,
		ProjectName:   p.ProjectName,
		Severity:      string(p.Severity),
		SeverityColor: color,
		Metric:        metricLabel(p.MetricType),
		Summary:       p.Summary(),
		ActualValue:   formatValue(p.MetricType, p.ActualValue),
		Threshold:     fmt.Sprintf("%s %s", operatorSymbol(p.Operator), formatValue(p.MetricType, p.Threshold)),
		Operator:      string(p.Operator),
		State:         string(p.State),
		PreviousState: string(p.PreviousState),
		Resolved:      p.Resolved(),
		Timestamp:     p.TriggeredAt.Format(timeLayout),
		DashboardURL:  p.DashboardURL,
		Test:          p.Test,
	}
}
