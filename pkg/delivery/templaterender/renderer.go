// Package templaterender renders message templates from a directory of
// template definition files. Each template is a JSON file named
// <templateID>.json holding subject, html and text template strings.
package templaterender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/hyperreach/cadence/pkg/models"
)

type templateDefinition struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Renderer resolves templates from templatesPath and renders them with
// text/template. Lead personalization data is supplied by the lead lookup,
// which may be nil when only the lead ID is available.
type Renderer struct {
	templatesPath string
	leads         LeadLookup
	logger        *slog.Logger
}

// LeadLookup resolves personalization data for a lead.
type LeadLookup interface {
	LeadData(ctx context.Context, leadID string) (map[string]any, error)
}

func NewRenderer(templatesPath string, leads LeadLookup, logger *slog.Logger) *Renderer {
	return &Renderer{
		templatesPath: templatesPath,
		leads:         leads,
		logger:        logger.With("module", "templaterender"),
	}
}

func (r *Renderer) Render(ctx context.Context, templateID, leadID string) (*models.RenderedContent, error) {
	definition, err := r.load(templateID)
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"lead_id": leadID,
		"env":     envVars(),
	}

	if r.leads != nil {
		leadData, err := r.leads.LeadData(ctx, leadID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve lead data for %s: %w", leadID, err)
		}

		data["lead"] = leadData
	}

	content := &models.RenderedContent{}

	if content.Subject, err = render(templateID+".subject", definition.Subject, data); err != nil {
		return nil, err
	}

	if content.HTML, err = render(templateID+".html", definition.HTML, data); err != nil {
		return nil, err
	}

	if content.Text, err = render(templateID+".text", definition.Text, data); err != nil {
		return nil, err
	}

	return content, nil
}

func (r *Renderer) load(templateID string) (*templateDefinition, error) {
	// Template IDs come from API input, keep them inside templatesPath.
	if strings.ContainsAny(templateID, "/\\") || strings.Contains(templateID, "..") {
		return nil, fmt.Errorf("invalid template id: %s", templateID)
	}

	path := filepath.Join(r.templatesPath, templateID+".json")

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", templateID, err)
	}

	var definition templateDefinition
	if err := json.Unmarshal(raw, &definition); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", templateID, err)
	}

	return &definition, nil
}

func render(name, templateStr string, data map[string]any) (string, error) {
	if templateStr == "" {
		return "", nil
	}

	tmpl, err := template.New(name).Option("missingkey=zero").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}

	return buf.String(), nil
}

func envVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
