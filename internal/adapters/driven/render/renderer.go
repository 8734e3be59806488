package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ReportRenderer = (*Renderer)(nil)

// Renderer implements driven.ReportRenderer against an external render
// service that turns compiled sections into a PDF. Rendering is the last
// stage of report generation; its failure leaves the compiled sections
// intact on the job.
type Renderer struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds render service connection configuration
type Config struct {
	// BaseURL is the render service endpoint (e.g., http://localhost:3050)
	BaseURL string

	// Timeout for HTTP requests. PDF generation for a large report can be
	// slow, so this is generous.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 2 * time.Minute,
	}
}

// NewRenderer creates a new HTTP-backed report renderer
func NewRenderer(cfg Config) *Renderer {
	return &Renderer{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// renderRequest is the wire format the render service expects
type renderRequest struct {
	JobID      string          `json:"job_id"`
	SchemaType string          `json:"schema_type"`
	Sections   []renderSection `json:"sections"`
	Gap        *renderGap      `json:"gap,omitempty"`
}

type renderSection struct {
	Title      string           `json:"title"`
	Body       string           `json:"body"`
	Confidence float64          `json:"confidence"`
	Citations  []renderCitation `json:"citations,omitempty"`
}

type renderCitation struct {
	DocumentTitle string `json:"document_title"`
	Page          int    `json:"page,omitempty"`
}

type renderGap struct {
	CoveragePercent int      `json:"coverage_percent"`
	MissingElements []string `json:"missing_elements,omitempty"`
}

// Render produces the binary report (PDF) from compiled sections
func (r *Renderer) Render(ctx context.Context, job *domain.ReportJob) ([]byte, error) {
	payload := renderRequest{
		JobID:      job.ID,
		SchemaType: string(job.SchemaType),
		Sections:   make([]renderSection, 0, len(job.Sections)),
	}
	for _, section := range job.Sections {
		rs := renderSection{
			Title:      section.Title,
			Body:       section.Body,
			Confidence: section.Confidence,
		}
		for _, c := range section.Citations {
			rs.Citations = append(rs.Citations, renderCitation{
				DocumentTitle: c.DocumentTitle,
				Page:          c.Page,
			})
		}
		payload.Sections = append(payload.Sections, rs)
	}
	if job.Gap != nil {
		payload.Gap = &renderGap{
			CoveragePercent: job.Gap.CoveragePercent,
			MissingElements: job.Gap.MissingElements,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/render/pdf", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("render failed: %s - %s", resp.Status, string(respBody))
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered report: %w", err)
	}
	return pdf, nil
}

// Ping checks if the render service is reachable
func (r *Renderer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("render service unhealthy: %s", resp.Status)
	}
	return nil
}
