package orchestrator

import (
	"time"

	"github.com/xkilldash9x/dojoctl/internal/discovery"
	"github.com/xkilldash9x/dojoctl/internal/dojo"
)

// UploadRecord is the summary row for one artifact.
type UploadRecord struct {
	Path       string `json:"path" yaml:"path"`
	ScanType   string `json:"scan_type" yaml:"scan_type"`
	Outcome    string `json:"outcome" yaml:"outcome"`
	StatusCode int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	TestID     int    `json:"test_id,omitempty" yaml:"test_id,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ComponentSummary aggregates the uploads of one component.
type ComponentSummary struct {
	Name         string         `json:"name" yaml:"name"`
	Product      string         `json:"product" yaml:"product"`
	ProductID    int            `json:"product_id,omitempty" yaml:"product_id,omitempty"`
	EngagementID int            `json:"engagement_id,omitempty" yaml:"engagement_id,omitempty"`
	Succeeded    int            `json:"succeeded" yaml:"succeeded"`
	Failed       int            `json:"failed" yaml:"failed"`
	Skipped      int            `json:"skipped" yaml:"skipped"`
	Error        string         `json:"error,omitempty" yaml:"error,omitempty"`
	Uploads      []UploadRecord `json:"uploads" yaml:"uploads"`
}

// Summary is the deterministic record of one run.
type Summary struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Mode       Mode      `json:"mode" yaml:"mode"`
	Product    string    `json:"product" yaml:"product"`
	Engagement string    `json:"engagement" yaml:"engagement"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	Succeeded       int `json:"succeeded" yaml:"succeeded"`
	Failed          int `json:"failed" yaml:"failed"`
	Skipped         int `json:"skipped" yaml:"skipped"`
	ProductsTouched int `json:"products_touched" yaml:"products_touched"`

	Components   []ComponentSummary `json:"components" yaml:"components"`
	DashboardURL string             `json:"dashboard_url" yaml:"dashboard_url"`
	// Error is set when the run stopped before uploading everything.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	products map[int]bool
}

// Total is the number of artifacts accounted for.
func (s *Summary) Total() int {
	return s.Succeeded + s.Failed + s.Skipped
}

// Passed reports whether no upload failed. Skips never fail a run.
func (s *Summary) Passed() bool {
	return s.Failed == 0
}

func (s *Summary) touchProduct(id int) {
	if s.products == nil {
		s.products = make(map[int]bool)
	}
	if !s.products[id] {
		s.products[id] = true
		s.ProductsTouched++
	}
}

func (s *Summary) addComponent(c discovery.Component, product string) *ComponentSummary {
	s.Components = append(s.Components, ComponentSummary{
		Name:    c.Name,
		Product: product,
		Uploads: make([]UploadRecord, 0, len(c.Files)),
	})
	return &s.Components[len(s.Components)-1]
}

// failComponent counts every pending artifact of c as a failure.
func (s *Summary) failComponent(cs *ComponentSummary, c discovery.Component, err error) {
	cs.Error = err.Error()
	for _, f := range c.Files {
		cs.Uploads = append(cs.Uploads, UploadRecord{Path: f.Path, ScanType: f.ScanType, Outcome: dojo.Failure.String(), Error: "not attempted: " + err.Error()})
	}
	cs.Failed += len(c.Files)
	s.Failed += len(c.Files)
}

func (s *Summary) record(cs *ComponentSummary, res dojo.UploadResult) {
	rec := UploadRecord{
		Path:       res.Path,
		ScanType:   res.ScanType,
		Outcome:    res.Outcome.String(),
		StatusCode: res.StatusCode,
		TestID:     res.TestID,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	cs.Uploads = append(cs.Uploads, rec)

	switch res.Outcome {
	case dojo.Success:
		cs.Succeeded++
		s.Succeeded++
	case dojo.Skipped:
		cs.Skipped++
		s.Skipped++
	default:
		cs.Failed++
		s.Failed++
	}
}
