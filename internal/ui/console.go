package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/xkilldash9x/dojoctl/internal/discovery"
	"github.com/xkilldash9x/dojoctl/internal/dojo"
	"github.com/xkilldash9x/dojoctl/internal/orchestrator"
)

// Console prints human-readable status lines for a run.
type Console struct {
	w io.Writer
}

var _ orchestrator.Reporter = (*Console)(nil)

// NewConsole writes to w, or stdout when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

func (c *Console) Info(format string, args ...any) {
	fmt.Fprint(c.w, pterm.Info.Sprintfln(format, args...))
}

func (c *Console) Success(format string, args ...any) {
	fmt.Fprint(c.w, pterm.Success.Sprintfln(format, args...))
}

func (c *Console) Warning(format string, args ...any) {
	fmt.Fprint(c.w, pterm.Warning.Sprintfln(format, args...))
}

func (c *Console) Error(format string, args ...any) {
	fmt.Fprint(c.w, pterm.Error.Sprintfln(format, args...))
}

// Header prints a full-width banner.
func (c *Console) Header(title string) {
	fmt.Fprintln(c.w, pterm.DefaultHeader.WithFullWidth().Sprint(title))
}

// -- orchestrator.Reporter --

func (c *Console) Start(plan orchestrator.Plan) {
	title := "DEFECTDOJO SECURITY SCAN UPLOAD"
	if plan.SeparateProducts {
		title += " (Per-Component Products)"
	}
	c.Header(title)
	c.Info("Scanning for security reports in: %s", plan.ScanDir)
}

func (c *Console) Discovered(inv discovery.Inventory) {
	if inv.Empty() {
		c.Warning("No scan files found")
		return
	}
	c.Info("Found scan results for %d component(s), %d file(s)", len(inv.Components), inv.FileCount())
}

func (c *Console) Section(title string) {
	fmt.Fprint(c.w, pterm.DefaultSection.Sprintln(title))
}

func (c *Console) Resolved(e dojo.Entity) {
	switch e.Origin {
	case dojo.OriginFound:
		c.Success("Found existing %s: %s (ID: %d)", e.Kind, e.Name, e.ID)
	case dojo.OriginReused:
		c.Success("Reusing today's %s: %s (ID: %d)", e.Kind, e.Name, e.ID)
	case dojo.OriginFallback:
		c.Warning("Using existing %s: %s (ID: %d)", e.Kind, e.Name, e.ID)
	default:
		c.Success("Created new %s: %s (ID: %d)", e.Kind, e.Name, e.ID)
	}
}

func (c *Console) ResolutionFailed(component string, pending int, err error) {
	c.Error("Failed to prepare %s: %v (%d upload(s) counted as failed)", component, err, pending)
}

func (c *Console) Uploaded(f discovery.ScanFile, res dojo.UploadResult) {
	name := filepath.Base(f.Path)
	switch res.Outcome {
	case dojo.Success:
		c.Success("Uploaded %s: %s (Test ID: %d)", f.ScanType, name, res.TestID)
	case dojo.Skipped:
		c.Warning("Skipped %s: %s: report format not supported by the receiver", f.ScanType, name)
	default:
		if res.StatusCode != 0 {
			c.Error("Upload failed %s: %s (%d): %s", f.ScanType, name, res.StatusCode, res.Body)
		} else {
			c.Error("Upload failed %s: %s: %v", f.ScanType, name, res.Err)
		}
	}
}

func (c *Console) Finish(s *orchestrator.Summary) {
	title := "UPLOAD SUMMARY"
	if s.Mode == orchestrator.ModePerComponent {
		title = "OVERALL UPLOAD SUMMARY"
	}
	c.Section(title)

	data := pterm.TableData{{"Result", "Count"}}
	if s.Mode == orchestrator.ModePerComponent {
		data = append(data, []string{"Products touched", strconv.Itoa(s.ProductsTouched)})
	}
	data = append(data,
		[]string{pterm.FgGreen.Sprint("Successful"), strconv.Itoa(s.Succeeded)},
		[]string{pterm.FgYellow.Sprint("Skipped"), strconv.Itoa(s.Skipped)},
		[]string{pterm.FgRed.Sprint("Failed"), strconv.Itoa(s.Failed)},
		[]string{"Total", strconv.Itoa(s.Total())},
	)
	if table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender(); err == nil {
		fmt.Fprintln(c.w, table)
	}

	if s.Error != "" {
		c.Error("Run aborted: %s", s.Error)
	}
	c.Info("View results: %s", s.DashboardURL)
	if s.Passed() && s.Error == "" {
		c.Success("Run %s passed", s.RunID)
	} else {
		c.Error("Run %s failed", s.RunID)
	}
}

// -- metrics --

// ProductMetrics prints the findings overview of one product.
func (c *Console) ProductMetrics(p dojo.Product, stats dojo.FindingStats, engagements []dojo.Engagement) {
	c.Section(fmt.Sprintf("Product: %s (ID: %d)", p.Name, p.ID))

	data := pterm.TableData{
		{"Metric", "Count"},
		{"Total", strconv.Itoa(stats.Total)},
		{"Active", strconv.Itoa(stats.Active)},
		{"Verified", strconv.Itoa(stats.Verified)},
	}
	for _, sev := range dojo.Severities {
		if n := stats.BySeverity[sev]; n > 0 {
			data = append(data, []string{severityStyle(sev), strconv.Itoa(n)})
		}
	}
	if table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender(); err == nil {
		fmt.Fprintln(c.w, table)
	}

	c.Info("Engagements: %d", len(engagements))
	for i, e := range engagements {
		if i == 3 {
			break
		}
		fmt.Fprintf(c.w, "  - %s (Status: %s)\n", e.Name, e.Status)
	}
}

func severityStyle(sev string) string {
	switch sev {
	case "Critical", "High":
		return pterm.FgRed.Sprint(sev)
	case "Medium":
		return pterm.FgYellow.Sprint(sev)
	case "Low":
		return pterm.FgBlue.Sprint(sev)
	default:
		return sev
	}
}
