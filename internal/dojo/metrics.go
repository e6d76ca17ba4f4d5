package dojo

import (
	"context"
	"net/url"
	"strconv"
)

// Severities in the order the service ranks them.
var Severities = []string{"Critical", "High", "Medium", "Low", "Info"}

// DefaultFindingsLimit is the page size requested when listing findings.
const DefaultFindingsLimit = 1000

// ListProducts returns the first page of products.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	return list[Product](ctx, c, pathProducts, nil)
}

// ListFindings returns up to limit findings for productID.
func (c *Client) ListFindings(ctx context.Context, productID int, activeOnly bool, limit int) ([]Finding, error) {
	if limit <= 0 {
		limit = DefaultFindingsLimit
	}
	q := url.Values{
		"product": {strconv.Itoa(productID)},
		"limit":   {strconv.Itoa(limit)},
	}
	if activeOnly {
		q.Set("active", "true")
	}
	return list[Finding](ctx, c, pathFindings, q)
}

// ListEngagements returns the engagements under productID.
func (c *Client) ListEngagements(ctx context.Context, productID int) ([]Engagement, error) {
	return list[Engagement](ctx, c, pathEngagements, url.Values{"product": {strconv.Itoa(productID)}})
}

// FindingStats aggregates a product's findings.
type FindingStats struct {
	Total      int            `json:"total" yaml:"total"`
	Active     int            `json:"active" yaml:"active"`
	Verified   int            `json:"verified" yaml:"verified"`
	BySeverity map[string]int `json:"by_severity" yaml:"by_severity"`
}

// SummarizeFindings counts findings by state and severity. A finding with no
// severity counts as Info.
func SummarizeFindings(findings []Finding) FindingStats {
	stats := FindingStats{Total: len(findings), BySeverity: make(map[string]int, len(Severities))}
	for _, f := range findings {
		sev := f.Severity
		if sev == "" {
			sev = "Info"
		}
		stats.BySeverity[sev]++
		if f.Active {
			stats.Active++
		}
		if f.Verified {
			stats.Verified++
		}
	}
	return stats
}
