package dojo

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Outcome is the three-way result of one import.
type Outcome int

const (
	Failure Outcome = iota
	Success
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	default:
		return "failure"
	}
}

// MarshalText lets summaries carry the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnsupportedFormatMarker is the error text the service returns for npm audit
// reports in the v7+ schema, which its parser does not read. Matching on it is
// a best-effort heuristic: a rewording on the service side turns these skips
// back into failures.
const UnsupportedFormatMarker = "npm7 with auditReportVersion"

// Classify maps an import response to an Outcome. It depends only on its
// arguments.
func Classify(status int, body []byte) Outcome {
	if status == http.StatusCreated {
		return Success
	}
	if bytes.Contains(body, []byte(UnsupportedFormatMarker)) {
		return Skipped
	}
	return Failure
}

// UploadResult describes one import attempt. Errors are carried as values;
// an upload never fails the run by itself.
type UploadResult struct {
	Path       string
	ScanType   string
	Outcome    Outcome
	StatusCode int
	TestID     int
	Body       string
	Err        error
}

// Upload imports one report into engagementID. The file is read fully before
// the request is built, then sent once through the upload client with only
// the Authorization header set by the caller; the multipart writer supplies
// the Content-Type and boundary.
func (c *Client) Upload(ctx context.Context, engagementID int, scanType, path string, tags []string) UploadResult {
	res := UploadResult{Path: path, ScanType: scanType}

	content, err := os.ReadFile(path)
	if err != nil {
		res.Err = fmt.Errorf("failed to read scan file: %w", err)
		return res
	}

	body, contentType, err := c.importForm(engagementID, scanType, filepath.Base(path), content, tags)
	if err != nil {
		res.Err = err
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(pathImportScan, nil), bytes.NewReader(body))
	if err != nil {
		res.Err = fmt.Errorf("failed to build import request: %w", err)
		return res
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", contentType)

	status, respBody, err := c.send(c.upload, req)
	res.StatusCode = status
	res.Body = truncate(respBody)
	if err != nil {
		res.Err = err
		return res
	}

	res.Outcome = Classify(status, respBody)
	switch res.Outcome {
	case Success:
		var ir importResponse
		if err := json.Unmarshal(respBody, &ir); err == nil {
			res.TestID = ir.Test
		}
	case Failure:
		res.Err = &StatusError{Method: http.MethodPost, Path: pathImportScan, StatusCode: status, Body: res.Body}
	}
	return res
}

func (c *Client) importForm(engagementID int, scanType, filename string, content []byte, tags []string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"engagement", strconv.Itoa(engagementID)},
		{"scan_type", scanType},
		{"active", "true"},
		{"verified", "true"},
		{"close_old_findings", "true"},
		{"push_to_jira", "false"},
		{"minimum_severity", MinimumSeverity},
		{"scan_date", c.today()},
	}
	if len(tags) > 0 {
		fields = append(fields, [2]string{"tags", strings.Join(tags, ",")})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
