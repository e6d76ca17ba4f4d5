package dojo_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dojoctl/internal/dojo"
	"github.com/xkilldash9x/dojoctl/internal/mocks"
	"github.com/xkilldash9x/dojoctl/internal/network"
)

// -- Test Helpers --

var fixedNow = time.Date(2026, time.March, 9, 14, 30, 0, 0, time.Local)

const today = "2026-03-09"

func fastRetryClient(t *testing.T) *http.Client {
	cfg := network.NewDefaultClientConfig()
	cfg.Logger = zaptest.NewLogger(t)
	cfg.RetryPolicy = &network.RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2,
		RetryableStatusCodes: map[int]bool{
			http.StatusTooManyRequests:     true,
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
		},
	}
	return network.NewClient(cfg)
}

func newTestClient(t *testing.T, fake *mocks.FakeDojo) *dojo.Client {
	return dojo.NewClient(fake.URL, dojo.Credential{Token: fake.Token}, fastRetryClient(t),
		dojo.WithUploadClient(network.NewClient(network.NewDefaultClientConfig())),
		dojo.WithLogger(zaptest.NewLogger(t)),
		dojo.WithClock(func() time.Time { return fixedNow }),
	)
}

func writeReport(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// -- Credential Resolver --

func TestResolveCredential_TokenUsedAsIs(t *testing.T) {
	fake := mocks.NewFakeDojo(t)

	cred, err := dojo.ResolveCredential(context.Background(), nil, fake.URL, dojo.Credentials{Token: "abcdefghijklmnop"})
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmnop", cred.Token)
	assert.Equal(t, dojo.SourceProvided, cred.Source)
	assert.Equal(t, "abcdefghij...", cred.Masked())
	assert.Zero(t, fake.Calls(http.MethodPost, "/api/v2/api-token-auth/"), "a supplied token must not trigger a login")
}

func TestResolveCredential_Login(t *testing.T) {
	fake := mocks.NewFakeDojo(t)

	cred, err := dojo.ResolveCredential(context.Background(), fastRetryClient(t), fake.URL+"/", dojo.Credentials{Username: "admin", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, fake.Token, cred.Token)
	assert.Equal(t, dojo.SourceLogin, cred.Source)
}

func TestResolveCredential_LoginRejected(t *testing.T) {
	fake := mocks.NewFakeDojo(t)

	_, err := dojo.ResolveCredential(context.Background(), fastRetryClient(t), fake.URL, dojo.Credentials{Username: "admin", Password: "wrong"})
	require.Error(t, err)

	var authErr *dojo.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
	assert.Contains(t, authErr.Body, "Unable to log in")
	assert.Equal(t, 1, fake.Calls(http.MethodPost, "/api/v2/api-token-auth/"), "400 is not retryable")
}

func TestResolveCredential_Incomplete(t *testing.T) {
	_, err := dojo.ResolveCredential(context.Background(), nil, "http://unused", dojo.Credentials{Username: "admin"})
	var authErr *dojo.AuthError
	assert.True(t, errors.As(err, &authErr))
}

// -- Entity Resolver --

func TestResolveProduct_Idempotent(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	client := newTestClient(t, fake)
	ctx := context.Background()

	first, err := client.ResolveProduct(ctx, "CDS Platform")
	require.NoError(t, err)
	assert.Equal(t, dojo.OriginCreated, first.Origin)

	second, err := client.ResolveProduct(ctx, "CDS Platform")
	require.NoError(t, err)
	assert.Equal(t, dojo.OriginFound, second.Origin)
	assert.Equal(t, first.ID, second.ID)

	products := fake.Products()
	require.Len(t, products, 1)
	assert.Equal(t, dojo.DefaultProductDescription, products[0]["description"])
	assert.Equal(t, 1, fake.Calls(http.MethodPost, "/api/v2/products/"))
	assert.Equal(t, 1, fake.Calls(http.MethodPost, "/api/v2/product_types/"), "the product type is created once")
}

func TestResolveProduct_ReusesExistingProductType(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	ptID := fake.AddProductType(dojo.DefaultProductType)
	client := newTestClient(t, fake)

	_, err := client.ResolveProduct(context.Background(), "A")
	require.NoError(t, err)
	_, err = client.ResolveProduct(context.Background(), "B")
	require.NoError(t, err)

	for _, p := range fake.Products() {
		assert.EqualValues(t, ptID, p["prod_type"])
	}
	assert.Zero(t, fake.Calls(http.MethodPost, "/api/v2/product_types/"))
	assert.Equal(t, 1, fake.Calls(http.MethodGet, "/api/v2/product_types/"), "the resolved type is remembered for the run")
}

func TestResolveProductType_FallsBackToFirstListed(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	researchID := fake.AddProductType("Research")
	fake.AddProductType("Billing")
	fake.FailProductTypeCreate = true
	client := newTestClient(t, fake)

	pt, err := client.ResolveProductType(context.Background(), dojo.DefaultProductType)
	require.NoError(t, err)
	assert.Equal(t, researchID, pt.ID)
	assert.Equal(t, "Research", pt.Name)
	assert.Equal(t, dojo.OriginFallback, pt.Origin)
}

func TestResolveProductType_NothingToFallBackTo(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	fake.FailProductTypeCreate = true
	client := newTestClient(t, fake)

	_, err := client.ResolveProductType(context.Background(), dojo.DefaultProductType)
	var resErr *dojo.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, dojo.KindProductType, resErr.Kind)
	assert.Equal(t, dojo.DefaultProductType, resErr.Name)
}

func TestResolveProduct_PersistentServerError(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	fake.FailProducts["Broken"] = true
	client := newTestClient(t, fake)

	_, err := client.ResolveProduct(context.Background(), "Broken")
	var resErr *dojo.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, dojo.KindProduct, resErr.Kind)

	var statusErr *dojo.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)

	assert.Equal(t, 4, fake.Calls(http.MethodGet, "/api/v2/products/"), "search is retried by the session")
	assert.Equal(t, 4, fake.Calls(http.MethodPost, "/api/v2/products/"), "create is retried by the session")
}

func TestResolveEngagement_ReuseToday(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	productID := fake.AddProduct("P", 1)
	fake.AddEngagement(productID, "yesterday", "2026-03-08", "Completed")
	todayID := fake.AddEngagement(productID, "earlier today", today, "In Progress")
	client := newTestClient(t, fake)

	eng, err := client.ResolveEngagement(context.Background(), productID, "CI Scan", true)
	require.NoError(t, err)
	assert.Equal(t, todayID, eng.ID)
	assert.Equal(t, dojo.OriginReused, eng.Origin)
	assert.Zero(t, fake.Calls(http.MethodPost, "/api/v2/engagements/"))
}

func TestResolveEngagement_NoReuseAlwaysCreates(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	productID := fake.AddProduct("P", 1)
	existing := fake.AddEngagement(productID, "earlier today", today, "In Progress")
	client := newTestClient(t, fake)

	eng, err := client.ResolveEngagement(context.Background(), productID, "CI Scan", false)
	require.NoError(t, err)
	assert.NotEqual(t, existing, eng.ID)
	assert.Equal(t, dojo.OriginCreated, eng.Origin)
	assert.Zero(t, fake.Calls(http.MethodGet, "/api/v2/engagements/"), "no search when reuse is off")

	engagements := fake.Engagements()
	require.Len(t, engagements, 2)
	created := engagements[1]
	assert.Equal(t, "CI Scan", created["name"])
	assert.Equal(t, today, created["target_start"])
	assert.Equal(t, today, created["target_end"])
	assert.Equal(t, "In Progress", created["status"])
	assert.Equal(t, "CI/CD", created["engagement_type"])
}

func TestResolveEngagement_IdempotentWithReuse(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	productID := fake.AddProduct("P", 1)
	client := newTestClient(t, fake)

	first, err := client.ResolveEngagement(context.Background(), productID, "CI Scan", true)
	require.NoError(t, err)
	second, err := client.ResolveEngagement(context.Background(), productID, "CI Scan", true)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, dojo.OriginReused, second.Origin)
	assert.Len(t, fake.Engagements(), 1)
}

func TestResolveEngagement_CreateFails(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	fake.FailEngagementCreate = true
	client := newTestClient(t, fake)

	_, err := client.ResolveEngagement(context.Background(), 42, "CI Scan", true)
	var resErr *dojo.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, dojo.KindEngagement, resErr.Kind)
	assert.Contains(t, err.Error(), "Invalid pk")
}

// -- Upload Executor --

func TestClassify(t *testing.T) {
	marker := []byte(`{"detail":"npm7 with auditReportVersion 2 is not supported"}`)
	cases := []struct {
		name   string
		status int
		body   []byte
		want   dojo.Outcome
	}{
		{"created", http.StatusCreated, []byte(`{"test":1}`), dojo.Success},
		{"created with marker", http.StatusCreated, marker, dojo.Success},
		{"bad request with marker", http.StatusBadRequest, marker, dojo.Skipped},
		{"server error with marker", http.StatusInternalServerError, marker, dojo.Skipped},
		{"plain ok is not created", http.StatusOK, []byte(`{}`), dojo.Failure},
		{"bad request", http.StatusBadRequest, []byte(`{"scan_type":["invalid"]}`), dojo.Failure},
		{"empty", 0, nil, dojo.Failure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, dojo.Classify(tc.status, tc.body))
		})
	}
}

func TestUpload_Success(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	client := newTestClient(t, fake)
	path := writeReport(t, "gitleaks-report.json", `[{"RuleID":"aws-key"}]`)

	res := client.Upload(context.Background(), 77, "Gitleaks Scan", path, []string{"frontend", "ci"})
	require.NoError(t, res.Err)
	assert.Equal(t, dojo.Success, res.Outcome)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.NotZero(t, res.TestID)

	imports := fake.Imports()
	require.Len(t, imports, 1)
	rec := imports[0]
	assert.Equal(t, "gitleaks-report.json", rec.Filename)
	assert.Equal(t, `[{"RuleID":"aws-key"}]`, string(rec.Content))
	assert.True(t, strings.HasPrefix(rec.ContentType, "multipart/form-data; boundary="), rec.ContentType)
	assert.Equal(t, map[string]string{
		"engagement":         "77",
		"scan_type":          "Gitleaks Scan",
		"active":             "true",
		"verified":           "true",
		"close_old_findings": "true",
		"push_to_jira":       "false",
		"minimum_severity":   "Info",
		"scan_date":          today,
		"tags":               "frontend,ci",
	}, rec.Fields)
}

func TestUpload_NoTagsField(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	client := newTestClient(t, fake)

	res := client.Upload(context.Background(), 1, "Retire.js Scan", writeReport(t, "retire-report.json", "{}"), nil)
	require.Equal(t, dojo.Success, res.Outcome)
	_, hasTags := fake.Imports()[0].Fields["tags"]
	assert.False(t, hasTags)
}

func TestUpload_SkippedOnUnsupportedFormat(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	fake.ImportResponses["audit-npm.json"] = mocks.ImportResponse{
		Status: http.StatusBadRequest,
		Body:   `{"message":"npm7 with auditReportVersion 2 detected, not supported"}`,
	}
	client := newTestClient(t, fake)

	res := client.Upload(context.Background(), 1, "NPM Audit Scan", writeReport(t, "audit-npm.json", "{}"), nil)
	assert.Equal(t, dojo.Skipped, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestUpload_FailureIsNotRetried(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	fake.ImportResponses["spotbugsXml.xml"] = mocks.ImportResponse{Status: http.StatusInternalServerError, Body: `{"detail":"boom"}`}
	client := newTestClient(t, fake)

	res := client.Upload(context.Background(), 1, "SpotBugs Scan", writeReport(t, "spotbugsXml.xml", "<BugCollection/>"), nil)
	assert.Equal(t, dojo.Failure, res.Outcome)
	var statusErr *dojo.StatusError
	require.True(t, errors.As(res.Err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, 1, fake.Calls(http.MethodPost, "/api/v2/import-scan/"), "the import goes out exactly once")
}

func TestUpload_UnreadableFile(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	client := newTestClient(t, fake)

	res := client.Upload(context.Background(), 1, "Checkstyle Scan", filepath.Join(t.TempDir(), "missing.xml"), nil)
	assert.Equal(t, dojo.Failure, res.Outcome)
	assert.ErrorContains(t, res.Err, "failed to read scan file")
	assert.Zero(t, fake.Calls(http.MethodPost, "/api/v2/import-scan/"))
}

func TestUpload_TransportError(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	client := newTestClient(t, fake)
	path := writeReport(t, "eslint-security.json", "[]")
	fake.Close()

	res := client.Upload(context.Background(), 1, "ESLint Scan", path, nil)
	assert.Equal(t, dojo.Failure, res.Outcome)
	assert.Error(t, res.Err)
	assert.Zero(t, res.StatusCode)
}

// -- Metrics --

func TestListFindingsAndSummarize(t *testing.T) {
	fake := mocks.NewFakeDojo(t)
	productID := fake.AddProduct("P", 1)
	other := fake.AddProduct("Q", 1)
	fake.AddFinding(productID, "sqli", "Critical", true, true)
	fake.AddFinding(productID, "xss", "High", true, false)
	fake.AddFinding(productID, "old", "Low", false, true)
	fake.AddFinding(productID, "note", "", true, false)
	fake.AddFinding(other, "elsewhere", "High", true, true)
	fake.AddEngagement(productID, "CI", today, "In Progress")
	client := newTestClient(t, fake)
	ctx := context.Background()

	products, err := client.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	findings, err := client.ListFindings(ctx, productID, true, 0)
	require.NoError(t, err)
	require.Len(t, findings, 3)

	stats := dojo.SummarizeFindings(findings)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Active)
	assert.Equal(t, 1, stats.Verified)
	assert.Equal(t, map[string]int{"Critical": 1, "High": 1, "Info": 1}, stats.BySeverity)

	engagements, err := client.ListEngagements(ctx, productID)
	require.NoError(t, err)
	require.Len(t, engagements, 1)
	assert.Equal(t, "In Progress", engagements[0].Status)
}

func TestClient_URLs(t *testing.T) {
	client := dojo.NewClient("https://dojo.example.com/", dojo.Credential{Token: "t"}, nil)
	assert.Equal(t, "https://dojo.example.com", client.BaseURL())
	assert.Equal(t, "https://dojo.example.com/dashboard", client.DashboardURL())
}
