package mocks

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// -- Fake DefectDojo --

// ImportRecord is one multipart import the fake received.
type ImportRecord struct {
	Fields   map[string]string
	Filename string
	Content  []byte
	// ContentType is the request Content-Type header as received.
	ContentType string
}

// ImportResponse is a canned reply for the import endpoint.
type ImportResponse struct {
	Status int
	Body   string
}

// FakeDojo is an in-memory stand-in for the DefectDojo v2 API. Hooks let a
// test break individual endpoints.
type FakeDojo struct {
	*httptest.Server

	mu sync.Mutex

	Token    string
	Username string
	Password string

	nextID       int
	productTypes []map[string]any
	products     []map[string]any
	engagements  []map[string]any
	findings     []map[string]any

	imports []ImportRecord
	calls   map[string]int

	// FailProductTypeCreate makes POST /product_types/ return 403.
	FailProductTypeCreate bool
	// FailProducts makes every products call return 500 for these names.
	FailProducts map[string]bool
	// FailEngagementCreate makes POST /engagements/ return 400.
	FailEngagementCreate bool
	// ImportResponses overrides the import reply by uploaded filename.
	ImportResponses map[string]ImportResponse
}

// NewFakeDojo starts a fake accepting token "test-token" and the login
// admin/secret. The server is closed when the test ends.
func NewFakeDojo(t testing.TB) *FakeDojo {
	f := &FakeDojo{
		Token:           "test-token",
		Username:        "admin",
		Password:        "secret",
		nextID:          100,
		calls:           make(map[string]int),
		FailProducts:    make(map[string]bool),
		ImportResponses: make(map[string]ImportResponse),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/api-token-auth/", f.handleLogin)
	mux.HandleFunc("/api/v2/product_types/", f.authed(f.handleProductTypes))
	mux.HandleFunc("/api/v2/products/", f.authed(f.handleProducts))
	mux.HandleFunc("/api/v2/engagements/", f.authed(f.handleEngagements))
	mux.HandleFunc("/api/v2/findings/", f.authed(f.handleFindings))
	mux.HandleFunc("/api/v2/import-scan/", f.authed(f.handleImport))
	f.Server = httptest.NewServer(f.count(mux))
	t.Cleanup(f.Server.Close)
	return f
}

// -- Seeding --

func (f *FakeDojo) id() int {
	f.nextID++
	return f.nextID
}

// AddProductType seeds a product type and returns its id.
func (f *FakeDojo) AddProductType(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.productTypes = append(f.productTypes, map[string]any{"id": id, "name": name})
	return id
}

// AddProduct seeds a product and returns its id.
func (f *FakeDojo) AddProduct(name string, prodType int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.products = append(f.products, map[string]any{"id": id, "name": name, "prod_type": prodType})
	return id
}

// AddEngagement seeds an engagement and returns its id.
func (f *FakeDojo) AddEngagement(productID int, name, targetStart, status string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.engagements = append(f.engagements, map[string]any{
		"id": id, "name": name, "product": productID,
		"target_start": targetStart, "target_end": targetStart,
		"status": status, "engagement_type": "CI/CD",
	})
	return id
}

// AddFinding seeds a finding under productID.
func (f *FakeDojo) AddFinding(productID int, title, severity string, active, verified bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findings = append(f.findings, map[string]any{
		"id": f.id(), "title": title, "severity": severity,
		"active": active, "verified": verified, "product": productID,
	})
}

// -- Inspection --

// Calls returns how often "METHOD /path/" was hit.
func (f *FakeDojo) Calls(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+path]
}

// Imports returns a copy of the received imports in arrival order.
func (f *FakeDojo) Imports() []ImportRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ImportRecord(nil), f.imports...)
}

// Products returns a copy of the stored products.
func (f *FakeDojo) Products() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.products...)
}

// Engagements returns a copy of the stored engagements.
func (f *FakeDojo) Engagements() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.engagements...)
}

// -- Handlers --

func (f *FakeDojo) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.Method+" "+r.URL.Path]++
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeDojo) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token "+f.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Invalid token."})
			return
		}
		next(w, r)
	}
}

func (f *FakeDojo) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	body, _ := io.ReadAll(r.Body)
	if r.Method != http.MethodPost || json.Unmarshal(body, &req) != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "bad request"})
		return
	}
	if req.Username != f.Username || req.Password != f.Password {
		writeJSON(w, http.StatusBadRequest, map[string]any{"non_field_errors": []string{"Unable to log in with provided credentials."}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": f.Token})
}

func (f *FakeDojo) handleProductTypes(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		writePage(w, filter(f.productTypes, r, "name"))
	case http.MethodPost:
		if f.FailProductTypeCreate {
			writeJSON(w, http.StatusForbidden, map[string]any{"detail": "You do not have permission to perform this action."})
			return
		}
		obj, ok := decodeObject(w, r)
		if !ok {
			return
		}
		obj["id"] = f.id()
		f.productTypes = append(f.productTypes, obj)
		writeJSON(w, http.StatusCreated, obj)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *FakeDojo) handleProducts(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		if f.FailProducts[r.URL.Query().Get("name")] {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "server error"})
			return
		}
		writePage(w, filter(f.products, r, "name"))
	case http.MethodPost:
		obj, ok := decodeObject(w, r)
		if !ok {
			return
		}
		if name, _ := obj["name"].(string); f.FailProducts[name] {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "server error"})
			return
		}
		obj["id"] = f.id()
		f.products = append(f.products, obj)
		writeJSON(w, http.StatusCreated, obj)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *FakeDojo) handleEngagements(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		writePage(w, filter(f.engagements, r, "product", "target_start"))
	case http.MethodPost:
		if f.FailEngagementCreate {
			writeJSON(w, http.StatusBadRequest, map[string]any{"product": []string{"Invalid pk."}})
			return
		}
		obj, ok := decodeObject(w, r)
		if !ok {
			return
		}
		obj["id"] = f.id()
		f.engagements = append(f.engagements, obj)
		writeJSON(w, http.StatusCreated, obj)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *FakeDojo) handleFindings(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := filter(f.findings, r, "product")
	if r.URL.Query().Get("active") == "true" {
		var active []map[string]any
		for _, fd := range matched {
			if a, _ := fd["active"].(bool); a {
				active = append(active, fd)
			}
		}
		matched = active
	}
	writePage(w, matched)
}

func (f *FakeDojo) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "not multipart: " + err.Error()})
		return
	}
	rec := ImportRecord{Fields: make(map[string]string), ContentType: r.Header.Get("Content-Type")}
	for k, v := range r.MultipartForm.Value {
		rec.Fields[k] = strings.Join(v, ",")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"file": []string{"No file was submitted."}})
		return
	}
	defer file.Close()
	rec.Filename = header.Filename
	rec.Content, _ = io.ReadAll(file)

	f.mu.Lock()
	f.imports = append(f.imports, rec)
	canned, hasCanned := f.ImportResponses[rec.Filename]
	id := f.id()
	f.mu.Unlock()

	if hasCanned {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(canned.Status)
		io.WriteString(w, canned.Body)
		return
	}
	engagement, _ := strconv.Atoi(rec.Fields["engagement"])
	writeJSON(w, http.StatusCreated, map[string]any{"test": id, "engagement": engagement, "scan_type": rec.Fields["scan_type"]})
}

// -- Helpers --

// filter keeps objects whose fields equal every present query parameter.
func filter(objs []map[string]any, r *http.Request, keys ...string) []map[string]any {
	q := r.URL.Query()
	out := make([]map[string]any, 0, len(objs))
outer:
	for _, obj := range objs {
		for _, k := range keys {
			want := q.Get(k)
			if want == "" {
				continue
			}
			if toString(obj[k]) != want {
				continue outer
			}
		}
		out = append(out, obj)
	}
	return out
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	obj := make(map[string]any)
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &obj); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "JSON parse error"})
		return nil, false
	}
	return obj, true
}

func writePage(w http.ResponseWriter, results []map[string]any) {
	if results == nil {
		results = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "next": nil, "previous": nil, "results": results})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
