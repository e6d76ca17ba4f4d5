package dojo

import jsoniter "github.com/json-iterator/go"

// json is the codec for every request and response body.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Collection endpoints of the v2 REST API.
const (
	pathTokenAuth    = "/api/v2/api-token-auth/"
	pathProductTypes = "/api/v2/product_types/"
	pathProducts     = "/api/v2/products/"
	pathEngagements  = "/api/v2/engagements/"
	pathImportScan   = "/api/v2/import-scan/"
	pathFindings     = "/api/v2/findings/"
)

// Fixed values the service expects on created entities.
const (
	DefaultProductType         = "Web Application"
	DefaultProductDescription  = "Credit Default Swap Trading Platform"
	EngagementStatusInProgress = "In Progress"
	EngagementTypeCICD         = "CI/CD"
	MinimumSeverity            = "Info"

	dateLayout = "2006-01-02"
)

// page is the envelope of every list endpoint.
type page[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

type ProductType struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ProdType    int    `json:"prod_type,omitempty"`
}

type Engagement struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Product        int    `json:"product"`
	TargetStart    string `json:"target_start"`
	TargetEnd      string `json:"target_end"`
	Status         string `json:"status"`
	EngagementType string `json:"engagement_type"`
}

type Finding struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Severity string `json:"severity"`
	Active   bool   `json:"active"`
	Verified bool   `json:"verified"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type productTypeRequest struct {
	Name string `json:"name"`
}

type productRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ProdType    int    `json:"prod_type"`
}

type engagementRequest struct {
	Name           string `json:"name"`
	Product        int    `json:"product"`
	TargetStart    string `json:"target_start"`
	TargetEnd      string `json:"target_end"`
	Status         string `json:"status"`
	EngagementType string `json:"engagement_type"`
}

type importResponse struct {
	Test       int `json:"test"`
	Engagement int `json:"engagement"`
}
