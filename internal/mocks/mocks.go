// File: internal/mocks/mocks.go
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/dojoctl/internal/discovery"
	"github.com/xkilldash9x/dojoctl/internal/dojo"
	"github.com/xkilldash9x/dojoctl/internal/orchestrator"
)

// -- Reporter Mock --

// MockReporter mocks orchestrator.Reporter.
type MockReporter struct {
	mock.Mock
}

var _ orchestrator.Reporter = (*MockReporter)(nil)

// NewPermissiveReporter returns a MockReporter that accepts every call.
func NewPermissiveReporter() *MockReporter {
	m := new(MockReporter)
	m.On("Start", mock.Anything).Maybe()
	m.On("Discovered", mock.Anything).Maybe()
	m.On("Section", mock.Anything).Maybe()
	m.On("Resolved", mock.Anything).Maybe()
	m.On("ResolutionFailed", mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("Uploaded", mock.Anything, mock.Anything).Maybe()
	m.On("Finish", mock.Anything).Maybe()
	return m
}

func (m *MockReporter) Start(plan orchestrator.Plan) {
	m.Called(plan)
}

func (m *MockReporter) Discovered(inv discovery.Inventory) {
	m.Called(inv)
}

func (m *MockReporter) Section(title string) {
	m.Called(title)
}

func (m *MockReporter) Resolved(entity dojo.Entity) {
	m.Called(entity)
}

func (m *MockReporter) ResolutionFailed(component string, pending int, err error) {
	m.Called(component, pending, err)
}

func (m *MockReporter) Uploaded(file discovery.ScanFile, result dojo.UploadResult) {
	m.Called(file, result)
}

func (m *MockReporter) Finish(summary *orchestrator.Summary) {
	m.Called(summary)
}
