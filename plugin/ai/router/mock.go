package router

import (
	"context"
	"strings"
	"sync"

	"github.com/hanbai/mescopilot/store"
)

// MockRouterService is a mock implementation of RouterService for testing.
type MockRouterService struct {
	mu sync.Mutex
	// Overrides maps exact inputs to canned resolutions.
	Overrides map[string]*Resolution
	// Err is returned from ResolveIntent when set.
	Err error
	// Confirmed collects ConfirmResolution calls.
	Confirmed []int64
	// Refreshed collects RefreshTenant calls.
	Refreshed []int64
}

// NewMockRouterService creates a new MockRouterService.
func NewMockRouterService() *MockRouterService {
	return &MockRouterService{Overrides: make(map[string]*Resolution)}
}

// ResolveIntent returns the override for the input when one exists, else a
// crude keyword resolution so handler tests get plausible output.
func (m *MockRouterService) ResolveIntent(_ context.Context, tenantID int64, input string) (*Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if resolution, ok := m.Overrides[input]; ok {
		return resolution, nil
	}
	if strings.Contains(input, "报工") {
		return &Resolution{
			IntentCode: "PRODUCTION_REPORT",
			Confidence: 0.95,
			Method:     store.MatchMethodRule,
		}, nil
	}
	return &Resolution{Clarification: genericClarification}, nil
}

// ConfirmResolution records the call.
func (m *MockRouterService) ConfirmResolution(_ context.Context, _, recordID int64, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Confirmed = append(m.Confirmed, recordID)
	return nil
}

// RefreshTenant records the call.
func (m *MockRouterService) RefreshTenant(_ context.Context, tenantID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Refreshed = append(m.Refreshed, tenantID)
	return nil
}

var _ RouterService = (*MockRouterService)(nil)
