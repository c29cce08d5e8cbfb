package remote

import (
	"context"
	"sync"
	"time"
)

// MockClient is a deterministic in-memory upstream for tests and local
// development. A configurable latency mimics real-world calls; per-method call
// counters let tests assert suppression and ordering properties.
type MockClient struct {
	mu sync.Mutex

	Latency time.Duration

	// Configured behavior.
	ExistingUsers map[string]bool       // mobile -> exists
	ChitStatuses  map[string]ChitStatus // mobile+"/"+relationship -> status
	Profiles      map[string]*CustomerProfile
	AcceptedOTP   string
	SubmitErr     error
	VerifyErr     error
	ResendErr     error

	// Observed calls.
	CheckUserCalls int
	ChitUserCalls  int
	CustomerCalls  int
	SubmitCalls    int
	VerifyCalls    int
	ResendCalls    int
	Submitted      []SubmitRequest
}

// NewMockClient returns an empty mock accepting OTP "123456".
func NewMockClient() *MockClient {
	return &MockClient{
		ExistingUsers: make(map[string]bool),
		ChitStatuses:  make(map[string]ChitStatus),
		Profiles:      make(map[string]*CustomerProfile),
		AcceptedOTP:   "123456",
	}
}

func (m *MockClient) CheckUser(_ context.Context, mobile string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CheckUserCalls++
	time.Sleep(m.Latency)
	return m.ExistingUsers[mobile], nil
}

func (m *MockClient) ChitUser(_ context.Context, mobile, relationship string) (ChitStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChitUserCalls++
	time.Sleep(m.Latency)
	return m.ChitStatuses[mobile+"/"+relationship], nil
}

func (m *MockClient) Customer(_ context.Context, mobile string) (*CustomerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CustomerCalls++
	time.Sleep(m.Latency)
	return m.Profiles[mobile], nil
}

func (m *MockClient) Submit(_ context.Context, req SubmitRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubmitCalls++
	time.Sleep(m.Latency)
	if m.SubmitErr != nil {
		return m.SubmitErr
	}
	m.Submitted = append(m.Submitted, req)
	return nil
}

func (m *MockClient) VerifyOTP(_ context.Context, code, _, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifyCalls++
	time.Sleep(m.Latency)
	if m.VerifyErr != nil {
		return false, m.VerifyErr
	}
	return code == m.AcceptedOTP, nil
}

func (m *MockClient) ResendOTP(_ context.Context, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResendCalls++
	time.Sleep(m.Latency)
	return m.ResendErr
}
