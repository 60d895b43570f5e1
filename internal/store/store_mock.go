package store

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockConn can be used for testing
type MockConn struct {
	mock.Mock
}

// NewMockConn returns a new Conn mock for testing
func NewMockConn() *MockConn {
	return &MockConn{}
}

// ListUsers is a mocked function
func (m *MockConn) ListUsers(ctx context.Context) ([]User, error) {
	args := m.Called(ctx)
	users, ok := args.Get(0).([]User)
	if !ok {
		return nil, args.Error(1)
	}

	return users, args.Error(1)
}

// GetUser is a mocked function
func (m *MockConn) GetUser(ctx context.Context, id int32) (User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(User)

	return u, args.Error(1)
}

// InsertUser is a mocked function
func (m *MockConn) InsertUser(ctx context.Context, u User) (User, error) {
	args := m.Called(ctx, u)
	inserted, _ := args.Get(0).(User)

	return inserted, args.Error(1)
}

// Ping is a mocked function
func (m *MockConn) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Close is a mocked function
func (m *MockConn) Close() error {
	return m.Called().Error(0)
}
