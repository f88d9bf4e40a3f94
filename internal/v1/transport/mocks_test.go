package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/heroarena/game-server/internal/v1/auth"
	"github.com/heroarena/game-server/internal/v1/config"
	"github.com/heroarena/game-server/internal/v1/game"
)

// MockConnection implements wsConnection
type MockConnection struct {
	ReadMessageFunc  func() (int, []byte, error)
	WriteMessageFunc func(int, []byte) error
	CloseFunc        func() error
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	if m.ReadMessageFunc != nil {
		return m.ReadMessageFunc()
	}
	return 0, nil, errors.New("no more frames")
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	if m.WriteMessageFunc != nil {
		return m.WriteMessageFunc(messageType, data)
	}
	return nil
}

func (m *MockConnection) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *MockConnection) SetWriteDeadline(_ time.Time) error {
	return nil
}

// MockTokenValidator accepts any token unless shouldFail is set.
type MockTokenValidator struct {
	shouldFail bool
}

func (m *MockTokenValidator) ValidateToken(_ string) (*auth.CustomClaims, error) {
	if m.shouldFail {
		return nil, errors.New("token rejected")
	}
	return &auth.CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "test-user-123"},
		Name:             "Test User",
	}, nil
}

func newTestRegistry(t *testing.T) *game.Registry {
	t.Helper()
	cfg := &config.Config{
		Port:       "8080",
		TickHz:     30,
		SnapshotHz: 15,
	}
	reg := game.NewRegistry(cfg, nil, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})
	return reg
}

func newTestHub(t *testing.T, devMode bool) *Hub {
	t.Helper()
	return NewHub(newTestRegistry(t), &MockTokenValidator{}, nil, devMode)
}
