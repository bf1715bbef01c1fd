package mocks

import (
	"context"

	"github.com/benmeehan/device-agent/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockCommandExecutor is a mock implementation of the CommandExecutor interface
type MockCommandExecutor struct {
	mock.Mock
}

func (m *MockCommandExecutor) Execute(ctx context.Context, req models.CommandRequest) models.ExecutionResult {
	args := m.Called(ctx, req)
	return args.Get(0).(models.ExecutionResult)
}
