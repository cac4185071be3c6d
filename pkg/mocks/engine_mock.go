package mocks

import (
	"context"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowEngine mocks the parts of durable.Engine that services and
// handlers call.
type MockWorkflowEngine struct {
	mock.Mock
}

func (m *MockWorkflowEngine) StartWorkflow(ctx context.Context, opts durable.StartOptions, input any) (*durable.Run, error) {
	args := m.Called(ctx, opts, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*durable.Run), args.Error(1)
}

func (m *MockWorkflowEngine) SignalWorkflow(ctx context.Context, workflowID, signalName string) error {
	args := m.Called(ctx, workflowID, signalName)

	return args.Error(0)
}

// QueryWorkflow only returns the mocked error. Tests fill result with Run.
func (m *MockWorkflowEngine) QueryWorkflow(ctx context.Context, workflowID, queryName string, result any) error {
	args := m.Called(ctx, workflowID, queryName, result)

	return args.Error(0)
}

func (m *MockWorkflowEngine) Describe(ctx context.Context, workflowID string) (*durable.RunInfo, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*durable.RunInfo), args.Error(1)
}

// MockCompleter is a mock implementation of conditions.Completer interface.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)

	return args.String(0), args.Error(1)
}
