// Package mocks provides test doubles for the idempotency ledger.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
	ledger "github.com/wheelerbb/gcp-invoice-intel/internal/ledger"
	model "github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

// MockLedger is a mock type for the Ledger interface.
type MockLedger struct {
	mock.Mock
}

// BeginAttempt provides a mock function with given fields: ctx, fp, mode, meta, force
func (_m *MockLedger) BeginAttempt(ctx context.Context, fp string, mode model.Mode, meta ledger.AttemptMeta, force bool) (*ledger.AttemptToken, error) {
	ret := _m.Called(ctx, fp, mode, meta, force)

	if len(ret) == 0 {
		panic("no return value specified for BeginAttempt")
	}

	var r0 *ledger.AttemptToken
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, model.Mode, ledger.AttemptMeta, bool) (*ledger.AttemptToken, error)); ok {
		return rf(ctx, fp, mode, meta, force)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*ledger.AttemptToken)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Close provides a mock function with no fields
func (_m *MockLedger) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}

	return ret.Error(0)
}

// Complete provides a mock function with given fields: ctx, token, outcome
func (_m *MockLedger) Complete(ctx context.Context, token *ledger.AttemptToken, outcome ledger.Outcome) error {
	ret := _m.Called(ctx, token, outcome)

	if len(ret) == 0 {
		panic("no return value specified for Complete")
	}

	if rf, ok := ret.Get(0).(func(context.Context, *ledger.AttemptToken, ledger.Outcome) error); ok {
		return rf(ctx, token, outcome)
	}
	return ret.Error(0)
}

// HasSucceeded provides a mock function with given fields: ctx, mode, fp
func (_m *MockLedger) HasSucceeded(ctx context.Context, mode model.Mode, fp string) (bool, error) {
	ret := _m.Called(ctx, mode, fp)

	if len(ret) == 0 {
		panic("no return value specified for HasSucceeded")
	}

	if rf, ok := ret.Get(0).(func(context.Context, model.Mode, string) (bool, error)); ok {
		return rf(ctx, mode, fp)
	}
	return ret.Bool(0), ret.Error(1)
}

// List provides a mock function with given fields: ctx, mode, filter
func (_m *MockLedger) List(ctx context.Context, mode model.Mode, filter ledger.Filter) ([]model.FileRecord, error) {
	ret := _m.Called(ctx, mode, filter)

	if len(ret) == 0 {
		panic("no return value specified for List")
	}

	var r0 []model.FileRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.FileRecord)
	}

	return r0, ret.Error(1)
}

// Migrate provides a mock function with given fields: ctx
func (_m *MockLedger) Migrate(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Migrate")
	}

	return ret.Error(0)
}

// NewMockLedger creates a new instance of MockLedger.
func NewMockLedger(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockLedger {
	mock := &MockLedger{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
