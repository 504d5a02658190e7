// Package mocks provides test doubles for the record sink.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
	model "github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

// MockSink is a mock type for the Sink interface.
type MockSink struct {
	mock.Mock
}

// Close provides a mock function with no fields
func (_m *MockSink) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}

	return ret.Error(0)
}

// Migrate provides a mock function with given fields: ctx
func (_m *MockSink) Migrate(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Migrate")
	}

	return ret.Error(0)
}

// Write provides a mock function with given fields: ctx, rs
func (_m *MockSink) Write(ctx context.Context, rs *model.RecordSet) error {
	ret := _m.Called(ctx, rs)

	if len(ret) == 0 {
		panic("no return value specified for Write")
	}

	if rf, ok := ret.Get(0).(func(context.Context, *model.RecordSet) error); ok {
		return rf(ctx, rs)
	}
	return ret.Error(0)
}

// NewMockSink creates a new instance of MockSink.
func NewMockSink(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSink {
	mock := &MockSink{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
