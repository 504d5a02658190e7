// Package mocks provides test doubles for the refinement client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
	refine "github.com/wheelerbb/gcp-invoice-intel/internal/refine"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Name provides a mock function with no fields
func (_m *MockClient) Name() string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Name")
	}

	var r0 string
	if rf, ok := ret.Get(0).(func() string); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(string)
	}

	return r0
}

// Refine provides a mock function with given fields: ctx, req
func (_m *MockClient) Refine(ctx context.Context, req refine.Request) (*refine.Response, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Refine")
	}

	var r0 *refine.Response
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, refine.Request) (*refine.Response, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, refine.Request) *refine.Response); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*refine.Response)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, refine.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
