// Package mocks provides test doubles for the extraction client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
	model "github.com/wheelerbb/gcp-invoice-intel/internal/model"
	ocr "github.com/wheelerbb/gcp-invoice-intel/internal/ocr"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Extract provides a mock function with given fields: ctx, doc
func (_m *MockClient) Extract(ctx context.Context, doc ocr.Document) (*model.RawExtraction, error) {
	ret := _m.Called(ctx, doc)

	if len(ret) == 0 {
		panic("no return value specified for Extract")
	}

	var r0 *model.RawExtraction
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, ocr.Document) (*model.RawExtraction, error)); ok {
		return rf(ctx, doc)
	}
	if rf, ok := ret.Get(0).(func(context.Context, ocr.Document) *model.RawExtraction); ok {
		r0 = rf(ctx, doc)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.RawExtraction)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, ocr.Document) error); ok {
		r1 = rf(ctx, doc)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
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
