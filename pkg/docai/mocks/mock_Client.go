// Package mocks provides test doubles for the Document AI client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
	docai "github.com/wheelerbb/gcp-invoice-intel/pkg/docai"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Process provides a mock function with given fields: ctx, content, mimeType
func (_m *MockClient) Process(ctx context.Context, content []byte, mimeType string) (*docai.Document, error) {
	ret := _m.Called(ctx, content, mimeType)

	if len(ret) == 0 {
		panic("no return value specified for Process")
	}

	var r0 *docai.Document
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, []byte, string) (*docai.Document, error)); ok {
		return rf(ctx, content, mimeType)
	}
	if rf, ok := ret.Get(0).(func(context.Context, []byte, string) *docai.Document); ok {
		r0 = rf(ctx, content, mimeType)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*docai.Document)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, []byte, string) error); ok {
		r1 = rf(ctx, content, mimeType)
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
