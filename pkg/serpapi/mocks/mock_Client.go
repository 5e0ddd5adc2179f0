// Package mocks provides test doubles for the serpapi client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	serpapi "github.com/sells-group/profile-finder/pkg/serpapi"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, req
func (_m *MockClient) Search(ctx context.Context, req serpapi.SearchRequest) (*serpapi.SearchResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 *serpapi.SearchResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, serpapi.SearchRequest) (*serpapi.SearchResponse, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*serpapi.SearchResponse)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// HasKey provides a mock function with no fields
func (_m *MockClient) HasKey() bool {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for HasKey")
	}

	return ret.Bool(0)
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
