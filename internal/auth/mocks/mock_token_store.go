// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/usersvc/usersvc/internal/auth"
)

// MockTokenStore is a mock type for the TokenStore type.
type MockTokenStore struct {
	mock.Mock
}

// FindActiveByValue provides a mock function with given fields: ctx, value, now
func (_m *MockTokenStore) FindActiveByValue(ctx context.Context, value string, now time.Time) (*auth.Token, error) {
	ret := _m.Called(ctx, value, now)

	if len(ret) == 0 {
		panic("no return value specified for FindActiveByValue")
	}

	var r0 *auth.Token
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, time.Time) (*auth.Token, error)); ok {
		return rf(ctx, value, now)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, time.Time) *auth.Token); ok {
		r0 = rf(ctx, value, now)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*auth.Token)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, time.Time) error); ok {
		r1 = rf(ctx, value, now)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Save provides a mock function with given fields: ctx, token
func (_m *MockTokenStore) Save(ctx context.Context, token *auth.Token) (*auth.Token, error) {
	ret := _m.Called(ctx, token)

	if len(ret) == 0 {
		panic("no return value specified for Save")
	}

	var r0 *auth.Token
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, *auth.Token) (*auth.Token, error)); ok {
		return rf(ctx, token)
	}
	if rf, ok := ret.Get(0).(func(context.Context, *auth.Token) *auth.Token); ok {
		r0 = rf(ctx, token)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*auth.Token)
	}

	if rf, ok := ret.Get(1).(func(context.Context, *auth.Token) error); ok {
		r1 = rf(ctx, token)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockTokenStore creates a new instance of MockTokenStore. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockTokenStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockTokenStore {
	m := &MockTokenStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
