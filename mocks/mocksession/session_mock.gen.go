// Package mocksession holds GoMock mocks for the interfaces in pkg/mcpsession/session.go.
// The file is maintained by hand in mockgen layout; running go generate
// in pkg/mcpsession replaces it with mockgen output of the same shape.
package mocksession

import (
	context "context"
	json "encoding/json"
	reflect "reflect"

	toolcatalog "github.com/effective-security/mcpbridge/pkg/toolcatalog"
	gomock "go.uber.org/mock/gomock"
)

// MockSession is a mock of Session interface.
type MockSession struct {
	ctrl     *gomock.Controller
	recorder *MockSessionMockRecorder
	isgomock struct{}
}

// MockSessionMockRecorder is the mock recorder for MockSession.
type MockSessionMockRecorder struct {
	mock *MockSession
}

// NewMockSession creates a new mock instance.
func NewMockSession(ctrl *gomock.Controller) *MockSession {
	mock := &MockSession{ctrl: ctrl}
	mock.recorder = &MockSessionMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockSession) EXPECT() *MockSessionMockRecorder {
	return m.recorder
}

// CallTool mocks base method.
func (m *MockSession) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CallTool", ctx, name, args)
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// CallTool indicates an expected call of CallTool.
func (mr *MockSessionMockRecorder) CallTool(ctx, name, args any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CallTool", reflect.TypeOf((*MockSession)(nil).CallTool), ctx, name, args)
}

// Close mocks base method.
func (m *MockSession) Close() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Close")
	ret0, _ := ret[0].(error)
	return ret0
}

// Close indicates an expected call of Close.
func (mr *MockSessionMockRecorder) Close() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*MockSession)(nil).Close))
}

// ConcurrencySafe mocks base method.
func (m *MockSession) ConcurrencySafe(names ...string) bool {
	m.ctrl.T.Helper()
	varargs := []any{}
	for _, a := range names {
		varargs = append(varargs, a)
	}
	ret := m.ctrl.Call(m, "ConcurrencySafe", varargs...)
	ret0, _ := ret[0].(bool)
	return ret0
}

// ConcurrencySafe indicates an expected call of ConcurrencySafe.
func (mr *MockSessionMockRecorder) ConcurrencySafe(names ...any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ConcurrencySafe", reflect.TypeOf((*MockSession)(nil).ConcurrencySafe), names...)
}

// ListTools mocks base method.
func (m *MockSession) ListTools(ctx context.Context) ([]toolcatalog.RawDescriptor, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListTools", ctx)
	ret0, _ := ret[0].([]toolcatalog.RawDescriptor)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListTools indicates an expected call of ListTools.
func (mr *MockSessionMockRecorder) ListTools(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListTools", reflect.TypeOf((*MockSession)(nil).ListTools), ctx)
}
