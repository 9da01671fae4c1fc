// Package mockllms holds GoMock mocks for the interfaces in pkg/llms/llms.go.
// The file is maintained by hand in mockgen layout; running go generate
// in pkg/llms replaces it with mockgen output of the same shape.
package mockllms

import (
	context "context"
	json "encoding/json"
	reflect "reflect"

	llms "github.com/effective-security/mcpbridge/pkg/llms"
	toolcatalog "github.com/effective-security/mcpbridge/pkg/toolcatalog"
	gomock "go.uber.org/mock/gomock"
)

// MockToolSpec is a mock of ToolSpec interface.
type MockToolSpec struct {
	ctrl     *gomock.Controller
	recorder *MockToolSpecMockRecorder
	isgomock struct{}
}

// MockToolSpecMockRecorder is the mock recorder for MockToolSpec.
type MockToolSpecMockRecorder struct {
	mock *MockToolSpec
}

// NewMockToolSpec creates a new mock instance.
func NewMockToolSpec(ctrl *gomock.Controller) *MockToolSpec {
	mock := &MockToolSpec{ctrl: ctrl}
	mock.recorder = &MockToolSpecMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockToolSpec) EXPECT() *MockToolSpecMockRecorder {
	return m.recorder
}

// Names mocks base method.
func (m *MockToolSpec) Names() []string {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Names")
	ret0, _ := ret[0].([]string)
	return ret0
}

// Names indicates an expected call of Names.
func (mr *MockToolSpecMockRecorder) Names() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Names", reflect.TypeOf((*MockToolSpec)(nil).Names))
}

// Provider mocks base method.
func (m *MockToolSpec) Provider() llms.ProviderType {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Provider")
	ret0, _ := ret[0].(llms.ProviderType)
	return ret0
}

// Provider indicates an expected call of Provider.
func (mr *MockToolSpecMockRecorder) Provider() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Provider", reflect.TypeOf((*MockToolSpec)(nil).Provider))
}

// MockRawResponse is a mock of RawResponse interface.
type MockRawResponse struct {
	ctrl     *gomock.Controller
	recorder *MockRawResponseMockRecorder
	isgomock struct{}
}

// MockRawResponseMockRecorder is the mock recorder for MockRawResponse.
type MockRawResponseMockRecorder struct {
	mock *MockRawResponse
}

// NewMockRawResponse creates a new mock instance.
func NewMockRawResponse(ctrl *gomock.Controller) *MockRawResponse {
	mock := &MockRawResponse{ctrl: ctrl}
	mock.recorder = &MockRawResponseMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockRawResponse) EXPECT() *MockRawResponseMockRecorder {
	return m.recorder
}

// Provider mocks base method.
func (m *MockRawResponse) Provider() llms.ProviderType {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Provider")
	ret0, _ := ret[0].(llms.ProviderType)
	return ret0
}

// Provider indicates an expected call of Provider.
func (mr *MockRawResponseMockRecorder) Provider() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Provider", reflect.TypeOf((*MockRawResponse)(nil).Provider))
}

// MockAdapter is a mock of Adapter interface.
type MockAdapter struct {
	ctrl     *gomock.Controller
	recorder *MockAdapterMockRecorder
	isgomock struct{}
}

// MockAdapterMockRecorder is the mock recorder for MockAdapter.
type MockAdapterMockRecorder struct {
	mock *MockAdapter
}

// NewMockAdapter creates a new mock instance.
func NewMockAdapter(ctrl *gomock.Controller) *MockAdapter {
	mock := &MockAdapter{ctrl: ctrl}
	mock.recorder = &MockAdapterMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockAdapter) EXPECT() *MockAdapterMockRecorder {
	return m.recorder
}

// Decode mocks base method.
func (m *MockAdapter) Decode(raw llms.RawResponse) (*llms.ModelTurn, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Decode", raw)
	ret0, _ := ret[0].(*llms.ModelTurn)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Decode indicates an expected call of Decode.
func (mr *MockAdapterMockRecorder) Decode(raw any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Decode", reflect.TypeOf((*MockAdapter)(nil).Decode), raw)
}

// EncodeToolResult mocks base method.
func (m *MockAdapter) EncodeToolResult(result llms.ToolCallResponse) (json.RawMessage, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "EncodeToolResult", result)
	ret0, _ := ret[0].(json.RawMessage)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// EncodeToolResult indicates an expected call of EncodeToolResult.
func (mr *MockAdapterMockRecorder) EncodeToolResult(result any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "EncodeToolResult", reflect.TypeOf((*MockAdapter)(nil).EncodeToolResult), result)
}

// EncodeTools mocks base method.
func (m *MockAdapter) EncodeTools(catalog *toolcatalog.Catalog) (llms.ToolSpec, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "EncodeTools", catalog)
	ret0, _ := ret[0].(llms.ToolSpec)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// EncodeTools indicates an expected call of EncodeTools.
func (mr *MockAdapterMockRecorder) EncodeTools(catalog any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "EncodeTools", reflect.TypeOf((*MockAdapter)(nil).EncodeTools), catalog)
}

// GetName mocks base method.
func (m *MockAdapter) GetName() string {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetName")
	ret0, _ := ret[0].(string)
	return ret0
}

// GetName indicates an expected call of GetName.
func (mr *MockAdapterMockRecorder) GetName() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetName", reflect.TypeOf((*MockAdapter)(nil).GetName))
}

// GetProviderType mocks base method.
func (m *MockAdapter) GetProviderType() llms.ProviderType {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetProviderType")
	ret0, _ := ret[0].(llms.ProviderType)
	return ret0
}

// GetProviderType indicates an expected call of GetProviderType.
func (mr *MockAdapterMockRecorder) GetProviderType() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetProviderType", reflect.TypeOf((*MockAdapter)(nil).GetProviderType))
}

// Send mocks base method.
func (m *MockAdapter) Send(ctx context.Context, history []llms.Message, tools llms.ToolSpec, options ...llms.CallOption) (llms.RawResponse, error) {
	m.ctrl.T.Helper()
	varargs := []any{ctx, history, tools}
	for _, a := range options {
		varargs = append(varargs, a)
	}
	ret := m.ctrl.Call(m, "Send", varargs...)
	ret0, _ := ret[0].(llms.RawResponse)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Send indicates an expected call of Send.
func (mr *MockAdapterMockRecorder) Send(ctx, history, tools any, options ...any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	varargs := append([]any{ctx, history, tools}, options...)
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Send", reflect.TypeOf((*MockAdapter)(nil).Send), varargs...)
}
