package command

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/streetpass/internal/cec"
	"firestige.xyz/streetpass/internal/history"
	"firestige.xyz/streetpass/internal/scan"
)

// MockController implements Controller.
type MockController struct {
	mock.Mock
}

func (m *MockController) Stats() scan.Stats {
	return m.Called().Get(0).(scan.Stats)
}

func (m *MockController) SessionID() string {
	return m.Called().String(0)
}

func (m *MockController) LocalFilter() *cec.ModuleFilter {
	f, _ := m.Called().Get(0).(*cec.ModuleFilter)
	return f
}

func (m *MockController) Reload() error {
	return m.Called().Error(0)
}

func (m *MockController) Shutdown() {
	m.Called()
}

// MockPeers implements PeerStore.
type MockPeers struct {
	mock.Mock
}

func (m *MockPeers) Peer(key string) (*history.PeerRecord, error) {
	args := m.Called(key)
	rec, _ := args.Get(0).(*history.PeerRecord)
	return rec, args.Error(1)
}

// exchangeFilter asks for title 0x00020800 in EXCHANGE mode.
func exchangeFilter(t *testing.T) *cec.ModuleFilter {
	t.Helper()
	f := cec.NewModuleFilter(cec.Key{0xAA, 0xBB, 0xCC, 0xDD, 0x00, 0x11, 0x22, 0x33})
	title, err := cec.NewTitleFilter(0x00020800, cec.Exchange)
	require.NoError(t, err)
	require.NoError(t, f.SetTitleFilters(title))
	return f
}


func params(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandleStatus(t *testing.T) {
	ctl := new(MockController)
	ctl.On("LocalFilter").Return(exchangeFilter(t))
	ctl.On("SessionID").Return("session-1")
	h := NewCommandHandler(ctl, nil)

	resp := h.Handle(context.Background(), Command{Method: MethodStatus, ID: "1"})

	require.Nil(t, resp.Error)
	assert.Equal(t, "1", resp.ID)
	st, ok := resp.Result.(Status)
	require.True(t, ok)
	assert.Equal(t, "session-1", st.SessionID)
	assert.Equal(t, "aabbccdd00112233", st.Key)
	assert.Equal(t, "10050002080000f008aabbccdd00112233", st.Filter)
	assert.False(t, st.History)
	ctl.AssertExpectations(t)
}

func TestHandleStats(t *testing.T) {
	ctl := new(MockController)
	ctl.On("Stats").Return(scan.Stats{Frames: 10, Matches: 2})
	h := NewCommandHandler(ctl, nil)

	resp := h.Handle(context.Background(), Command{Method: MethodStats, ID: "2"})

	require.Nil(t, resp.Error)
	assert.Equal(t, scan.Stats{Frames: 10, Matches: 2}, resp.Result)
}

func TestHandleReload(t *testing.T) {
	ctl := new(MockController)
	ctl.On("Reload").Return(nil).Once()
	ctl.On("Reload").Return(errors.New("bad yaml")).Once()
	h := NewCommandHandler(ctl, nil)

	resp := h.Handle(context.Background(), Command{Method: MethodReload, ID: "3"})
	assert.Nil(t, resp.Error)

	resp = h.Handle(context.Background(), Command{Method: MethodReload, ID: "4"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "bad yaml")
	ctl.AssertExpectations(t)
}

func TestHandleShutdown(t *testing.T) {
	called := make(chan struct{})
	ctl := new(MockController)
	ctl.On("Shutdown").Run(func(mock.Arguments) { close(called) }).Return()
	h := NewCommandHandler(ctl, nil)

	resp := h.Handle(context.Background(), Command{Method: MethodShutdown, ID: "5"})
	require.Nil(t, resp.Error)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown was not triggered")
	}
}

func TestHandleMatch(t *testing.T) {
	ctl := new(MockController)
	ctl.On("LocalFilter").Return(exchangeFilter(t))
	h := NewCommandHandler(ctl, nil)

	resp := h.Handle(context.Background(), Command{
		Method: MethodMatch,
		ID:     "6",
		Params: params(t, MatchParams{Filter: "11 0D 00 05 16 00 31 FF EE DD 00 02 08 00 00 F0 08 68 C7 27 39 0E 2F BB 04"}),
	})
	require.Nil(t, resp.Error)
	assert.Equal(t, MatchResult{Key: "68c727390e2fbb04", Matches: true}, resp.Result)

	resp = h.Handle(context.Background(), Command{
		Method: MethodMatch,
		ID:     "7",
		Params: params(t, MatchParams{Filter: "11050009990000f00868c727390e2fbb04"}),
	})
	require.Nil(t, resp.Error)
	assert.Equal(t, MatchResult{Key: "68c727390e2fbb04", Matches: false}, resp.Result)
}

func TestHandleMatchInvalid(t *testing.T) {
	h := NewCommandHandler(new(MockController), nil)

	for _, p := range []json.RawMessage{nil, params(t, MatchParams{Filter: "zz"}), params(t, MatchParams{Filter: "1105"})} {
		resp := h.Handle(context.Background(), Command{Method: MethodMatch, Params: p})
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
	}
}

func TestHandlePeer(t *testing.T) {
	peers := new(MockPeers)
	rec := &history.PeerRecord{Key: "68c727390e2fbb04", Count: 4}
	peers.On("Peer", "68c727390e2fbb04").Return(rec, nil)
	peers.On("Peer", "0000000000000001").Return(nil, history.ErrNotFound)
	h := NewCommandHandler(new(MockController), peers)

	resp := h.Handle(context.Background(), Command{Method: MethodPeer, Params: params(t, PeerParams{Key: "68:C7:27:39:0E:2F:BB:04"})})
	require.Nil(t, resp.Error)
	assert.Equal(t, rec, resp.Result)

	resp = h.Handle(context.Background(), Command{Method: MethodPeer, Params: params(t, PeerParams{Key: "0000000000000001"})})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)

	resp = h.Handle(context.Background(), Command{Method: MethodPeer, Params: params(t, PeerParams{Key: "short"})})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
	peers.AssertExpectations(t)
}

func TestHandlePeerWithoutHistory(t *testing.T) {
	h := NewCommandHandler(new(MockController), nil)

	resp := h.Handle(context.Background(), Command{Method: MethodPeer, Params: params(t, PeerParams{Key: "68c727390e2fbb04"})})
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "history is disabled")
}

func TestHandleUnknownMethod(t *testing.T) {
	h := NewCommandHandler(new(MockController), nil)

	resp := h.Handle(context.Background(), Command{Method: "task_create", ID: "8"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "8", resp.ID)
}
