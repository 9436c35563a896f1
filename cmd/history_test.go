package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/streetpass/internal/core"
	"firestige.xyz/streetpass/internal/history"
)

// MockHistory implements historyReader.
type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) Peers() ([]history.PeerRecord, error) {
	args := m.Called()
	peers, _ := args.Get(0).([]history.PeerRecord)
	return peers, args.Error(1)
}

func (m *MockHistory) Encounters(limit int) ([]core.Encounter, error) {
	args := m.Called(limit)
	encs, _ := args.Get(0).([]core.Encounter)
	return encs, args.Error(1)
}

var seen = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func TestRunHistoryPeersText(t *testing.T) {
	m := new(MockHistory)
	m.On("Peers").Return([]history.PeerRecord{{
		Key:       "68c727390e2fbb04",
		FirstSeen: seen.Add(-time.Hour),
		LastSeen:  seen,
		Count:     3,
		LastMAC:   "02:11:22:33:44:55",
	}}, nil)

	var buf bytes.Buffer
	require.NoError(t, runHistoryPeers(m, "text", &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "KEY")
	assert.Contains(t, lines[1], "68c727390e2fbb04")
	assert.Contains(t, lines[1], "02:11:22:33:44:55")
	assert.Contains(t, lines[1], "2024-03-01 12:30:00")
	m.AssertExpectations(t)
}

func TestRunHistoryPeersEmpty(t *testing.T) {
	m := new(MockHistory)
	m.On("Peers").Return(nil, nil)

	var buf bytes.Buffer
	require.NoError(t, runHistoryPeers(m, "text", &buf))
	assert.Equal(t, "no peers recorded\n", buf.String())
	m.AssertExpectations(t)
}

func TestRunHistoryPeersJSON(t *testing.T) {
	m := new(MockHistory)
	m.On("Peers").Return([]history.PeerRecord{{Key: "68c727390e2fbb04", Count: 1}}, nil)

	var buf bytes.Buffer
	require.NoError(t, runHistoryPeers(m, "json", &buf))

	var got []history.PeerRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Count)
	m.AssertExpectations(t)
}

func TestRunHistoryPeersFailure(t *testing.T) {
	m := new(MockHistory)
	m.On("Peers").Return(nil, errors.New("store closed"))

	var buf bytes.Buffer
	err := runHistoryPeers(m, "text", &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store closed")
	assert.Empty(t, buf.String())
	m.AssertExpectations(t)
}

func TestRunHistoryEncountersText(t *testing.T) {
	m := new(MockHistory)
	m.On("Encounters", 5).Return([]core.Encounter{{
		ID:        "2cXWzV2nJx5dxQ0JkcVbJj6VmSg",
		Timestamp: seen,
		PeerMAC:   "02:11:22:33:44:55",
		PeerKey:   "68c727390e2fbb04",
		Signal:    -42,
		Filter:    []byte{0xF0, 0x08, 0x68, 0xC7, 0x27, 0x39, 0x0E, 0x2F, 0xBB, 0x04},
	}}, nil)

	var buf bytes.Buffer
	require.NoError(t, runHistoryEncounters(m, 5, "text", &buf))
	assert.Contains(t, buf.String(), "key=68c727390e2fbb04")
	assert.Contains(t, buf.String(), "signal=-42")
	assert.Contains(t, buf.String(), "filter=f00868c727390e2fbb04")
	m.AssertExpectations(t)
}

func TestRunHistoryEncountersRejectsNegativeLimit(t *testing.T) {
	m := new(MockHistory)

	var buf bytes.Buffer
	assert.Error(t, runHistoryEncounters(m, -1, "text", &buf))
	m.AssertNotCalled(t, "Encounters", mock.Anything)
}

func TestRunHistoryEncountersBadFormat(t *testing.T) {
	m := new(MockHistory)
	m.On("Encounters", 0).Return([]core.Encounter{}, nil)

	var buf bytes.Buffer
	assert.Error(t, runHistoryEncounters(m, 0, "yaml", &buf))
	m.AssertExpectations(t)
}

func TestHistoryStoreSatisfiesReader(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)
	defer store.Close()

	var r historyReader = store
	var buf bytes.Buffer
	require.NoError(t, runHistoryEncounters(r, 10, "text", &buf))
	assert.Equal(t, "no encounters recorded\n", buf.String())
}
