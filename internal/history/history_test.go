package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/streetpass/internal/core"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// encounterAt builds an encounter whose ksuid sorts by at.
func encounterAt(t *testing.T, key, mac string, at time.Time) *core.Encounter {
	t.Helper()
	id, err := ksuid.NewRandomWithTime(at)
	require.NoError(t, err)
	return &core.Encounter{
		ID:        id.String(),
		SessionID: "session",
		Timestamp: at,
		PeerMAC:   mac,
		PeerKey:   key,
		Filter:    []byte{0xF0, 0x08, 1, 2, 3, 4, 5, 6, 7, 8},
	}
}

func TestRecordAndPeer(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Record(encounterAt(t, "0102030405060708", "02:00:00:00:00:01", base)))
	require.NoError(t, s.Record(encounterAt(t, "0102030405060708", "02:00:00:00:00:02", base.Add(time.Minute))))

	rec, err := s.Peer("0102030405060708")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.Count)
	assert.True(t, base.Equal(rec.FirstSeen))
	assert.True(t, base.Add(time.Minute).Equal(rec.LastSeen))
	assert.Equal(t, "02:00:00:00:00:02", rec.LastMAC)

	_, err = s.Peer("ffffffffffffffff")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordOutOfOrder(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Record(encounterAt(t, "aa", "02:00:00:00:00:02", base.Add(time.Hour))))
	require.NoError(t, s.Record(encounterAt(t, "aa", "02:00:00:00:00:01", base)))

	rec, err := s.Peer("aa")
	require.NoError(t, err)
	assert.True(t, base.Equal(rec.FirstSeen))
	assert.True(t, base.Add(time.Hour).Equal(rec.LastSeen))
	assert.Equal(t, "02:00:00:00:00:02", rec.LastMAC)
}

func TestRecordRejectsIncomplete(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.Record(&core.Encounter{PeerKey: "aa"}))
	assert.Error(t, s.Record(&core.Encounter{ID: "x"}))
}

func TestPeersNewestFirst(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Record(encounterAt(t, "aa", "m1", base)))
	require.NoError(t, s.Record(encounterAt(t, "bb", "m2", base.Add(2*time.Minute))))
	require.NoError(t, s.Record(encounterAt(t, "cc", "m3", base.Add(time.Minute))))

	peers, err := s.Peers()
	require.NoError(t, err)
	require.Len(t, peers, 3)
	assert.Equal(t, []string{"bb", "cc", "aa"}, []string{peers[0].Key, peers[1].Key, peers[2].Key})
}

func TestEncountersNewestFirst(t *testing.T) {
	s := openStore(t)
	var ids []string
	for i := 0; i < 5; i++ {
		enc := encounterAt(t, "aa", "m", base.Add(time.Duration(i)*time.Second))
		ids = append(ids, enc.ID)
		require.NoError(t, s.HandleEncounter(context.Background(), enc))
	}

	all, err := s.Encounters(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, ids[4], all[0].ID)
	assert.Equal(t, ids[0], all[4].ID)
	assert.Equal(t, []byte{0xF0, 0x08, 1, 2, 3, 4, 5, 6, 7, 8}, all[0].Filter)
	assert.True(t, base.Add(4*time.Second).Equal(all[0].Timestamp))

	two, err := s.Encounters(2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, ids[3], two[1].ID)

	// Peer records live under a different prefix.
	peers, err := s.Peers()
	require.NoError(t, err)
	assert.Len(t, peers, 1)
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Record(encounterAt(t, "aa", "m", base)))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.Peer("aa")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Count)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("enc0"), prefixUpperBound([]byte("enc/")))
	assert.Equal(t, []byte{0x02}, prefixUpperBound([]byte{0x01, 0xFF}))
	assert.Nil(t, prefixUpperBound([]byte{0xFF, 0xFF}))
}
