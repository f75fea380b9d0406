package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/beatsync/server/internal/core"
	"github.com/beatsync/server/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *Registry, domain.RoomID, domain.ClientID) {
	reg := newTestRegistry()
	t.Cleanup(reg.Shutdown)
	room := reg.GetOrCreateRoom("777777")
	require.NoError(t, room.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	d := NewDispatcher(reg, nil, nil, nil, zerolog.Nop())
	return d, reg, room.id, "c1"
}

func TestDispatch_UnknownRoomReturnsError(t *testing.T) {
	reg := newTestRegistry()
	defer reg.Shutdown()
	d := NewDispatcher(reg, nil, nil, nil, zerolog.Nop())

	frame, err := d.Dispatch(context.Background(), "000000", "c1", []byte(`{"type":"PAUSE"}`), 0)
	assert.ErrorIs(t, err, ErrUnknownRoom)
	assert.NotNil(t, frame)
}

func TestDispatch_MalformedEnvelopeReturnsErrorFrame(t *testing.T) {
	d, _, roomID, clientID := newTestDispatcher(t)
	frame, err := d.Dispatch(context.Background(), roomID, clientID, []byte(`not json`), 0)
	assert.Error(t, err)
	assert.NotNil(t, frame)
}

func TestDispatch_NTPRequestRespondsWithStampedTimes(t *testing.T) {
	d, _, roomID, clientID := newTestDispatcher(t)
	frame, err := d.Dispatch(context.Background(), roomID, clientID, []byte(`{"type":"NTP_REQUEST","t0":1000}`), 5000)
	require.NoError(t, err)
	assert.NotNil(t, frame)

	var resp core.NTPResponse
	require.NoError(t, json.Unmarshal(frame, &resp))
	assert.Equal(t, int64(1000), resp.ClientSendMillis)
	assert.Equal(t, int64(5000), resp.ServerReceiveMillis)
}

func TestDispatch_PauseRoutesToRoomAndReturnsNoUnicastFrame(t *testing.T) {
	d, _, roomID, clientID := newTestDispatcher(t)
	frame, err := d.Dispatch(context.Background(), roomID, clientID, []byte(`{"type":"PAUSE"}`), 0)
	assert.NoError(t, err)
	assert.Nil(t, frame)
}

func TestDispatch_SearchMusicNoOpsWithoutProvider(t *testing.T) {
	d, _, roomID, clientID := newTestDispatcher(t)
	frame, err := d.Dispatch(context.Background(), roomID, clientID, []byte(`{"type":"SEARCH_MUSIC","query":"test"}`), 0)
	assert.NoError(t, err)
	assert.Nil(t, frame)
}

func TestDispatch_LoadDefaultTracksNoOpsWithoutProvider(t *testing.T) {
	d, _, roomID, clientID := newTestDispatcher(t)
	frame, err := d.Dispatch(context.Background(), roomID, clientID, []byte(`{"type":"LOAD_DEFAULT_TRACKS"}`), 0)
	assert.NoError(t, err)
	assert.Nil(t, frame)
}

func TestDispatch_UnknownMessageTypeReturnsInvalidMessageError(t *testing.T) {
	d, _, roomID, clientID := newTestDispatcher(t)
	frame, err := d.Dispatch(context.Background(), roomID, clientID, []byte(`{"type":"NOT_REAL"}`), 0)
	assert.Error(t, err)
	assert.NotNil(t, frame)
}

func TestBroadcastJobUpdate_FansOutToEveryActiveRoom(t *testing.T) {
	d, reg, roomID, _ := newTestDispatcher(t)
	room, _ := reg.GetRoom(roomID)
	room.mu.Lock()
	conn := room.sessions["c1"].conn.(*fakeConn)
	room.mu.Unlock()
	before := conn.sentCount()

	sink := d.broadcastJobUpdate()
	assert.NotPanics(t, func() {
		sink(core.NewStreamJobUpdate(3))
	})
	assert.Equal(t, before+1, conn.sentCount())
}
