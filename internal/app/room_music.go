package app

import (
	"context"
	"sync/atomic"

	"github.com/beatsync/server/internal/core"
	"github.com/beatsync/server/internal/domain"
)

// MusicProvider is the external music search/stream collaborator,
// reached over HTTP. The Room only ever calls it; it never holds a
// reference back into room state.
type MusicProvider interface {
	Search(ctx context.Context, query string) ([]core.MusicTrack, error)
	StreamURL(ctx context.Context, trackID string) (string, error)
}

// activeJobs is process-wide rather than per-room: the provider is a
// shared rate-limited collaborator, so job-count backpressure is
// reported globally, not per room.
var activeJobs atomic.Int32

// HandleSearchMusic forwards req to provider and unicasts the results
// to the requester, bracketing the call with STREAM_JOB_UPDATE
// broadcasts to every room sharing the provider.
func (r *Room) HandleSearchMusic(ctx context.Context, clientID domain.ClientID, req core.SearchMusicRequest, provider MusicProvider, notify func(core.StreamJobUpdateMessage)) error {
	count := activeJobs.Add(1)
	notify(core.NewStreamJobUpdate(int(count)))
	defer func() {
		count := activeJobs.Add(-1)
		notify(core.NewStreamJobUpdate(int(count)))
	}()

	tracks, err := provider.Search(ctx, req.Query)
	if err != nil {
		r.log.Warn().Err(err).Str("query", req.Query).Msg("music search failed")
		return err
	}
	return r.withLock(func() ([]outboundFrame, error) {
		return []outboundFrame{frameOnly(core.NewSearchResultsMessage(req.JobID, tracks), clientID)}, nil
	})
}

// HandleStreamMusic forwards req to provider and unicasts the
// resulting playable URL to the requester.
func (r *Room) HandleStreamMusic(ctx context.Context, clientID domain.ClientID, req core.StreamMusicRequest, provider MusicProvider, notify func(core.StreamJobUpdateMessage)) error {
	count := activeJobs.Add(1)
	notify(core.NewStreamJobUpdate(int(count)))
	defer func() {
		count := activeJobs.Add(-1)
		notify(core.NewStreamJobUpdate(int(count)))
	}()

	url, err := provider.StreamURL(ctx, req.TrackID)
	if err != nil {
		r.log.Warn().Err(err).Str("trackId", req.TrackID).Msg("music stream lookup failed")
		return err
	}
	return r.withLock(func() ([]outboundFrame, error) {
		return []outboundFrame{frameOnly(core.NewStreamURLMessage(req.JobID, url), clientID)}, nil
	})
}
