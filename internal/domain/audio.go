package domain

// AudioSource is an opaque pointer to an audio blob hosted outside
// the core. Order within a Room's queue is significant; URLs within
// a single queue are unique.
type AudioSource struct {
	URL string `json:"url"`
}

// PlaybackKind is the tagged discriminator of PlaybackState.
type PlaybackKind string

const (
	Paused  PlaybackKind = "paused"
	Playing PlaybackKind = "playing"
)

// PlaybackState is the room-wide tagged playback state. Invariant:
// Kind == Playing implies AudioSource is present in the room's queue;
// removing the current track resets this to the zero (initial) state.
type PlaybackState struct {
	Kind                PlaybackKind `json:"type"`
	AudioSource         string       `json:"audioSource"`
	ServerTimeToExecute int64        `json:"serverTimeToExecute"`
	TrackPositionSecs   float64      `json:"trackPositionSeconds"`
}

// InitialPlaybackState is the zero value every Room starts in and
// returns to whenever the current track is removed from the queue.
func InitialPlaybackState() PlaybackState {
	return PlaybackState{Kind: Paused, AudioSource: "", ServerTimeToExecute: 0, TrackPositionSecs: 0}
}

// Queue is an ordered, URL-unique list of AudioSources.
type Queue struct {
	sources []AudioSource
}

// NewQueue builds a Queue from urls, silently dropping duplicates and
// keeping first-seen order — the Room layer is expected to reject
// duplicate uploads before they reach here, but the queue itself never
// admits a duplicate URL even if asked to.
func NewQueue(urls []string) *Queue {
	q := &Queue{sources: make([]AudioSource, 0, len(urls))}
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		q.sources = append(q.sources, AudioSource{URL: u})
	}
	return q
}

// Contains reports whether url is present in the queue.
func (q *Queue) Contains(url string) bool {
	for _, s := range q.sources {
		if s.URL == url {
			return true
		}
	}
	return false
}

// URLs returns the queue's URLs in order.
func (q *Queue) URLs() []string {
	out := make([]string, len(q.sources))
	for i, s := range q.sources {
		out[i] = s.URL
	}
	return out
}

// Sources returns a copy of the queue's AudioSources.
func (q *Queue) Sources() []AudioSource {
	out := make([]AudioSource, len(q.sources))
	copy(out, q.sources)
	return out
}

// Len reports the number of entries in the queue.
func (q *Queue) Len() int { return len(q.sources) }

// Replace swaps the queue contents for urls (deduplicated).
func (q *Queue) Replace(urls []string) {
	*q = *NewQueue(urls)
}

// Remove deletes urls from the queue and reports whether any entry
// was actually removed.
func (q *Queue) Remove(urls []string) bool {
	toRemove := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		toRemove[u] = struct{}{}
	}
	kept := q.sources[:0:0]
	removed := false
	for _, s := range q.sources {
		if _, drop := toRemove[s.URL]; drop {
			removed = true
			continue
		}
		kept = append(kept, s)
	}
	q.sources = kept
	return removed
}
