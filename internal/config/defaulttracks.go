package config

// StaticTrackProvider serves a fixed playlist read once from
// configuration, implementing app.DefaultTrackProvider.
type StaticTrackProvider struct {
	urls []string
}

// NewStaticTrackProvider wraps the configured default track URL list.
func NewStaticTrackProvider(urls []string) StaticTrackProvider {
	return StaticTrackProvider{urls: urls}
}

func (p StaticTrackProvider) DefaultTracks() []string { return p.urls }
