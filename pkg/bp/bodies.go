package bp

// TransportPlayBody is the payload for transport.play.
type TransportPlayBody struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	CoverURL string `json:"coverUrl,omitempty"`
}

// TransportSeekBody is the payload for transport.seek.
type TransportSeekBody struct {
	PositionMS int64 `json:"positionMs"`
}

// TransportSetVolumeBody is the payload for transport.setVolume.
// Volume is on the 0-100 display scale.
type TransportSetVolumeBody struct {
	Volume int `json:"volume"`
}

// TransportStatusReply is the reply body for transport.status.
type TransportStatusReply struct {
	State PlayerState `json:"state"`
}
