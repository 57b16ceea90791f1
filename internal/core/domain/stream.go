package domain

// StreamType identifies which feed of an account is being acquired.
type StreamType string

const (
	StreamTimeline StreamType = "timeline"
	StreamMentions StreamType = "mentions"
)

// Valid reports whether s is a known stream type.
func (s StreamType) Valid() bool {
	return s == StreamTimeline || s == StreamMentions
}

// StreamKey identifies one unit of acquisition work.
type StreamKey struct {
	Account string
	Stream  StreamType
}

func (k StreamKey) String() string {
	return k.Account + "/" + string(k.Stream)
}
