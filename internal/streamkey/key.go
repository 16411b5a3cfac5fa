// Package streamkey defines the (streamId, partition) key identifying one
// logical substream of the overlay.
package streamkey

import "fmt"

// Key identifies a single stream partition.
type Key struct {
	StreamID  string
	Partition int
}

// New constructs a Key. Partition must be non-negative.
func New(streamID string, partition int) (Key, error) {
	if partition < 0 {
		return Key{}, fmt.Errorf("streamkey: partition must be non-negative, got %d", partition)
	}
	return Key{StreamID: streamID, Partition: partition}, nil
}

// String returns the canonical textual form "<streamId>::<partition>"
// used as a map key and in log/event payloads.
func (k Key) String() string {
	return fmt.Sprintf("%s::%d", k.StreamID, k.Partition)
}
