package streamserver

import (
	"encoding/binary"
	"fmt"

	"github.com/fsgdecoder/core/pkg/decoder/dtype"
)

// decodeScoreFrame parses a binary websocket message into a per-senone
// log-probability vector: a flat sequence of little-endian int32 values,
// one per senone, in senone-id order.
func decodeScoreFrame(data []byte) ([]dtype.LogProb, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("streamserver: score frame length %d is not a multiple of 4", len(data))
	}
	n := len(data) / 4
	scores := make([]dtype.LogProb, n)
	for i := 0; i < n; i++ {
		scores[i] = dtype.LogProb(int32(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return scores, nil
}
