package publisher

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/harish-x/log-boy/internal/deadletter"
)

// FakeBus records publishes. Individual publishes whose payload id is listed in FailIDs fail.
type FakeBus struct {
	BatchErr   error
	FailIDs    map[string]bool
	Receivers  int64
	BatchCalls int
	Singles    []string // ids published individually, in order
	Batched    []string
}

func payloadID(payload []byte) string {
	var v struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(payload, &v)
	return v.ID
}

func (b *FakeBus) PublishBatch(_ context.Context, _ string, payloads [][]byte) ([]int64, error) {
	b.BatchCalls++
	if b.BatchErr != nil {
		return nil, b.BatchErr
	}
	out := make([]int64, len(payloads))
	for i, p := range payloads {
		b.Batched = append(b.Batched, payloadID(p))
		out[i] = b.Receivers
	}
	return out, nil
}

func (b *FakeBus) Publish(_ context.Context, _ string, payload []byte) (int64, error) {
	id := payloadID(payload)
	b.Singles = append(b.Singles, id)
	if b.FailIDs[id] {
		return 0, errors.New("publish failed")
	}
	return b.Receivers, nil
}

// FakeSink records dead letters.
type FakeSink struct {
	Letters []*deadletter.Letter
}

func (s *FakeSink) Send(_ context.Context, l *deadletter.Letter) error {
	s.Letters = append(s.Letters, l)
	return nil
}
