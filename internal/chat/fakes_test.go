package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"peersupport/internal/models"
)

// fakeTransport records everything written to it and can be flipped into a
// closed or ping-failing state to exercise the eviction paths.
type fakeTransport struct {
	mu       sync.Mutex
	frames   [][]byte
	pings    int
	closed   bool
	failPing bool
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("transport closed")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.frames = append(f.frames, buf)
	return nil
}

func (f *fakeTransport) WritePing() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.failPing {
		return errors.New("ping failed")
	}
	f.pings++
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeTransport) isClosed() bool {
	return !f.IsOpen()
}

func (f *fakeTransport) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

// framesOfType decodes every recorded frame and returns those with the given
// wire type, as generic maps for field assertions.
func (f *fakeTransport) framesOfType(frameType models.FrameType) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []map[string]interface{}
	for _, raw := range f.frames {
		var decoded map[string]interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			continue
		}
		if decoded["type"] == string(frameType) {
			out = append(out, decoded)
		}
	}
	return out
}

func (f *fakeTransport) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// fakeStore is an in-memory stand-in for the external message store.
type fakeStore struct {
	mu         sync.Mutex
	seq        int
	messages   []*models.Message
	failAppend bool
	failQuery  bool
}

func (f *fakeStore) Append(ctx context.Context, roomID, userID, content, riskLevel string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend {
		return nil, errors.New("store unavailable")
	}
	f.seq++
	msg := &models.Message{
		ID:        fmt.Sprintf("m%d", f.seq),
		RoomID:    roomID,
		UserID:    userID,
		Content:   content,
		RiskLevel: riskLevel,
		CreatedAt: time.Unix(0, 0).Add(time.Duration(f.seq) * time.Second),
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeStore) RecentByRoom(ctx context.Context, roomID string, limit int) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failQuery {
		return nil, errors.New("store unavailable")
	}
	var out []*models.Message
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if f.messages[i].RoomID == roomID {
			out = append(out, f.messages[i])
		}
	}
	return out, nil
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func mustFrame(frame models.Frame) []byte {
	data, err := json.Marshal(frame)
	if err != nil {
		panic(err)
	}
	return data
}
