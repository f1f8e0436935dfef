package enrichment

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errNetwork = errors.New("connection refused")

// jpegStub is enough of a JPEG for MIME sniffing; it is never decoded.
var jpegStub = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

const jpegStubURI = "data:image/jpeg;base64,/9j/4AAQ"

func id3Frame(id string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(id)
	binary.Write(&buf, binary.BigEndian, uint32(len(body)))
	buf.Write([]byte{0, 0})
	buf.Write(body)
	return buf.Bytes()
}

func textFrame(id, text string) []byte {
	return id3Frame(id, append([]byte{0x00}, text...))
}

func apicFrame(mime string, data []byte) []byte {
	var body bytes.Buffer
	body.WriteByte(0x00)
	body.WriteString(mime)
	body.WriteByte(0x00)
	body.WriteByte(0x03)
	body.WriteByte(0x00)
	body.Write(data)
	return id3Frame("APIC", body.Bytes())
}

// buildMP3 returns an ID3v2.3 tagged buffer followed by a fake frame header.
func buildMP3(frames ...[]byte) []byte {
	var payload bytes.Buffer
	for _, f := range frames {
		payload.Write(f)
	}
	size := payload.Len()

	var buf bytes.Buffer
	buf.WriteString("ID3")
	buf.Write([]byte{0x03, 0x00, 0x00})
	buf.Write([]byte{
		byte(size>>21) & 0x7F,
		byte(size>>14) & 0x7F,
		byte(size>>7) & 0x7F,
		byte(size) & 0x7F,
	})
	buf.Write(payload.Bytes())
	buf.Write([]byte{0xFF, 0xFB, 0x90, 0x00})
	return buf.Bytes()
}

type fetchKey struct {
	url  string
	mode Mode
}

// mockFetcher implements Fetcher for testing
type mockFetcher struct {
	mu         sync.Mutex
	data       map[fetchKey][]byte
	errs       map[fetchKey]error
	fetchCount int32
	inFlight   int32
	maxFlight  int32
	delay      time.Duration
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		data: make(map[fetchKey][]byte),
		errs: make(map[fetchKey]error),
	}
}

func (m *mockFetcher) SetData(url string, mode Mode, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[fetchKey{url, mode}] = data
}

func (m *mockFetcher) SetError(url string, mode Mode, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[fetchKey{url, mode}] = err
}

func (m *mockFetcher) Fetch(ctx context.Context, url string, mode Mode) ([]byte, error) {
	atomic.AddInt32(&m.fetchCount, 1)
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		max := atomic.LoadInt32(&m.maxFlight)
		if n <= max || atomic.CompareAndSwapInt32(&m.maxFlight, max, n) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := fetchKey{url, mode}
	if err, ok := m.errs[k]; ok {
		return nil, err
	}
	if data, ok := m.data[k]; ok {
		return data, nil
	}
	return nil, errNetwork
}

func (m *mockFetcher) GetFetchCount() int {
	return int(atomic.LoadInt32(&m.fetchCount))
}

// mockSink implements CoverSink for testing
type mockSink struct {
	mu      sync.Mutex
	current int
	pushed  map[int]string
}

func newMockSink(current int) *mockSink {
	return &mockSink{current: current, pushed: make(map[int]string)}
}

func (s *mockSink) UpdateCoverIfCurrent(id int, cover string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.current {
		return false
	}
	s.pushed[id] = cover
	return true
}

func (s *mockSink) Pushed(id int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.pushed[id]
	return c, ok
}
