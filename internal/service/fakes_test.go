package service

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"vworkproxy/internal/model"
)

func nullLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

type fakeUpstream struct {
	mu      sync.Mutex
	payload any
	err     error
	calls   []map[string]any
	ports   []int
}

func (f *fakeUpstream) Call(_ context.Context, port int, body map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, body)
	f.ports = append(f.ports, port)
	return f.payload, f.err
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingPusher struct {
	mu       sync.Mutex
	payloads []map[string]any
	err      error
}

func (r *recordingPusher) Push(_ context.Context, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return r.err
}

func (r *recordingPusher) all() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.payloads...)
}

type memorySink struct {
	mu      sync.Mutex
	entries []model.LogEntry
	err     error
}

func (m *memorySink) Append(entry model.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memorySink) all() []model.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.LogEntry(nil), m.entries...)
}

type fakeDeliverer struct {
	mu       sync.Mutex
	result   DeliveryResult
	urls     []string
	payloads []any
}

func (f *fakeDeliverer) Deliver(_ context.Context, url string, payload any) DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	f.payloads = append(f.payloads, payload)
	return f.result
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

// gate 在 release 之前阻塞所有推送和回调
type gate struct {
	release chan struct{}
	entered chan struct{}
}

func newGate() *gate {
	return &gate{release: make(chan struct{}), entered: make(chan struct{}, 16)}
}

func (g *gate) Push(_ context.Context, _ map[string]any) error {
	g.entered <- struct{}{}
	<-g.release
	return nil
}

func (g *gate) Deliver(_ context.Context, _ string, _ any) DeliveryResult {
	g.entered <- struct{}{}
	<-g.release
	return DeliveryResult{Success: true, Message: CallbackSuccessMessage}
}
