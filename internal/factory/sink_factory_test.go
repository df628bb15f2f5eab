package factory

import (
	"context"
	"errors"
	"testing"

	"FlowSentry/internal/config"
	"FlowSentry/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSink struct {
	name   string
	closed bool
}

func (s *stubSink) Name() string { return s.name }
func (s *stubSink) Write(ctx context.Context, b *model.Batch) error { return nil }
func (s *stubSink) Close() error { s.closed = true; return nil }

func TestCreate(t *testing.T) {
	var created []*stubSink
	RegisterSink("test-ok", func(cfg *config.Config) (model.Sink, error) {
		s := &stubSink{name: "test-ok"}
		created = append(created, s)
		return s, nil
	})
	RegisterSink("test-fail", func(cfg *config.Config) (model.Sink, error) {
		return nil, errors.New("no backend")
	})

	cfg := &config.Config{}
	cfg.Engine.Sinks = []string{"test-ok"}
	sinks, err := Create(cfg)
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	assert.Equal(t, "test-ok", sinks[0].Name())

	cfg.Engine.Sinks = []string{"test-ok", "test-fail"}
	_, err = Create(cfg)
	assert.ErrorContains(t, err, "no backend")
	assert.True(t, created[len(created)-1].closed)

	cfg.Engine.Sinks = []string{"nope"}
	_, err = Create(cfg)
	assert.ErrorContains(t, err, "unknown sink type")

	assert.Contains(t, Registered(), "test-ok")
	assert.Panics(t, func() { RegisterSink("test-ok", nil) })
}

func TestCreate_NoneConfigured(t *testing.T) {
	sinks, err := Create(&config.Config{})
	require.NoError(t, err)
	assert.Empty(t, sinks)
}
