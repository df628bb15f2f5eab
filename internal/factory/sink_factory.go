package factory

import (
	"fmt"
	"log"
	"sort"

	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
)

// SinkFactory defines a function that creates a sink from the configuration.
type SinkFactory func(cfg *config.Config) (model.Sink, error)

// registry holds the mapping of sink names to their factory functions.
var registry = make(map[string]SinkFactory)

// RegisterSink registers a new sink type with its factory function.
func RegisterSink(name string, factory SinkFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("sink type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered returns the names of all registered sinks, sorted.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds the sinks listed in engine.sinks, in order. Sinks created
// before a failure are closed.
func Create(cfg *config.Config) ([]model.Sink, error) {
	var sinks []model.Sink

	for _, name := range cfg.Engine.Sinks {
		log.Printf("Creating sink: '%s'\n", name)

		factory, ok := registry[name]
		if !ok {
			closeAll(sinks)
			return nil, fmt.Errorf("unknown sink type: '%s'", name)
		}

		sink, err := factory(cfg)
		if err != nil {
			closeAll(sinks)
			return nil, fmt.Errorf("error creating sink '%s': %w", name, err)
		}

		sinks = append(sinks, sink)
	}

	return sinks, nil
}

func closeAll(sinks []model.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Printf("Error closing sink %s: %v", s.Name(), err)
		}
	}
}
