// Package sink delivers analysis results to their destinations.
package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/creasty/defaults"
	"github.com/mitchellh/mapstructure"

	"firestige.xyz/pcaplens/internal/core"
)

// Sink receives finished analysis results. Report may be called from
// several goroutines.
type Sink interface {
	Name() string
	Report(ctx context.Context, res *core.AnalysisResult) error
	Close() error
}

// Factory builds a sink from its raw option map.
type Factory func(options map[string]any) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a sink type available to New.
func Register(typ string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[typ] = f
}

// New builds a sink of the registered type.
func New(typ string, options map[string]any) (Sink, error) {
	mu.RLock()
	f, ok := factories[typ]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrSinkUnknown, typ)
	}
	s, err := f(options)
	if err != nil {
		return nil, fmt.Errorf("sink %s: %w", typ, err)
	}
	return s, nil
}

// Types lists the registered sink types in sorted order.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for typ := range factories {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register(TypeStdout, newStdoutSink)
	Register(TypeFile, newFileSink)
	Register(TypeKafka, newKafkaSink)
}

// decodeOptions fills out from defaults tags, then from the option map.
func decodeOptions(options map[string]any, out any) error {
	if err := defaults.Set(out); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

// Multi fans a result out to every sink, in order. All sinks are tried
// even when one fails; the first error is returned.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Report(ctx context.Context, res *core.AnalysisResult) error {
	var first error
	for _, s := range m {
		if err := s.Report(ctx, res); err != nil && first == nil {
			first = fmt.Errorf("sink %s: %w", s.Name(), err)
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
