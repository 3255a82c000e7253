package transcribe

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// LoadPhase is reported by ModelCache.Get when the cached model is replaced.
type LoadPhase int

const (
	PhaseLoading LoadPhase = iota
	PhaseDownloading
)

type cacheKey struct {
	backend string
	name    string
	device  string
}

// ModelCache holds the single loaded model. A new model is opened only when
// the backend, model name or device differs from the cached one.
type ModelCache struct {
	mu      sync.Mutex
	backend Backend
	key     cacheKey
	model   Model
}

func NewModelCache(backend Backend) *ModelCache {
	return &ModelCache{backend: backend}
}

// Get returns the model for name/device, reporting load phases through
// onPhase. onPhase is not called on a cache hit.
func (c *ModelCache) Get(ctx context.Context, name, device string, onPhase func(LoadPhase)) (Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend == nil {
		return nil, fmt.Errorf("no transcription backend configured")
	}

	key := cacheKey{backend: c.backend.Name(), name: name, device: device}
	if c.model != nil && c.key == key {
		return c.model, nil
	}

	if onPhase != nil {
		onPhase(PhaseLoading)
	}
	log.Printf("Model: Loading %s model %q on %q", key.backend, name, device)

	model, err := c.backend.Open(ctx, name, device, func() {
		if onPhase != nil {
			onPhase(PhaseDownloading)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", name, err)
	}

	c.model = model
	c.key = key
	return model, nil
}

// Loaded reports whether a model for name/device is cached.
func (c *ModelCache) Loaded(name, device string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model == nil || c.backend == nil {
		return false
	}
	return c.key == cacheKey{backend: c.backend.Name(), name: name, device: device}
}
