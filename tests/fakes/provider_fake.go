package fakes

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/systmms/secretref/pkg/provider"
)

// FakeProvider is a manual fake implementation of provider.Provider.
//
// It stores secrets in memory and can be configured to return errors, add
// latency or block until released, and it counts calls per key so tests can
// check deduplication and coalescing.
//
// Example usage:
//
//	fake := fakes.NewFakeProvider("gcp").
//	    WithSecret("db/password", "secret123").
//	    WithError("api/key", provider.NotFoundError{Provider: "gcp", Key: "api/key"})
//
//	value, err := fake.Get(ctx, "db/password", provider.LatestVersion)
type FakeProvider struct {
	name string

	// Test data storage
	secrets map[string]string // key or key#version -> value

	// Behavior control
	failOn   map[string][]error // key -> errors returned by successive calls
	getDelay time.Duration
	gate     chan struct{}
	conn     bool
	connMsg  string

	callCount map[string]int // method call tracking
	getCount  map[string]int // Get calls per key

	mu sync.RWMutex
}

// NewFakeProvider creates a new FakeProvider with the given name.
func NewFakeProvider(name string) *FakeProvider {
	return &FakeProvider{
		name:      name,
		secrets:   make(map[string]string),
		failOn:    make(map[string][]error),
		conn:      true,
		connMsg:   "fake provider reachable",
		callCount: make(map[string]int),
		getCount:  make(map[string]int),
	}
}

// WithSecret sets the latest value of key.
func (f *FakeProvider) WithSecret(key, value string) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.secrets[key] = value
	return f
}

// WithVersion sets the value returned for key at a specific version.
func (f *FakeProvider) WithVersion(key, version, value string) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.secrets[key+"#"+version] = value
	return f
}

// WithError makes every Get of key fail with err.
func (f *FakeProvider) WithError(key string, err error) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failOn[key] = []error{err}
	return f
}

// WithErrors makes successive Gets of key fail with errs in order. A nil
// entry lets that call succeed. The last entry repeats.
func (f *FakeProvider) WithErrors(key string, errs ...error) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failOn[key] = errs
	return f
}

// ClearError removes any error configured for key.
func (f *FakeProvider) ClearError(key string) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.failOn, key)
	return f
}

// WithDelay adds artificial latency to Get calls. The delay is cut short if
// the call's context ends.
func (f *FakeProvider) WithDelay(d time.Duration) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getDelay = d
	return f
}

// Block makes every Get wait until Release is called or its context ends.
func (f *FakeProvider) Block() *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gate = make(chan struct{})
	return f
}

// Release unblocks all Gets waiting since Block.
func (f *FakeProvider) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// WithConnection sets what TestConnection reports.
func (f *FakeProvider) WithConnection(ok bool, detail string) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.conn = ok
	f.connMsg = detail
	return f
}

// Name returns the provider's unique identifier.
func (f *FakeProvider) Name() string {
	return f.name
}

// Get returns the configured value for name, or the configured error.
// Unknown keys fail with provider.NotFoundError.
func (f *FakeProvider) Get(ctx context.Context, name, version string) (string, error) {
	f.mu.Lock()
	f.callCount["Get"]++
	f.getCount[name]++
	n := f.getCount[name]
	delay, gate := f.getDelay, f.gate
	f.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", provider.Unavailable(f.name, ctx.Err())
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", provider.Unavailable(f.name, ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return "", provider.Unavailable(f.name, err)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if errs, ok := f.failOn[name]; ok && len(errs) > 0 {
		i := n - 1
		if i >= len(errs) {
			i = len(errs) - 1
		}
		if errs[i] != nil {
			return "", errs[i]
		}
	}

	key := name
	if version != "" && version != provider.LatestVersion {
		key = name + "#" + version
	}
	value, ok := f.secrets[key]
	if !ok {
		return "", provider.NotFoundError{Provider: f.name, Key: name, Version: version}
	}
	return value, nil
}

// Put stores value as the latest value of name.
func (f *FakeProvider) Put(ctx context.Context, name, value string) error {
	f.trackCall("Put")
	if err := ctx.Err(); err != nil {
		return provider.Unavailable(f.name, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.secrets[name] = value
	return nil
}

// List returns the names with a latest value, sorted.
func (f *FakeProvider) List(ctx context.Context) ([]string, error) {
	f.trackCall("List")

	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.secrets))
	for k := range f.secrets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

// TestConnection reports the configured connection state.
func (f *FakeProvider) TestConnection(ctx context.Context) (bool, string) {
	f.trackCall("TestConnection")

	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.conn, f.connMsg
}

// GetCallCount returns the number of times a method was called.
// Method names: "Get", "Put", "List", "TestConnection".
func (f *FakeProvider) GetCallCount(method string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.callCount[method]
}

// GetCount returns the number of Get calls for one key.
func (f *FakeProvider) GetCount(key string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.getCount[key]
}

// ResetCallCount resets all call counters to zero.
func (f *FakeProvider) ResetCallCount() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callCount = make(map[string]int)
	f.getCount = make(map[string]int)
}

// trackCall increments the call counter for a method.
func (f *FakeProvider) trackCall(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callCount[method]++
}

// String returns a string representation of the fake provider.
func (f *FakeProvider) String() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return fmt.Sprintf("FakeProvider{name=%s, secrets=%d}", f.name, len(f.secrets))
}

var _ provider.Provider = (*FakeProvider)(nil)
