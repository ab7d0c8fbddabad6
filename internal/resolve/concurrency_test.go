package resolve_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretref/internal/resolve"
	"github.com/systmms/secretref/tests/fakes"
)

// TestConcurrentPassesCoalesce verifies that overlapping passes needing the
// same missing key share one provider call
func TestConcurrentPassesCoalesce(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping concurrency test in short mode")
	}

	t.Parallel()

	fake := fakes.NewFakeProvider("gcp").WithSecret("shared", "coalesced").Block()
	t.Cleanup(fake.Release)
	engine := newTestEngine(t, fake)
	root := parseTree(t, `key: "${gcp:shared}"`)

	results := make([]*resolve.Result, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			results[i], errs[i] = engine.ResolveAll(ctx, root)
		}(i)
	}

	require.Eventually(t, func() bool { return fake.GetCount("shared") == 1 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	fake.Release()
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Empty(t, results[i].Failures)
		assert.Equal(t, "coalesced", lookup(t, results[i].Tree, "key").Text())
	}
	assert.Equal(t, 1, fake.GetCount("shared"))
}

// TestConcurrentResolveAndClear runs passes while the cache is cleared
// repeatedly; every pass must still resolve every key
func TestConcurrentResolveAndClear(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping concurrency test in short mode")
	}

	t.Parallel()

	fake := fakes.NewFakeProvider("gcp").WithDelay(time.Millisecond)
	for i := 0; i < 5; i++ {
		fake.WithSecret(fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
	}
	engine := newTestEngine(t, fake)
	root := parseTree(t, `
a: "${gcp:k0}"
b: "${gcp:k1}-${gcp:k2}"
c: ["${gcp:k3}", "${gcp:k4}"]
`)

	const passes = 20
	var wg sync.WaitGroup
	failures := make(chan string, passes)
	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.ResolveAll(context.Background(), root)
			if err != nil {
				failures <- err.Error()
				return
			}
			if !res.OK() {
				failures <- res.Err().Error()
				return
			}
			if n, _ := res.Tree.Lookup("b"); n.Text() != "v1-v2" {
				failures <- "b resolved to the wrong value"
			}
		}()
		if i%4 == 0 {
			engine.ClearCache()
		}
	}
	wg.Wait()
	close(failures)

	for f := range failures {
		t.Error(f)
	}
}

// TestConcurrentProviderCreation verifies that providers built on first use
// are created once even when many passes need them at the same time
func TestConcurrentProviderCreation(t *testing.T) {
	t.Parallel()

	secrets := testSecrets()
	secrets.Providers["mem"] = memoryConfig(map[string]interface{}{"x": "1"})
	engine := resolve.New(secrets)
	root := parseTree(t, `x: "${mem:x}"`)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.ResolveAll(context.Background(), root)
			if assert.NoError(t, err) {
				assert.True(t, res.OK())
			}
		}()
	}
	wg.Wait()
}
