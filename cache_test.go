package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPackages = []Package{
	{Name: "mdgriffith/elm-ui", Summary: "Layout and style", License: "BSD-3-Clause", Version: "1.1.8"},
	{Name: "elm/json", Summary: "Encode and decode JSON values", License: "BSD-3-Clause", Version: "1.1.3"},
	{Name: "elm/http", Summary: "Make HTTP requests", License: "BSD-3-Clause", Version: "2.0.0"},
}

// countingFetcher returns an IndexFetcher that counts its calls and
// returns the given packages.
func countingFetcher(calls *atomic.Int32, packages []Package) IndexFetcher {
	return func(context.Context) ([]Package, error) {
		calls.Add(1)

		return packages, nil
	}
}

func TestPackageIndex_FetchesOnce(t *testing.T) {
	var calls atomic.Int32

	index := NewPackageIndex(countingFetcher(&calls, testPackages))

	first, err := index.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, testPackages, first)

	second, err := index.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Same(t, &first[0], &second[0], "second call should return the stored slice")
}

func TestPackageIndex_FailureIsNotCached(t *testing.T) {
	var calls atomic.Int32

	fetchErr := errors.New("connection refused")
	fail := true

	index := NewPackageIndex(func(context.Context) ([]Package, error) {
		calls.Add(1)

		if fail {
			return nil, fetchErr
		}

		return testPackages, nil
	})

	_, err := index.Get(context.Background())
	require.ErrorIs(t, err, fetchErr)
	assert.Equal(t, int32(1), calls.Load())

	fail = false

	packages, err := index.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, packages, 3)
	assert.Equal(t, int32(2), calls.Load(), "failed fetch should be retried")
}

func TestPackageIndex_EmptyIndexIsStored(t *testing.T) {
	var calls atomic.Int32

	index := NewPackageIndex(countingFetcher(&calls, nil))

	packages, err := index.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, packages)
	assert.Empty(t, packages)

	_, err = index.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPackageIndex_ConcurrentColdCallers(t *testing.T) {
	var calls atomic.Int32

	started := make(chan struct{})
	release := make(chan struct{})

	index := NewPackageIndex(func(context.Context) ([]Package, error) {
		if calls.Add(1) == 1 {
			close(started)
		}

		<-release

		return testPackages, nil
	})

	const callers = 8

	results := make([][]Package, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		results[0], errs[0] = index.Get(context.Background())
	}()

	<-started

	for i := 1; i < callers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			results[i], errs[i] = index.Get(context.Background())
		}(i)
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Same(t, &results[0][0], &results[i][0], "caller %d saw a different index", i)
	}
}

func TestPackageIndex_CancelledWaiter(t *testing.T) {
	var calls atomic.Int32

	started := make(chan struct{})
	release := make(chan struct{})

	index := NewPackageIndex(func(context.Context) ([]Package, error) {
		calls.Add(1)
		close(started)
		<-release

		return testPackages, nil
	})

	done := make(chan error, 1)

	go func() {
		_, err := index.Get(context.Background())
		done <- err
	}()

	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := index.Get(ctx)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, <-done)

	packages, err := index.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, packages, 3)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPackageIndex_CancelledFetchLeavesIndexEmpty(t *testing.T) {
	var calls atomic.Int32

	index := NewPackageIndex(func(ctx context.Context) ([]Package, error) {
		calls.Add(1)

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		return testPackages, nil
	})

	ctx, cancel := context.WithCancel(context.Background())

	// Get either gives up before taking the lock or runs a fetch that
	// sees the cancelled context. Both must leave the index empty.
	cancel()

	_, err := index.Get(ctx)
	require.ErrorIs(t, err, context.Canceled)

	packages, err := index.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, packages, 3)
}

func TestDocsCache_GetOrFetch(t *testing.T) {
	cache := NewDocsCache()

	var calls atomic.Int32

	fetch := func(context.Context) (json.RawMessage, error) {
		calls.Add(1)

		return json.RawMessage(`[{"name":"Json.Decode"}]`), nil
	}

	first, err := cache.GetOrFetch(context.Background(), "elm", "json", "1.1.3", fetch)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Json.Decode"}]`, string(first))

	second, err := cache.GetOrFetch(context.Background(), "elm", "json", "1.1.3", fetch)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	_, err = cache.GetOrFetch(context.Background(), "elm", "json", "1.1.2", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "different version should miss")
}

func TestDocsCache_ErrorsAreNotCached(t *testing.T) {
	cache := NewDocsCache()

	var calls atomic.Int32

	fetchErr := errors.New("boom")

	fetch := func(context.Context) (json.RawMessage, error) {
		if calls.Add(1) == 1 {
			return nil, fetchErr
		}

		return json.RawMessage(`[]`), nil
	}

	_, err := cache.GetOrFetch(context.Background(), "elm", "http", "2.0.0", fetch)
	require.ErrorIs(t, err, fetchErr)

	docs, err := cache.GetOrFetch(context.Background(), "elm", "http", "2.0.0", fetch)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(docs))
	assert.Equal(t, int32(2), calls.Load())
}
