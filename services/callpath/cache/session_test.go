// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingLocator is a Locator stub that counts underlying lookups so the
// tests can assert memoization behavior.
type countingLocator struct {
	files map[string]string
	calls int64
	err   error
}

func (l *countingLocator) Locate(_ context.Context, module string) (string, bool, error) {
	atomic.AddInt64(&l.calls, 1)
	if l.err != nil {
		return "", false, l.err
	}
	path, ok := l.files[module]
	return path, ok, nil
}

// writeProject materializes source files under a temp project root.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

const utilsSource = `defmodule App.Utils do
  def format(value) do
    value
  end
end
`

func TestSession_LocateModule_Memoizes(t *testing.T) {
	locator := &countingLocator{files: map[string]string{
		"App.Utils": "lib/utils.ex",
	}}
	session := NewSession(t.TempDir(), locator, nil)
	defer session.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		path, found, err := session.LocateModule(ctx, "App.Utils")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "lib/utils.ex", path)
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&locator.calls),
		"repeated lookups must hit the cache, not the locator")
}

func TestSession_LocateModule_CachesMisses(t *testing.T) {
	locator := &countingLocator{files: map[string]string{}}
	session := NewSession(t.TempDir(), locator, nil)
	defer session.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, found, err := session.LocateModule(ctx, "External.Module")
		require.NoError(t, err)
		assert.False(t, found)
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&locator.calls),
		"negative results must be cached too")
}

func TestSession_LocateModule_PropagatesErrors(t *testing.T) {
	wantErr := errors.New("search process died")
	locator := &countingLocator{err: wantErr}
	session := NewSession(t.TempDir(), locator, nil)
	defer session.Close()

	_, _, err := session.LocateModule(context.Background(), "App.Utils")
	require.ErrorIs(t, err, wantErr)
}

func TestSession_Definitions_ParsesAndIndexes(t *testing.T) {
	root := writeProject(t, map[string]string{
		"lib/utils.ex": utilsSource,
	})
	locator := &countingLocator{files: map[string]string{
		"App.Utils": "lib/utils.ex",
	}}
	session := NewSession(root, locator, nil)
	defer session.Close()

	src, found, err := session.Definitions(context.Background(), "App.Utils")
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, src)

	assert.Equal(t, "lib/utils.ex", src.Path)
	assert.NotNil(t, src.Result.Root())
	assert.True(t, src.Index.Defines("App.Utils", "format", 1))
}

func TestSession_Definitions_MemoizesParse(t *testing.T) {
	root := writeProject(t, map[string]string{
		"lib/utils.ex": utilsSource,
	})
	locator := &countingLocator{files: map[string]string{
		"App.Utils": "lib/utils.ex",
	}}
	session := NewSession(root, locator, nil)
	defer session.Close()

	ctx := context.Background()
	first, _, err := session.Definitions(ctx, "App.Utils")
	require.NoError(t, err)
	second, _, err := session.Definitions(ctx, "App.Utils")
	require.NoError(t, err)

	assert.Same(t, first, second, "repeated Definitions must return the cached value")
	assert.Equal(t, int64(1), atomic.LoadInt64(&locator.calls))
}

func TestSession_Definitions_UnknownModule(t *testing.T) {
	locator := &countingLocator{files: map[string]string{}}
	session := NewSession(t.TempDir(), locator, nil)
	defer session.Close()

	src, found, err := session.Definitions(context.Background(), "External.Module")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, src)
}

func TestSession_Definitions_ParseFailureIsFatal(t *testing.T) {
	root := writeProject(t, map[string]string{
		"lib/broken.ex": "defmodule App.Broken do\n  def oops( do\nend\n",
	})
	locator := &countingLocator{files: map[string]string{
		"App.Broken": "lib/broken.ex",
	}}
	session := NewSession(root, locator, nil)
	defer session.Close()

	_, _, err := session.Definitions(context.Background(), "App.Broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lib/broken.ex",
		"the error must name the offending file")
}

func TestSession_ConcurrentAccess(t *testing.T) {
	root := writeProject(t, map[string]string{
		"lib/utils.ex": utilsSource,
	})
	locator := &countingLocator{files: map[string]string{
		"App.Utils": "lib/utils.ex",
	}}
	session := NewSession(root, locator, nil)
	defer session.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src, found, err := session.Definitions(context.Background(), "App.Utils")
			assert.NoError(t, err)
			assert.True(t, found)
			assert.NotNil(t, src)
		}()
	}
	wg.Wait()
}

func TestSession_Close_Idempotent(t *testing.T) {
	root := writeProject(t, map[string]string{
		"lib/utils.ex": utilsSource,
	})
	locator := &countingLocator{files: map[string]string{
		"App.Utils": "lib/utils.ex",
	}}
	session := NewSession(root, locator, nil)

	_, _, err := session.Definitions(context.Background(), "App.Utils")
	require.NoError(t, err)

	session.Close()
	session.Close()
}

func TestSession_Stats(t *testing.T) {
	locator := &countingLocator{files: map[string]string{
		"App.Utils": "lib/utils.ex",
	}}
	session := NewSession(t.TempDir(), locator, nil)
	defer session.Close()

	ctx := context.Background()
	_, _, _ = session.LocateModule(ctx, "App.Utils")
	_, _, _ = session.LocateModule(ctx, "App.Utils")

	hits, misses := session.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}
