// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSetDelete(t *testing.T) {
	store := NewMemoryStore()

	_, ok := store.Get("u1", "m1")
	assert.False(t, ok)

	store.Set("u1", "m1", &LensSession{SelectedLensKey: "utilitarian"})
	s, ok := store.Get("u1", "m1")
	require.True(t, ok)
	assert.Equal(t, "utilitarian", s.SelectedLensKey)

	store.Delete("u1", "m1")
	_, ok = store.Get("u1", "m1")
	assert.False(t, ok)
	assert.Zero(t, store.Len())
}

func TestMemoryStore_KeyedByUserAndMessage(t *testing.T) {
	store := NewMemoryStore()
	store.Set("u1", "m1", &LensSession{SelectedLensKey: "a"})
	store.Set("u2", "m1", &LensSession{SelectedLensKey: "b"})
	store.Set("u1", "m2", &LensSession{SelectedLensKey: "c"})

	s, _ := store.Get("u2", "m1")
	assert.Equal(t, "b", s.SelectedLensKey)
	assert.Equal(t, 3, store.Len())
}

func TestMemoryStore_InitOverwrites(t *testing.T) {
	store := NewMemoryStore()
	store.Set("u1", "m1", &LensSession{SelectedLensKey: "stale"})
	store.Set("u1", "m1", &LensSession{})

	s, ok := store.Get("u1", "m1")
	require.True(t, ok)
	assert.Empty(t, s.SelectedLensKey)
}

func TestGuardSet_TryAcquireRelease(t *testing.T) {
	g := NewGuardSet()

	assert.True(t, g.TryAcquire("m1"))
	assert.False(t, g.TryAcquire("m1"))
	assert.True(t, g.Held("m1"))

	g.Release("m1")
	assert.False(t, g.Held("m1"))
	assert.True(t, g.TryAcquire("m1"))
}

func TestGuardSet_ReleaseAbsentIsNoop(t *testing.T) {
	g := NewGuardSet()
	g.Release("never-acquired")
	assert.False(t, g.Held("never-acquired"))
}

func TestGuardSet_ConcurrentAcquire(t *testing.T) {
	g := NewGuardSet()

	const goroutines = 32
	wins := make(chan bool, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- g.TryAcquire("m1")
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one goroutine may pass the guard")
}
