// Package cache_test tests fingerprint derivation and the audio stores.
package cache_test

import (
	"testing"

	"github.com/book-expert/voice-service/internal/cache"
	"github.com/stretchr/testify/assert"
)

func TestDeriveFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	options := map[string]string{"emotion": "warm", "pace": "normal"}

	first := cache.DeriveFingerprint("hello hollywood!", "holly", 24000, options)
	second := cache.DeriveFingerprint("hello hollywood!", "holly", 24000, options)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestDeriveFingerprint_OptionOrderIrrelevant(t *testing.T) {
	t.Parallel()

	// Maps iterate in random order; the derivation must not depend on it.
	first := cache.DeriveFingerprint("hello", "holly", 24000,
		map[string]string{"a": "1", "b": "2", "c": "3"})
	second := cache.DeriveFingerprint("hello", "holly", 24000,
		map[string]string{"c": "3", "b": "2", "a": "1"})

	assert.Equal(t, first, second)
}

func TestDeriveFingerprint_DistinctInputsDoNotCollide(t *testing.T) {
	t.Parallel()

	base := cache.DeriveFingerprint("hello", "holly", 24000, nil)

	cases := []struct {
		name        string
		fingerprint string
	}{
		{
			"different text",
			cache.DeriveFingerprint("goodbye", "holly", 24000, nil),
		},
		{
			"different voice",
			cache.DeriveFingerprint("hello", "amy", 24000, nil),
		},
		{
			"different sample rate",
			cache.DeriveFingerprint("hello", "holly", 22050, nil),
		},
		{
			"added option",
			cache.DeriveFingerprint("hello", "holly", 24000, map[string]string{"emotion": "sad"}),
		},
		{
			// Length framing: the field boundary must matter.
			"shifted field boundary",
			cache.DeriveFingerprint("helloh", "olly", 24000, nil),
		},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.NotEqual(t, base, testCase.fingerprint)
		})
	}
}
