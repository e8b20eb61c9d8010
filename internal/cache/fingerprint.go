// Package cache implements the generation cache of the voice service:
// deterministic fingerprint derivation and the durable audio stores addressed
// by those fingerprints.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// fingerprintVersion is hashed into every fingerprint. Bump it when the engine
// or voice configuration changes in a way that alters output for the same
// text, so stale entries become unreachable instead of silently wrong.
const fingerprintVersion = "v1"

// DeriveFingerprint maps normalized text plus a voice identity and synthesis
// options to a stable hex fingerprint. Each field is length-prefixed before
// hashing so adjacent fields cannot collide by concatenation, and options are
// folded in sorted key order so map iteration order never leaks into the key.
//
// The caller is expected to pass already-normalized text; this function is
// pure and allocation-light, since it sits on every request's hot path.
func DeriveFingerprint(normalizedText, voiceID string, sampleRate int, options map[string]string) string {
	digest := sha256.New()

	writeField := func(field string) {
		var length [8]byte

		binary.BigEndian.PutUint64(length[:], uint64(len(field)))
		digest.Write(length[:])
		digest.Write([]byte(field))
	}

	writeField(fingerprintVersion)
	writeField(normalizedText)
	writeField(voiceID)

	var rate [8]byte

	binary.BigEndian.PutUint64(rate[:], uint64(sampleRate))
	digest.Write(rate[:])

	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		writeField(key)
		writeField(options[key])
	}

	return hex.EncodeToString(digest.Sum(nil))
}
