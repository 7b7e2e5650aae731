// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"math/rand"
	"os"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomPrintable(rng *rand.Rand, maxLen int) string {
	b := make([]byte, rng.Intn(maxLen+1))
	for i := range b {
		b[i] = byte(0x20 + rng.Intn(0x7F-0x20))
	}
	return string(b)
}

func randomAddress(rng *rand.Rand) Address {
	a, _ := AddressFromInt(1 + rng.Intn(14))
	return a
}

func sortedVerbs() []string {
	verbs := make([]string, 0, len(verbNames))
	for verb := range verbNames {
		verbs = append(verbs, verb)
	}
	sort.Strings(verbs)
	return verbs
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

func TestFuzzDecodeRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)

	for i := 0; i < getFuzzRounds(); i++ {
		raw := make([]byte, rng.Intn(32))
		rng.Read(raw)

		resp, err := DecodeResponse(raw, AnswerMode(rng.Intn(3)))
		if err != nil {
			require.ErrorIs(t, err, ErrMalformedResponse)
			continue
		}
		assert.Equal(t, byte(StartAnswer), resp.Start)
	}
}

func TestFuzzDecodeWellFormedAnswers(t *testing.T) {
	rng := newFuzzRng(t)
	statuses := []byte("@`ABCDEFGIJ")

	for i := 0; i < getFuzzRounds(); i++ {
		status := statuses[rng.Intn(len(statuses))]
		payload := randomPrintable(rng, 12)
		raw := []byte("/0" + string(status) + payload + EndAnswer)

		resp, err := DecodeResponse(raw, Synchronous)
		require.NoError(t, err)
		assert.Equal(t, status, resp.Status)
		assert.Equal(t, payload, resp.Data)
		assert.False(t, resp.HasCounter())
		assert.True(t, HasTerminator(resp.Raw))
	}
}

// ============================================================
// Encoder Fuzz Tests
// ============================================================

func TestFuzzEncodeParseFrame(t *testing.T) {
	rng := newFuzzRng(t)
	verbs := sortedVerbs()

	for i := 0; i < getFuzzRounds(); i++ {
		cmd := CmdInt(verbs[rng.Intn(len(verbs))], rng.Intn(100000))
		addr := randomAddress(rng)

		frame, err := EncodeCommand(addr, cmd)
		require.NoError(t, err)
		assert.Equal(t, byte(EndCommand), frame[len(frame)-1])

		gotAddr, body, err := ParseFrame(frame)
		require.NoError(t, err)
		assert.Equal(t, addr, gotAddr)
		assert.Equal(t, cmd.String(), body)
	}
}

// ============================================================
// Poller Fuzz Tests
// ============================================================

func TestFuzzPollStateFaultsCarryError(t *testing.T) {
	rng := newFuzzRng(t)

	for i := 0; i < getFuzzRounds(); i++ {
		payload := strconv.Itoa(rng.Intn(300))
		if rng.Intn(4) == 0 {
			payload = randomPrintable(rng, 4)
		}

		state, err := nextPollState(payload)
		switch state {
		case PollFault:
			require.Error(t, err, "payload %q", payload)
		default:
			require.NoError(t, err, "payload %q", payload)
		}
	}
}
