package canid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestS1WorkedExample matches the spec's single-frame NodeStatus example:
// priority 16, subject-id 341, source-node-id 42.
func TestS1WorkedExample(t *testing.T) {
	m := MessageCANID{Priority: 16, SubjectID: 341, SourceID: 42}
	got := m.Encode()
	want := uint32(16)<<24 | uint32(341)<<8 | 42
	assert.Equal(t, want, got)

	parsed, ok := Parse(got)
	require.True(t, ok)
	assert.Equal(t, RoleMessage, parsed.Role)
	assert.Equal(t, m, parsed.Message)
}

func TestMessageRoundTrip(t *testing.T) {
	m := MessageCANID{Priority: 31, SubjectID: 8191, SourceID: 127}
	parsed, ok := Parse(m.Encode())
	require.True(t, ok)
	assert.Equal(t, RoleMessage, parsed.Role)
	assert.Equal(t, m, parsed.Message)
}

func TestAnonymousMessageSourceIsZero(t *testing.T) {
	a := AnonymousMessageCANID{Priority: 4, Discriminator: 0x2ABC, DataTypeLow: 1}
	parsed, ok := Parse(a.Encode())
	require.True(t, ok)
	assert.Equal(t, RoleAnonymousMessage, parsed.Role)
	assert.Equal(t, a, parsed.Anon)
}

func TestServiceRoundTrip(t *testing.T) {
	s := ServiceCANID{Priority: 2, IsRequest: true, ServiceID: 200, DestID: 10, SourceID: 42}
	parsed, ok := Parse(s.Encode())
	require.True(t, ok)
	assert.Equal(t, RoleService, parsed.Role)
	assert.Equal(t, s, parsed.Service)
}

func TestServiceRejectsEqualSourceAndDest(t *testing.T) {
	s := ServiceCANID{Priority: 2, IsRequest: false, ServiceID: 1, DestID: 5, SourceID: 5}
	_, ok := Parse(s.Encode())
	assert.False(t, ok)
}

func TestMessageRejectsReservedBits(t *testing.T) {
	m := MessageCANID{Priority: 1, SubjectID: 1, SourceID: 1}
	raw := m.Encode()
	// Set a reserved bit (bit 21, inside the 16-bit middle field but
	// outside the 13-bit subject-id slot).
	raw |= 1 << 21
	_, ok := Parse(raw)
	assert.False(t, ok)
}

func TestParseOutOfRangeIdentifierDoesNotPanic(t *testing.T) {
	// Service flag set, but request/response+service-id+dest+source bits
	// deliberately scrambled beyond what any valid ServiceCANID produces
	// is impossible by construction (every bit is covered), so instead
	// check that an out-of-range raw identifier (30 bits) is masked down
	// cleanly rather than rejected outright.
	raw := uint32(0x3FFFFFFF) // top bit beyond 29 significant bits
	_, ok := Parse(raw)
	// whatever the 29-bit-masked result decodes to, Parse must not panic
	_ = ok
}
