package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairId(t *testing.T) {
	tcases := []struct {
		name     string
		a        string
		b        string
		expected string
	}{
		{
			name:     "ordered input",
			a:        "abc",
			b:        "xyz",
			expected: "abc_xyz",
		},
		{
			name:     "reversed input",
			a:        "xyz",
			b:        "abc",
			expected: "abc_xyz",
		},
		{
			name:     "self chat",
			a:        "u1",
			b:        "u1",
			expected: "u1_u1",
		},
		{
			name:     "byte-wise order, uppercase sorts first",
			a:        "b",
			b:        "B",
			expected: "B_b",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, PairId(tc.a, tc.b), "expected pair id to match")
			assert.Equal(t, PairId(tc.a, tc.b), PairId(tc.b, tc.a), "expected pair id to be symmetric")
		})
	}
}

func TestDirect(t *testing.T) {
	s1, err := Direct("bob", "alice")
	assert.NoError(t, err)
	s2, err := Direct("alice", "bob")
	assert.NoError(t, err)

	assert.Equal(t, s1, s2, "expected both participants to derive the same scope")
	assert.Equal(t, "directmessages/alice_bob/messages", s1.Path())
	assert.True(t, s1.HasMember("bob"))
	assert.False(t, s1.HasMember("carol"))
	assert.Equal(t, "alice", s1.Other("bob"))

	self, err := Direct("alice", "alice")
	assert.NoError(t, err, "expected self chat to be accepted")
	assert.Equal(t, "directmessages/alice_alice/messages", self.Path())

	_, err = Direct("", "bob")
	assert.ErrorIs(t, err, ErrEmptyID)

	_, err = Direct("al_ice", "bob")
	assert.ErrorIs(t, err, ErrInvalidID, "expected ids with the separator to be rejected")
}

func TestParse_DirectRoundTrip(t *testing.T) {
	s, err := Direct("9f1c2d3e-0000-4000-8000-000000000002", "9f1c2d3e-0000-4000-8000-000000000001")
	assert.NoError(t, err)

	parsed, err := Parse(s.Path())
	assert.NoError(t, err)
	assert.Equal(t, s, parsed)

	_, err = Parse("directmessages/a_b_c/messages")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestPaths(t *testing.T) {
	ch, err := Channel("general")
	assert.NoError(t, err)
	assert.Equal(t, "channels/general/messages", ch.Path())

	th, err := Thread("general", "0003")
	assert.NoError(t, err)
	assert.Equal(t, "channels/general/messages/0003/threads", th.Path())
	assert.Equal(t, ch, th.Parent(), "expected thread parent to be the channel scope")

	_, err = Channel("")
	assert.ErrorIs(t, err, ErrEmptyID)
	_, err = Thread("general", "")
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestParse(t *testing.T) {
	tcases := []struct {
		name string
		path string
		err  bool
	}{
		{name: "channel", path: "channels/general/messages"},
		{name: "thread", path: "channels/general/messages/0001/threads"},
		{name: "direct", path: "directmessages/a_b/messages"},
		{name: "leading slash", path: "/channels/general/messages"},
		{name: "unknown root", path: "users/a/messages", err: true},
		{name: "missing pair separator", path: "directmessages/ab/messages", err: true},
		{name: "empty channel", path: "channels//messages", err: true},
		{name: "empty", path: "", err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Parse(tc.path)
			if tc.err {
				assert.Error(t, err, "expected error for path %q", tc.path)
				return
			}

			assert.NoError(t, err)
			reparsed, err := Parse(s.Path())
			assert.NoError(t, err)
			assert.Equal(t, s, reparsed, "expected Parse to invert Path")
		})
	}
}
