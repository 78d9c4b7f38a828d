package profile

import (
	"testing"

	"github.com/npezzotti/go-teamchat/internal/types"
	"github.com/stretchr/testify/assert"
)

func channels() []types.Channel {
	return []types.Channel{
		{
			Id:        "c1",
			Name:      "general",
			CreatorId: "u1",
			Creator:   "Alice",
			Members: []types.Member{
				{Id: "u1", Name: "Alice", Online: true},
				{Id: "u2", Name: "Alice"},
			},
		},
		{
			Id:        "c2",
			Name:      "random",
			CreatorId: "u2",
			Creator:   "Alice",
			Members:   []types.Member{{Id: "u2", Name: "Alice"}},
		},
		{
			Id:      "c3",
			Name:    "legacy",
			Creator: "Alice",
		},
	}
}

func TestSweepMembers(t *testing.T) {
	chs := channels()
	changed := SweepMembers(chs, types.User{Id: "u1", Name: "Alicia", Avatar: "a.png"})

	assert.Equal(t, []string{"c1"}, changed)
	assert.Equal(t, types.Member{Id: "u1", Name: "Alicia", Avatar: "a.png", Online: true}, chs[0].Members[0],
		"expected the member entry to be rewritten and keep its online flag")
	assert.Equal(t, "Alice", chs[0].Members[1].Name, "expected a same-named member to be left alone")
	assert.Equal(t, "Alice", chs[1].Members[0].Name)
}

func TestSweepCreatorByName(t *testing.T) {
	chs := channels()
	changed := SweepCreatorByName(chs, "Alice", "Alicia")

	// u2 is also named Alice, so the name match rewrites their channel too.
	assert.Equal(t, []string{"c1", "c2", "c3"}, changed)
	assert.Equal(t, "Alicia", chs[0].Creator)
	assert.Equal(t, "Alicia", chs[1].Creator, "name matching cannot tell the two Alices apart")

	assert.Empty(t, SweepCreatorByName(channels(), "Alice", "Alice"))
}

func TestSweepCreatorByID(t *testing.T) {
	chs := channels()
	changed := SweepCreatorByID(chs, "u1", "Alicia")

	assert.Equal(t, []string{"c1"}, changed)
	assert.Equal(t, "Alicia", chs[0].Creator)
	assert.Equal(t, "Alice", chs[1].Creator, "expected another user's channel to be untouched")
	assert.Equal(t, "Alice", chs[2].Creator)
}

func TestPropagate(t *testing.T) {
	tcases := []struct {
		name     string
		change   Change
		expected []string
		creators []string
	}{
		{
			name:     "rename",
			change:   Change{UserId: "u1", OldName: "Alice", User: types.User{Id: "u1", Name: "Alicia"}},
			expected: []string{"c1", "c3"},
			creators: []string{"Alicia", "Alice", "Alicia"},
		},
		{
			name:     "avatar only",
			change:   Change{UserId: "u1", OldName: "Alice", User: types.User{Id: "u1", Name: "Alice", Avatar: "b.png"}},
			expected: []string{"c1"},
			creators: []string{"Alice", "Alice", "Alice"},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			chs := channels()
			assert.Equal(t, tc.expected, Propagate(chs, tc.change))

			creators := make([]string, len(chs))
			for i, c := range chs {
				creators[i] = c.Creator
			}
			assert.Equal(t, tc.creators, creators)
		})
	}
}

func TestCreatorName(t *testing.T) {
	names := map[string]string{"u1": "Alicia"}
	lookup := func(id string) (string, bool) {
		n, ok := names[id]
		return n, ok
	}

	chs := channels()
	assert.Equal(t, "Alicia", CreatorName(chs[0], lookup), "expected the current name to be resolved by id")
	assert.Equal(t, "Alice", CreatorName(chs[1], lookup), "expected the snapshot when the id is unknown")
	assert.Equal(t, "Alice", CreatorName(chs[2], lookup))
}
