// Package reaction merges emoji reactions into a message's reaction map.
//
// Reactions are keyed by stable user id. Display names are only attached
// when a Set is rendered with Present.
package reaction

import (
	"errors"
	"slices"
	"strings"

	"github.com/forPelevin/gomoji"
)

const maxEmojiBytes = 64

var (
	ErrInvalidEmoji = errors.New("reaction: not an emoji")
	ErrEmptyUser    = errors.New("reaction: empty user id")
)

// Set maps an emoji to the ordered, duplicate-free list of user ids that
// reacted with it. An emoji with no users is never stored.
type Set map[string][]string

// Reaction is the rendered form of a single emoji entry.
type Reaction struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// Op is a single reaction edit by one user.
type Op struct {
	Emoji  string `json:"emoji"`
	UserId string `json:"user_id"`
	// Toggle selects add-or-remove semantics instead of add-only.
	Toggle bool `json:"toggle"`
}

func Validate(emoji string) error {
	if emoji == "" || len(emoji) > maxEmojiBytes {
		return ErrInvalidEmoji
	}

	// a key is exactly one emoji: no text around it and no second emoji
	if len(gomoji.CollectAll(emoji)) != 1 || strings.TrimSpace(gomoji.RemoveEmojis(emoji)) != "" {
		return ErrInvalidEmoji
	}

	return nil
}

func validateOp(emoji, userId string) error {
	if userId == "" {
		return ErrEmptyUser
	}

	return Validate(emoji)
}

// Add records userId under emoji. Adding an emoji the user already reacted
// with changes nothing and reports false.
func (s Set) Add(emoji, userId string) (bool, error) {
	if err := validateOp(emoji, userId); err != nil {
		return false, err
	}

	if slices.Contains(s[emoji], userId) {
		return false, nil
	}

	s[emoji] = append(s[emoji], userId)
	return true, nil
}

// Toggle adds userId under emoji, or removes it when already present.
// Removing the last user deletes the emoji entry. It reports whether the
// user ended up reacting.
func (s Set) Toggle(emoji, userId string) (bool, error) {
	if err := validateOp(emoji, userId); err != nil {
		return false, err
	}

	users := s[emoji]
	i := slices.Index(users, userId)
	if i == -1 {
		s[emoji] = append(users, userId)
		return true, nil
	}

	users = slices.Delete(slices.Clone(users), i, i+1)
	if len(users) == 0 {
		delete(s, emoji)
	} else {
		s[emoji] = users
	}

	return false, nil
}

// Apply runs op against the set. changed reports whether the set differs
// afterwards.
func (s Set) Apply(op Op) (changed bool, err error) {
	if op.Toggle {
		if _, err := s.Toggle(op.Emoji, op.UserId); err != nil {
			return false, err
		}
		return true, nil
	}

	return s.Add(op.Emoji, op.UserId)
}

func (s Set) Count(emoji string) int {
	return len(s[emoji])
}

func (s Set) Has(emoji, userId string) bool {
	return slices.Contains(s[emoji], userId)
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for emoji, users := range s {
		out[emoji] = slices.Clone(users)
	}

	return out
}

// Normalize drops empty entries and duplicate users, which can only come
// from rows written before the invariants were enforced.
func (s Set) Normalize() Set {
	out := make(Set, len(s))
	for emoji, users := range s {
		seen := make([]string, 0, len(users))
		for _, u := range users {
			if u != "" && !slices.Contains(seen, u) {
				seen = append(seen, u)
			}
		}
		if len(seen) > 0 {
			out[emoji] = seen
		}
	}

	return out
}

// Present renders the set with display names. name resolves a user id;
// ids it cannot resolve are rendered as-is.
func (s Set) Present(name func(userId string) (string, bool)) map[string]Reaction {
	out := make(map[string]Reaction, len(s))
	for emoji, users := range s {
		if len(users) == 0 {
			continue
		}

		names := make([]string, len(users))
		for i, id := range users {
			if n, ok := name(id); ok {
				names[i] = n
			} else {
				names[i] = id
			}
		}
		out[emoji] = Reaction{Count: len(users), Users: names}
	}

	return out
}
