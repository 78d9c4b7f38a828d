// Package profile rewrites the copies of a user's display details that are
// stored on channels when the user edits their profile.
package profile

import (
	"github.com/npezzotti/go-teamchat/internal/types"
)

// Change describes a profile edit.
type Change struct {
	UserId  string
	OldName string
	User    types.User
}

func (c Change) Renamed() bool {
	return c.OldName != c.User.Name
}

// SweepMembers rewrites every member entry for user, matched by id. It
// returns the ids of the channels it changed.
func SweepMembers(channels []types.Channel, user types.User) []string {
	var changed []string
	for i := range channels {
		touched := false
		for j := range channels[i].Members {
			m := &channels[i].Members[j]
			if m.Id != user.Id {
				continue
			}

			online := m.Online
			*m = types.MemberOf(user)
			m.Online = online
			touched = true
		}
		if touched {
			changed = append(changed, channels[i].Id)
		}
	}

	return changed
}

// SweepCreatorByName rewrites the creator of every channel whose creator
// name equals oldName. Any other user who once had the same display name
// has their channels rewritten too, so it must only run over channels that
// have no CreatorId.
func SweepCreatorByName(channels []types.Channel, oldName, newName string) []string {
	if oldName == newName {
		return nil
	}

	var changed []string
	for i := range channels {
		if channels[i].Creator == oldName {
			channels[i].Creator = newName
			changed = append(changed, channels[i].Id)
		}
	}

	return changed
}

// SweepCreatorByID rewrites the creator name of channels created by userId.
func SweepCreatorByID(channels []types.Channel, userId, newName string) []string {
	var changed []string
	for i := range channels {
		if channels[i].CreatorId == userId && channels[i].Creator != newName {
			channels[i].Creator = newName
			changed = append(changed, channels[i].Id)
		}
	}

	return changed
}

// Propagate applies c to channels: members by id, creators by id, and
// creators by name only for channels that predate CreatorId.
func Propagate(channels []types.Channel, c Change) []string {
	seen := make(map[string]struct{})
	var changed []string
	mark := func(ids []string) {
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				changed = append(changed, id)
			}
		}
	}

	mark(SweepMembers(channels, c.User))
	mark(SweepCreatorByID(channels, c.UserId, c.User.Name))

	if c.Renamed() {
		var legacy []int
		for i := range channels {
			if channels[i].CreatorId == "" {
				legacy = append(legacy, i)
			}
		}

		sub := make([]types.Channel, len(legacy))
		for j, i := range legacy {
			sub[j] = channels[i]
		}
		mark(SweepCreatorByName(sub, c.OldName, c.User.Name))
		for j, i := range legacy {
			channels[i].Creator = sub[j].Creator
		}
	}

	return changed
}

// CreatorName resolves the display name of a channel's creator. Channels
// with a CreatorId always show the creator's current name.
func CreatorName(c types.Channel, name func(userId string) (string, bool)) string {
	if c.CreatorId != "" {
		if n, ok := name(c.CreatorId); ok {
			return n
		}
	}

	return c.Creator
}
