// Package platformtest provides an in-memory platform.Client for driving
// the core engines in tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/vesperbot/vesper/vesper/platform"
)

type SentMessage struct {
	ChannelID string
	Message   platform.Message
}

type Reaction struct {
	ChannelID string
	MessageID string
	Emoji     string
}

type RoleChange struct {
	GuildID string
	UserID  string
	RoleID  string
	Added   bool
}

// Fake records every call and returns canned data. Zero value is usable.
type Fake struct {
	mu sync.Mutex

	Sent      []SentMessage
	DMs       map[string][]platform.Message
	Deleted   []string // "channel/message"
	Reactions []Reaction

	Roles       map[string]string            // guild/name -> role id
	MemberRole  map[string]map[string]bool   // guild/user -> role id set
	RoleChanges []RoleChange
	Kicked      []string // "guild/user"
	Banned      []string // "guild/user"

	Admins      map[string]bool // "guild/user"
	Owners      map[string]string
	Unsendable  map[string]bool
	Fallback    map[string]string
	SendErr     error
	nextRoleID  int
	nextMsgID   int
}

var _ platform.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		DMs:        make(map[string][]platform.Message),
		Roles:      make(map[string]string),
		MemberRole: make(map[string]map[string]bool),
		Admins:     make(map[string]bool),
		Owners:     make(map[string]string),
		Unsendable: make(map[string]bool),
		Fallback:   make(map[string]string),
	}
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg platform.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return "", f.SendErr
	}
	f.Sent = append(f.Sent, SentMessage{ChannelID: channelID, Message: msg})
	f.nextMsgID++
	return fmt.Sprintf("msg-%d", f.nextMsgID), nil
}

func (f *Fake) SendDM(_ context.Context, userID string, msg platform.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DMs[userID] = append(f.DMs[userID], msg)
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, channelID+"/"+messageID)
	return nil
}

func (f *Fake) React(_ context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reactions = append(f.Reactions, Reaction{ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (f *Fake) EnsureRole(_ context.Context, guildID, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := guildID + "/" + name
	if id, ok := f.Roles[key]; ok {
		return id, nil
	}
	f.nextRoleID++
	id := fmt.Sprintf("role-%d", f.nextRoleID)
	f.Roles[key] = id
	return id, nil
}

func (f *Fake) EnsureMutedRole(ctx context.Context, guildID string) (string, error) {
	return f.EnsureRole(ctx, guildID, "Muted")
}

func (f *Fake) AddRole(_ context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := guildID + "/" + userID
	if f.MemberRole[key] == nil {
		f.MemberRole[key] = make(map[string]bool)
	}
	f.MemberRole[key][roleID] = true
	f.RoleChanges = append(f.RoleChanges, RoleChange{GuildID: guildID, UserID: userID, RoleID: roleID, Added: true})
	return nil
}

func (f *Fake) RemoveRole(_ context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := guildID + "/" + userID
	delete(f.MemberRole[key], roleID)
	f.RoleChanges = append(f.RoleChanges, RoleChange{GuildID: guildID, UserID: userID, RoleID: roleID, Added: false})
	return nil
}

func (f *Fake) HasRole(_ context.Context, guildID, userID, roleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.MemberRole[guildID+"/"+userID][roleID], nil
}

func (f *Fake) KickMember(_ context.Context, guildID, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Kicked = append(f.Kicked, guildID+"/"+userID)
	return nil
}

func (f *Fake) BanMember(_ context.Context, guildID, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Banned = append(f.Banned, guildID+"/"+userID)
	return nil
}

func (f *Fake) CanSend(_ context.Context, channelID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Unsendable[channelID]
}

func (f *Fake) FallbackChannel(_ context.Context, guildID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.Fallback[guildID]; ok {
		return ch, nil
	}
	return "", fmt.Errorf("no fallback channel for guild %s", guildID)
}

func (f *Fake) IsAdministrator(_ context.Context, guildID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Admins[guildID+"/"+userID], nil
}

func (f *Fake) GuildOwner(_ context.Context, guildID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Owners[guildID], nil
}

func (f *Fake) MemberRoles(_ context.Context, guildID, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var roles []string
	for r := range f.MemberRole[guildID+"/"+userID] {
		roles = append(roles, r)
	}
	return roles, nil
}

func (f *Fake) GuildName(_ context.Context, guildID string) string {
	return "guild " + guildID
}

// SentTo returns the messages sent to one channel, in order.
func (f *Fake) SentTo(channelID string) []platform.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var msgs []platform.Message
	for _, s := range f.Sent {
		if s.ChannelID == channelID {
			msgs = append(msgs, s.Message)
		}
	}
	return msgs
}
