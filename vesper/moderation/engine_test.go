package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories/memory"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/platform"
	"github.com/vesperbot/vesper/vesper/platform/platformtest"
	"github.com/vesperbot/vesper/vesper/scheduler"
)

func newTestEngine(t *testing.T) (*Engine, *memory.Store, *platformtest.Fake, *scheduler.Scheduler) {
	t.Helper()
	store := memory.New()
	fake := platformtest.New()
	sched, err := scheduler.New()
	require.NoError(t, err)
	t.Cleanup(sched.Shutdown)
	e := NewEngine(store.Rules, store.Mutes, store.GuildCfg, fake, sched, "owner-1")
	return e, store, fake, sched
}

func incoming(guildID, channelID, authorID, content string) platform.IncomingMessage {
	return platform.IncomingMessage{
		GuildID:   guildID,
		ChannelID: channelID,
		MessageID: "m1",
		AuthorID:  authorID,
		Content:   content,
	}
}

func TestCompilePhrase(t *testing.T) {
	tests := []struct {
		phrase  string
		content string
		match   bool
	}{
		{"hur", "hurrr!", true},
		{"hur", "hurt", false},
		{"hur", "HURRRRR", true},
		{"hur", "say hur now", true},
		{"hur", "churn", false},
		{"bad word", "that's a bad   word!", true},
		{"bad word", "bad sword", false},
		{"bad word", "bad wordddd", true},
		{"Hur", "hurr", true},
	}
	for _, tt := range tests {
		t.Run(tt.phrase+"/"+tt.content, func(t *testing.T) {
			re := compilePhrase(tt.phrase)
			require.NotNil(t, re)
			assert.Equal(t, tt.match, re.MatchString(tt.content))
		})
	}
}

func TestHandleMessageMutesOnPhrase(t *testing.T) {
	e, store, fake, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.AddRule(ctx, models.RuleKindMute, "g1", "hur", "stretched spelling", time.Hour))

	acted, err := e.HandleMessage(ctx, incoming("g1", "c1", "u1", "hurrr!"))
	require.NoError(t, err)
	assert.True(t, acted)

	assert.Contains(t, fake.Deleted, "c1/m1")
	assert.NotEmpty(t, fake.DMs["u1"], "reason set, author is told why")

	roleID := fake.Roles["g1/Muted"]
	require.NotEmpty(t, roleID)
	has, _ := fake.HasRole(ctx, "g1", "u1", roleID)
	assert.True(t, has)

	schedules, err := store.Mutes.List(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "u1", schedules[0].UserID)
	assert.Equal(t, "c1", schedules[0].ChannelID)
}

func TestHandleMessageBanTakesPrecedence(t *testing.T) {
	e, _, fake, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.AddRule(ctx, models.RuleKindMute, "g1", "spam", "", time.Hour))
	require.NoError(t, e.AddRule(ctx, models.RuleKindBan, "g1", "spam", "zero tolerance", 0))

	acted, err := e.HandleMessage(ctx, incoming("g1", "c1", "u1", "spam spam"))
	require.NoError(t, err)
	assert.True(t, acted)
	assert.Contains(t, fake.Banned, "g1/u1")
	assert.Empty(t, fake.RoleChanges, "ban list runs before the mute list")
}

func TestHandleMessageIgnoresBots(t *testing.T) {
	e, _, fake, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.AddRule(ctx, models.RuleKindBan, "g1", "spam", "", 0))

	msg := incoming("g1", "c1", "b1", "spam")
	msg.AuthorBot = true
	acted, err := e.HandleMessage(ctx, msg)
	require.NoError(t, err)
	assert.False(t, acted)
	assert.Empty(t, fake.Banned)
}

func TestGlobalRulesApplyEverywhere(t *testing.T) {
	e, store, fake, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, store.Rules.Add(ctx, &models.PhraseRule{
		Kind: models.RuleKindKick, Phrase: "invite.gg", GuildID: "",
	}))

	acted, err := e.HandleMessage(ctx, incoming("g-any", "c1", "u1", "join invite.gg now"))
	require.NoError(t, err)
	assert.True(t, acted)
	assert.Contains(t, fake.Kicked, "g-any/u1")
}

func TestUnmuteIsIdempotent(t *testing.T) {
	e, store, fake, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Mute(ctx, "g1", "u1", time.Hour, "c1"))
	require.NoError(t, e.Unmute(ctx, "g1", "u1"))

	roleID := fake.Roles["g1/Muted"]
	has, _ := fake.HasRole(ctx, "g1", "u1", roleID)
	assert.False(t, has)
	schedules, _ := store.Mutes.List(ctx)
	assert.Empty(t, schedules)
	assert.Empty(t, fake.Sent, "manual unmute never announces")

	// Second unmute of a clean user is a no-op.
	require.NoError(t, e.Unmute(ctx, "g1", "u1"))
}

func TestMuteReplacesPendingSchedule(t *testing.T) {
	e, store, _, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Mute(ctx, "g1", "u1", time.Hour, "c1"))
	require.NoError(t, e.Mute(ctx, "g1", "u1", 2*time.Hour, "c2"))

	schedules, err := store.Mutes.List(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 1, "one pending unmute per member")
	assert.Equal(t, "c2", schedules[0].ChannelID)
}

func TestRearmSchedulesUnmutesExpiredImmediately(t *testing.T) {
	e, store, fake, _ := newTestEngine(t)
	ctx := context.Background()

	roleID, err := fake.EnsureMutedRole(ctx, "g1")
	require.NoError(t, err)
	require.NoError(t, fake.AddRole(ctx, "g1", "u1", roleID))
	require.NoError(t, store.Mutes.Add(ctx, &models.MuteSchedule{
		GuildID:  "g1",
		UserID:   "u1",
		UnmuteAt: time.Now().Add(-time.Minute),
	}))

	require.NoError(t, e.RearmSchedules(ctx))

	has, _ := fake.HasRole(ctx, "g1", "u1", roleID)
	assert.False(t, has, "expired entry unmutes on startup")
	schedules, _ := store.Mutes.List(ctx)
	assert.Empty(t, schedules)
}

func TestRearmSchedulesArmsFutureTimers(t *testing.T) {
	e, store, fake, sched := newTestEngine(t)
	ctx := context.Background()

	roleID, err := fake.EnsureMutedRole(ctx, "g1")
	require.NoError(t, err)
	require.NoError(t, fake.AddRole(ctx, "g1", "u1", roleID))
	require.NoError(t, store.Mutes.Add(ctx, &models.MuteSchedule{
		GuildID:   "g1",
		UserID:    "u1",
		UnmuteAt:  time.Now().Add(30 * time.Millisecond),
		ChannelID: "c1",
	}))

	require.NoError(t, e.RearmSchedules(ctx))
	assert.True(t, sched.Armed(unmuteTimerID("g1", "u1")))

	require.Eventually(t, func() bool {
		has, _ := fake.HasRole(ctx, "g1", "u1", roleID)
		return !has
	}, time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, fake.SentTo("c1"), "scheduled unmute announces in the source channel")
}

func TestAutoUnmuteFallsBackWhenChannelGone(t *testing.T) {
	e, _, fake, _ := newTestEngine(t)
	ctx := context.Background()

	fake.Unsendable["c-gone"] = true
	fake.Fallback["g1"] = "c-general"
	roleID, _ := fake.EnsureMutedRole(ctx, "g1")
	require.NoError(t, fake.AddRole(ctx, "g1", "u1", roleID))

	e.autoUnmute(ctx, "g1", "u1", "c-gone")
	assert.NotEmpty(t, fake.SentTo("c-general"))
	assert.Empty(t, fake.SentTo("c-gone"))
}

func TestAddRuleValidation(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	err := e.AddRule(ctx, models.RuleKindBan, "g1", "   ", "", 0)
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))

	err = e.AddRule(ctx, "timeout", "g1", "x", "", 0)
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))

	require.NoError(t, e.AddRule(ctx, models.RuleKindBan, "g1", "SHOUTED", "", 0))
	rules, err := e.ListRules(ctx, models.RuleKindBan, "g1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "shouted", rules[0].Phrase, "phrases are stored lowercased")
}

func TestRemoveRuleNotFound(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	err := e.RemoveRule(context.Background(), models.RuleKindBan, "g1", "absent")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.NotFound))
}

func TestIsBotAdmin(t *testing.T) {
	e, store, fake, _ := newTestEngine(t)
	ctx := context.Background()

	ok, err := e.IsBotAdmin(ctx, "g1", "owner-1")
	require.NoError(t, err)
	assert.True(t, ok, "global owner")

	fake.Admins["g1/u-admin"] = true
	ok, _ = e.IsBotAdmin(ctx, "g1", "u-admin")
	assert.True(t, ok, "guild administrator")

	fake.Owners["g1"] = "u-owner"
	ok, _ = e.IsBotAdmin(ctx, "g1", "u-owner")
	assert.True(t, ok, "guild owner")

	require.NoError(t, store.GuildCfg.Save(ctx, &models.GuildConfig{
		GuildID:          "g1",
		PermissionsRoles: []string{"role-mod"},
	}))
	require.NoError(t, fake.AddRole(ctx, "g1", "u-mod", "role-mod"))
	ok, _ = e.IsBotAdmin(ctx, "g1", "u-mod")
	assert.True(t, ok, "configured permissions role")

	ok, _ = e.IsBotAdmin(ctx, "g1", "u-pleb")
	assert.False(t, ok)
}

func TestPunishNumbersCasesPerGuild(t *testing.T) {
	e, store, fake, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.AddRule(ctx, models.RuleKindBan, "g1", "spam", "zero tolerance", 0))
	require.NoError(t, e.AddRule(ctx, models.RuleKindBan, "g2", "spam", "zero tolerance", 0))

	_, err := e.HandleMessage(ctx, incoming("g1", "c1", "u1", "spam"))
	require.NoError(t, err)
	_, err = e.HandleMessage(ctx, incoming("g1", "c1", "u2", "spam"))
	require.NoError(t, err)
	_, err = e.HandleMessage(ctx, incoming("g2", "c9", "u1", "spam"))
	require.NoError(t, err)

	require.Len(t, fake.Sent, 3)
	assert.Contains(t, fake.Sent[0].Message.Content, "Case #1:")
	assert.Contains(t, fake.Sent[1].Message.Content, "Case #2:")
	// Each guild numbers its own cases.
	assert.Contains(t, fake.Sent[2].Message.Content, "Case #1:")

	seq, err := store.GuildCfg.NextTicket(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq)
}
