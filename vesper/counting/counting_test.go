package counting

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories/memory"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/platform"
	"github.com/vesperbot/vesper/vesper/platform/platformtest"
)

func newTestEngine(t *testing.T) (*Engine, *memory.Store, *platformtest.Fake) {
	t.Helper()
	store := memory.New()
	fake := platformtest.New()
	return NewEngine(store.Counting, store.GuildCfg, fake), store, fake
}

func enable(t *testing.T, e *Engine, guildID, channelID string, chances *int64) {
	t.Helper()
	require.NoError(t, e.Configure(context.Background(), guildID, channelID, chances))
}

func post(guildID, channelID, authorID, messageID, content string) platform.IncomingMessage {
	return platform.IncomingMessage{
		GuildID:   guildID,
		ChannelID: channelID,
		MessageID: messageID,
		AuthorID:  authorID,
		Content:   content,
	}
}

func reactionsFor(fake *platformtest.Fake, messageID string) []string {
	var emojis []string
	for _, r := range fake.Reactions {
		if r.MessageID == messageID {
			emojis = append(emojis, r.Emoji)
		}
	}
	return emojis
}

func TestParseCount(t *testing.T) {
	for content, want := range map[string]bool{
		"42":       true,
		"0":        true,
		" 42":      false,
		"42!":      false,
		"fortytwo": false,
		"4 2":      false,
		"-1":       false,
		"":         false,
	} {
		n, ok := parseCount(content)
		assert.Equal(t, want, ok, "content %q", content)
		if content == "42" {
			assert.Equal(t, int64(42), n)
		}
	}
}

func TestParseCountRejectsOutOfRangeNumbers(t *testing.T) {
	n, ok := parseCount("9223372036854775807")
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), n)

	for _, content := range []string{
		"9223372036854775808",  // MaxInt64 + 1
		"18446744073709551617", // wraps past uint64 back to positive
		"99999999999999999999999999999999999999",
	} {
		_, ok := parseCount(content)
		assert.False(t, ok, "content %q", content)
	}
}

func TestAcceptedCountAdvancesState(t *testing.T) {
	e, store, fake := newTestEngine(t)
	ctx := context.Background()
	enable(t, e, "g1", "c1", nil)

	handled, err := e.HandleMessage(ctx, post("g1", "c1", "u1", "m1", "1"))
	require.NoError(t, err)
	assert.True(t, handled)
	handled, err = e.HandleMessage(ctx, post("g1", "c1", "u2", "m2", "2"))
	require.NoError(t, err)
	assert.True(t, handled)

	state, err := store.Counting.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.LastCount)
	assert.Equal(t, "u2", state.LastUser)
	assert.Equal(t, []string{"✅"}, reactionsFor(fake, "m1"))
	assert.Equal(t, []string{"✅"}, reactionsFor(fake, "m2"))
}

func TestNonNumericAndForeignChannelsIgnored(t *testing.T) {
	e, _, fake := newTestEngine(t)
	ctx := context.Background()
	enable(t, e, "g1", "c1", nil)

	handled, err := e.HandleMessage(ctx, post("g1", "c1", "u1", "m1", "one"))
	require.NoError(t, err)
	assert.False(t, handled, "chatter in a counting channel is not counted")

	handled, err = e.HandleMessage(ctx, post("g1", "c-other", "u1", "m2", "1"))
	require.NoError(t, err)
	assert.False(t, handled, "numbers outside counting channels are ignored")
	assert.Empty(t, fake.Reactions)
}

func TestSameUserTwiceResets(t *testing.T) {
	e, store, fake := newTestEngine(t)
	ctx := context.Background()
	enable(t, e, "g1", "c1", nil)

	_, err := e.HandleMessage(ctx, post("g1", "c1", "u1", "m1", "1"))
	require.NoError(t, err)
	_, err = e.HandleMessage(ctx, post("g1", "c1", "u1", "m2", "2"))
	require.NoError(t, err)

	state, _ := store.Counting.Get(ctx, "c1")
	assert.Equal(t, int64(0), state.LastCount)
	assert.Empty(t, state.LastUser)
	assert.Equal(t, int64(1), state.Mistakes["u1"])
	assert.Equal(t, []string{"❌"}, reactionsFor(fake, "m2"))
	assert.NotEmpty(t, fake.SentTo("c1"), "reset is announced")
}

func TestWrongNumberResetsAndAnnouncesExpected(t *testing.T) {
	e, store, fake := newTestEngine(t)
	ctx := context.Background()
	enable(t, e, "g1", "c1", nil)

	_, err := e.HandleMessage(ctx, post("g1", "c1", "u1", "m1", "1"))
	require.NoError(t, err)
	_, err = e.HandleMessage(ctx, post("g1", "c1", "u2", "m2", "5"))
	require.NoError(t, err)

	state, _ := store.Counting.Get(ctx, "c1")
	assert.Equal(t, int64(0), state.LastCount)
	assert.Empty(t, state.LastUser)
	assert.Equal(t, int64(1), state.Mistakes["u2"])

	msgs := fake.SentTo("c1")
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1].Content, "2", "announcement cites the expected number")
}

func TestRaceLoserKeepsCountAlive(t *testing.T) {
	e, store, fake := newTestEngine(t)
	ctx := context.Background()
	enable(t, e, "g1", "c1", nil)

	require.NoError(t, store.Counting.Save(ctx, &models.CountingChannel{
		ChannelID: "c1",
		GuildID:   "g1",
		LastCount: 41,
		LastUser:  "x",
		Mistakes:  map[string]int64{},
	}))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = e.HandleMessage(ctx, post("g1", "c1", "y", "m-y", "42"))
	}()
	go func() {
		defer wg.Done()
		// x lost the race either way: a second consecutive count if
		// processed first, a duplicate of 42 if processed second.
		time.Sleep(10 * time.Millisecond)
		_, _ = e.HandleMessage(ctx, post("g1", "c1", "x", "m-x", "42"))
	}()
	wg.Wait()

	state, err := store.Counting.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), state.LastCount)
	assert.Equal(t, "y", state.LastUser)
	assert.Equal(t, int64(1), state.Mistakes["x"])
	assert.Zero(t, state.Mistakes["y"])
	assert.Equal(t, []string{"✅"}, reactionsFor(fake, "m-y"))
	assert.Equal(t, []string{"❌"}, reactionsFor(fake, "m-x"))
}

func TestChancesAssignPunishmentRole(t *testing.T) {
	e, _, fake := newTestEngine(t)
	ctx := context.Background()
	chances := int64(2)
	enable(t, e, "g1", "c1", &chances)

	_, err := e.HandleMessage(ctx, post("g1", "c1", "u1", "m1", "5"))
	require.NoError(t, err)
	roleID := fake.Roles["g1/"+DefaultCannotCountRole]
	has, _ := fake.HasRole(ctx, "g1", "u1", roleID)
	assert.False(t, has, "one chance left")

	_, err = e.HandleMessage(ctx, post("g1", "c1", "u1", "m2", "5"))
	require.NoError(t, err)
	has, _ = fake.HasRole(ctx, "g1", "u1", roleID)
	assert.True(t, has, "second mistake exhausts the chances")

	msgs := fake.SentTo("c1")
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0].Content, "1 chance(s) left")
}

func TestSilencedMembersAreDeletedSilently(t *testing.T) {
	e, store, fake := newTestEngine(t)
	ctx := context.Background()
	enable(t, e, "g1", "c1", nil)

	roleID, err := fake.EnsureRole(ctx, "g1", DefaultCannotCountRole)
	require.NoError(t, err)
	require.NoError(t, fake.AddRole(ctx, "g1", "u1", roleID))

	handled, err := e.HandleMessage(ctx, post("g1", "c1", "u1", "m1", "1"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, fake.Deleted, "c1/m1")
	assert.Empty(t, fake.Reactions)

	state, _ := store.Counting.Get(ctx, "c1")
	assert.Equal(t, int64(0), state.LastCount, "no state change")
}

func TestCustomPunishmentRoleName(t *testing.T) {
	e, store, fake := newTestEngine(t)
	ctx := context.Background()
	chances := int64(1)
	enable(t, e, "g1", "c1", &chances)

	require.NoError(t, store.GuildCfg.Save(ctx, &models.GuildConfig{
		GuildID:         "g1",
		CannotCountRole: "numerically challenged",
	}))

	_, err := e.HandleMessage(ctx, post("g1", "c1", "u1", "m1", "7"))
	require.NoError(t, err)
	assert.NotEmpty(t, fake.Roles["g1/numerically challenged"])
}

func TestDisable(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	enable(t, e, "g1", "c1", nil)

	require.NoError(t, e.Disable(ctx, "c1"))
	err := e.Disable(ctx, "c1")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.NotFound))

	_, err = e.State(ctx, "c1")
	assert.True(t, errs.IsKind(err, errs.NotFound))
}
