package subscriptions_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories/memory"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/platform/platformtest"
	"github.com/vesperbot/vesper/vesper/subscriptions"
)

// fakeSource is a scriptable Source for driving the registry and
// worker without the network.
type fakeSource struct {
	mu       sync.Mutex
	item     *subscriptions.Item
	err      error
	thumb    string
	playlist string
	calls    int
}

func (s *fakeSource) Normalize(_ context.Context, identifier string) (string, error) {
	return strings.ToLower(strings.TrimSpace(identifier)), nil
}

func (s *fakeSource) Thumbnail(_ context.Context, _ string) (string, error) {
	return s.thumb, nil
}

func (s *fakeSource) Latest(_ context.Context, sub *models.Subscription) (*subscriptions.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.playlist != "" && sub.UploadsPlaylist == "" {
		sub.UploadsPlaylist = s.playlist
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.item == nil {
		return nil, nil
	}
	cp := *s.item
	return &cp, nil
}

func (s *fakeSource) setItem(item *subscriptions.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.item = item
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeThumbnailer struct{ err error }

func (t *fakeThumbnailer) Mirror(_ context.Context, imageURL string) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return "https://cdn.example/" + imageURL[strings.LastIndex(imageURL, "/")+1:], nil
}

func newTestSub(id, channel string) *models.Subscription {
	return &models.Subscription{
		ID:            id,
		GuildID:       "g1",
		Platform:      "fake",
		Identifier:    "someone",
		NormalizedID:  "someone",
		PostChannelID: channel,
		PingPolicy:    models.PingNone,
	}
}

func TestRenderAppendsMissingURL(t *testing.T) {
	t.Parallel()

	client := platformtest.New()
	poster := subscriptions.NewPoster(client)
	sub := newTestSub("fake:someone:c1", "c1")
	sub.Message = "new video: {title}"

	err := poster.Post(context.Background(), sub, &subscriptions.Item{
		ID:      "v1",
		Title:   "Hello",
		Channel: "Someone",
		URL:     "https://example.com/v1",
	})
	require.NoError(t, err)

	sent := client.SentTo("c1")
	require.Len(t, sent, 1)
	assert.Equal(t, "new video: Hello\nhttps://example.com/v1", sent[0].Content)
}

func TestRenderKeepsURLAlreadyInTemplate(t *testing.T) {
	t.Parallel()

	client := platformtest.New()
	poster := subscriptions.NewPoster(client)
	sub := newTestSub("fake:someone:c1", "c1")

	err := poster.Post(context.Background(), sub, &subscriptions.Item{
		ID:      "v1",
		Title:   "Hello",
		Channel: "Someone",
		URL:     "https://example.com/v1",
	})
	require.NoError(t, err)

	sent := client.SentTo("c1")
	require.Len(t, sent, 1)
	assert.Equal(t, 1, strings.Count(sent[0].Content, "https://example.com/v1"))
}

func TestPosterRolePingPrecedesBody(t *testing.T) {
	t.Parallel()

	client := platformtest.New()
	poster := subscriptions.NewPoster(client)
	sub := newTestSub("fake:someone:c1", "c1")
	sub.PingPolicy = models.PingRole
	sub.PingRoleID = "r9"

	err := poster.Post(context.Background(), sub, &subscriptions.Item{
		ID: "v1", Title: "Hello", Channel: "Someone", URL: "https://example.com/v1",
	})
	require.NoError(t, err)

	sent := client.SentTo("c1")
	require.Len(t, sent, 2)
	assert.Equal(t, "<@&r9>", sent[0].Content)
	assert.Contains(t, sent[1].Content, "Hello")
}

func TestPosterPingSuppressedWhenBodyMentions(t *testing.T) {
	t.Parallel()

	client := platformtest.New()
	poster := subscriptions.NewPoster(client)
	sub := newTestSub("fake:someone:c1", "c1")
	sub.PingPolicy = models.PingEveryone
	sub.Message = "hey @everyone, {channel} is live: {url}"

	err := poster.Post(context.Background(), sub, &subscriptions.Item{
		ID: "s1", Channel: "Someone", URL: "https://example.com/live",
	})
	require.NoError(t, err)

	sent := client.SentTo("c1")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Content, "@everyone")
}

func TestPosterRejectsGoneDestination(t *testing.T) {
	t.Parallel()

	client := platformtest.New()
	client.Unsendable["c1"] = true
	poster := subscriptions.NewPoster(client)

	err := poster.Post(context.Background(), newTestSub("fake:someone:c1", "c1"), &subscriptions.Item{ID: "v1"})
	assert.True(t, errs.IsKind(err, errs.NotFound))
	assert.Empty(t, client.SentTo("c1"))
}

func TestPosterDoesNotInterleavePingAndBody(t *testing.T) {
	t.Parallel()

	client := platformtest.New()
	poster := subscriptions.NewPoster(client)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		sub := newTestSub(fmt.Sprintf("fake:u%d:c1", i), "c1")
		sub.PingPolicy = models.PingRole
		sub.PingRoleID = "r1"
		item := &subscriptions.Item{ID: "v1", Title: fmt.Sprintf("post %d", i), URL: fmt.Sprintf("https://example.com/%d", i)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = poster.Post(context.Background(), sub, item)
		}()
	}
	wg.Wait()

	sent := client.SentTo("c1")
	require.Len(t, sent, 40)
	for i := 0; i < len(sent); i += 2 {
		assert.Equal(t, "<@&r1>", sent[i].Content)
		assert.NotEqual(t, "<@&r1>", sent[i+1].Content)
	}
}

func TestFollowRegistersAndRejectsDuplicates(t *testing.T) {
	t.Parallel()

	store := memory.New()
	client := platformtest.New()
	src := &fakeSource{thumb: "https://up.example/avatar.png", item: &subscriptions.Item{ID: "v0"}}
	reg := subscriptions.NewRegistry(store.Subs, map[string]subscriptions.Source{"fake": src}, client, &fakeThumbnailer{})

	sub, err := reg.Follow(context.Background(), subscriptions.FollowRequest{
		GuildID:       "g1",
		Platform:      "fake",
		Identifier:    "  SomeOne ",
		PostChannelID: "c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "fake:someone:c1", sub.ID)
	assert.Equal(t, "someone", sub.NormalizedID)
	assert.Equal(t, "https://cdn.example/avatar.png", sub.Thumbnail)

	_, err = reg.Follow(context.Background(), subscriptions.FollowRequest{
		GuildID:       "g1",
		Platform:      "fake",
		Identifier:    "someone",
		PostChannelID: "c1",
	})
	assert.True(t, errs.IsKind(err, errs.Conflict))
}

func TestFollowValidation(t *testing.T) {
	t.Parallel()

	store := memory.New()
	client := platformtest.New()
	client.Unsendable["gone"] = true
	src := &fakeSource{}
	reg := subscriptions.NewRegistry(store.Subs, map[string]subscriptions.Source{"fake": src}, client, nil)

	_, err := reg.Follow(context.Background(), subscriptions.FollowRequest{
		Platform: "myspace", Identifier: "x", PostChannelID: "c1",
	})
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))

	_, err = reg.Follow(context.Background(), subscriptions.FollowRequest{
		Platform: "fake", Identifier: "x", PostChannelID: "c1", PingPolicy: models.PingRole,
	})
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))

	_, err = reg.Follow(context.Background(), subscriptions.FollowRequest{
		Platform: "fake", Identifier: "x", PostChannelID: "gone",
	})
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))
}

func TestFollowSurvivesThumbnailMirrorFailure(t *testing.T) {
	t.Parallel()

	store := memory.New()
	client := platformtest.New()
	src := &fakeSource{thumb: "https://up.example/avatar.png"}
	reg := subscriptions.NewRegistry(store.Subs, map[string]subscriptions.Source{"fake": src}, client,
		&fakeThumbnailer{err: fmt.Errorf("bucket down")})

	sub, err := reg.Follow(context.Background(), subscriptions.FollowRequest{
		GuildID: "g1", Platform: "fake", Identifier: "someone", PostChannelID: "c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://up.example/avatar.png", sub.Thumbnail)
}

func TestUnfollowTwiceReportsNotFound(t *testing.T) {
	t.Parallel()

	store := memory.New()
	client := platformtest.New()
	src := &fakeSource{}
	reg := subscriptions.NewRegistry(store.Subs, map[string]subscriptions.Source{"fake": src}, client, nil)

	sub, err := reg.Follow(context.Background(), subscriptions.FollowRequest{
		GuildID: "g1", Platform: "fake", Identifier: "someone", PostChannelID: "c1",
	})
	require.NoError(t, err)

	require.NoError(t, reg.Unfollow(context.Background(), sub.ID))
	err = reg.Unfollow(context.Background(), sub.ID)
	assert.True(t, errs.IsKind(err, errs.NotFound))
}

func TestWorkerPostsEachItemExactlyOnce(t *testing.T) {
	t.Parallel()

	store := memory.New()
	client := platformtest.New()
	src := &fakeSource{item: &subscriptions.Item{ID: "v1", Title: "First", Channel: "Someone", URL: "https://example.com/v1"}}
	require.NoError(t, store.Subs.Add(context.Background(), newTestSub("fake:someone:c1", "c1")))

	worker := subscriptions.NewWorker(store.Subs, map[string]subscriptions.Source{"fake": src}, subscriptions.NewPoster(client))
	worker.SetThrottle(0)

	worker.Sweep(context.Background())
	worker.Sweep(context.Background())
	require.Len(t, client.SentTo("c1"), 1)

	src.setItem(&subscriptions.Item{ID: "v2", Title: "Second", Channel: "Someone", URL: "https://example.com/v2"})
	worker.Sweep(context.Background())
	sent := client.SentTo("c1")
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Content, "Second")

	sub, err := store.Subs.Get(context.Background(), "fake:someone:c1")
	require.NoError(t, err)
	assert.Equal(t, "v2", sub.LastSeen)
}

func TestWorkerThrottlesRepeatPolls(t *testing.T) {
	t.Parallel()

	store := memory.New()
	client := platformtest.New()
	src := &fakeSource{}
	require.NoError(t, store.Subs.Add(context.Background(), newTestSub("fake:someone:c1", "c1")))

	worker := subscriptions.NewWorker(store.Subs, map[string]subscriptions.Source{"fake": src}, subscriptions.NewPoster(client))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	worker.SetNow(func() time.Time { return now })

	worker.Sweep(context.Background())
	worker.Sweep(context.Background())
	assert.Equal(t, 1, src.callCount())

	now = now.Add(subscriptions.DefaultThrottle + time.Second)
	worker.Sweep(context.Background())
	assert.Equal(t, 2, src.callCount())
}

func TestWorkerThrottlesFailingSourceToo(t *testing.T) {
	t.Parallel()

	store := memory.New()
	client := platformtest.New()
	src := &fakeSource{err: fmt.Errorf("upstream down")}
	require.NoError(t, store.Subs.Add(context.Background(), newTestSub("fake:someone:c1", "c1")))

	worker := subscriptions.NewWorker(store.Subs, map[string]subscriptions.Source{"fake": src}, subscriptions.NewPoster(client))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	worker.SetNow(func() time.Time { return now })

	// The check timestamp moves before the fetch, so a failing poll
	// still counts against the throttle.
	worker.Sweep(context.Background())
	worker.Sweep(context.Background())
	assert.Equal(t, 1, src.callCount())
	assert.Empty(t, client.SentTo("c1"))
}

func TestWorkerPersistsPlaylistCache(t *testing.T) {
	t.Parallel()

	store := memory.New()
	client := platformtest.New()
	src := &fakeSource{playlist: "UUabc"}
	require.NoError(t, store.Subs.Add(context.Background(), newTestSub("fake:someone:c1", "c1")))

	worker := subscriptions.NewWorker(store.Subs, map[string]subscriptions.Source{"fake": src}, subscriptions.NewPoster(client))
	worker.SetThrottle(0)
	worker.Sweep(context.Background())

	sub, err := store.Subs.Get(context.Background(), "fake:someone:c1")
	require.NoError(t, err)
	assert.Equal(t, "UUabc", sub.UploadsPlaylist)
}

func TestForceCheckBypassesThrottle(t *testing.T) {
	t.Parallel()

	store := memory.New()
	client := platformtest.New()
	src := &fakeSource{item: &subscriptions.Item{ID: "v1", Title: "First", Channel: "Someone", URL: "https://example.com/v1"}}
	require.NoError(t, store.Subs.Add(context.Background(), newTestSub("fake:someone:c1", "c1")))

	worker := subscriptions.NewWorker(store.Subs, map[string]subscriptions.Source{"fake": src}, subscriptions.NewPoster(client))

	worker.Sweep(context.Background())
	assert.Equal(t, 1, src.callCount())

	src.setItem(&subscriptions.Item{ID: "v2", Title: "Second", Channel: "Someone", URL: "https://example.com/v2"})
	require.NoError(t, worker.ForceCheck(context.Background(), "fake:someone:c1"))
	assert.Equal(t, 2, src.callCount())
	require.Len(t, client.SentTo("c1"), 2)

	err := worker.ForceCheck(context.Background(), "fake:nobody:c1")
	assert.True(t, errs.IsKind(err, errs.NotFound))
}
