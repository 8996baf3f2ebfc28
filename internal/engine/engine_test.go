package engine

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jibinmichael/paperforslack/internal/bootstrap"
	"github.com/jibinmichael/paperforslack/internal/canvas"
	"github.com/jibinmichael/paperforslack/internal/directory"
	"github.com/jibinmichael/paperforslack/internal/observability"
	"github.com/jibinmichael/paperforslack/internal/platform"
	"github.com/jibinmichael/paperforslack/internal/scheduler"
	"github.com/jibinmichael/paperforslack/internal/store"
	"github.com/jibinmichael/paperforslack/pkg/models"
)

type fakeClient struct {
	mu sync.Mutex

	history []models.Message

	posts   int
	fetches int
	creates int
	lookups int

	lastPosted string
}

func (f *fakeClient) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts + f.fetches + f.creates + f.lookups
}

func (f *fakeClient) PostMessage(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts++
	f.lastPosted = text
	return nil
}

func (f *fakeClient) FetchHistory(context.Context, string, time.Time, int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.history, nil
}

func (f *fakeClient) ChannelCanvasID(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return "", nil
}

func (f *fakeClient) CreateChannelCanvas(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	return "F-1", nil
}

func (f *fakeClient) ReplaceCanvasBody(context.Context, string, string) error { return nil }

func (f *fakeClient) RenameCanvas(context.Context, string, string) error {
	return platform.NewError(platform.ErrCodeUnsupported, "canvas.rename", "unsupported", nil)
}

func (f *fakeClient) UserDisplayName(_ context.Context, id string) (string, error) {
	return id, nil
}

func (f *fakeClient) BotUserID() string { return "UBOT" }

type stubGateway struct{}

func (stubGateway) Summarize(context.Context, []models.Message) (string, error) {
	return "digest", nil
}

func (stubGateway) Title(context.Context, []models.Message) (string, error) {
	return "Title", nil
}

type fixture struct {
	engine *Engine
	store  *store.Store
	dir    *directory.Directory
	client *fakeClient
	sched  *scheduler.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	metrics := observability.NewMetrics()
	tracer, _ := observability.NewTracer(observability.TraceConfig{})

	client := &fakeClient{}
	dir := directory.New(directory.NewMemoryStore(), func(models.Installation) platform.Client {
		return client
	})

	channelStore := store.New(0)
	syncer := canvas.New(canvas.Config{}, channelStore, stubGateway{}, logger, metrics, tracer)
	importer := bootstrap.New(bootstrap.Config{MinMessages: 1}, syncer, logger, metrics)

	eng := New(dir, channelStore, syncer, importer, logger, metrics)
	sched := scheduler.New(channelStore, scheduler.Config{MessageLimit: 100, TimeWindow: time.Hour}, eng.Flush)
	eng.BindScheduler(sched)

	return &fixture{engine: eng, store: channelStore, dir: dir, client: client, sched: sched}
}

func (f *fixture) install(t *testing.T) {
	t.Helper()
	err := f.dir.Install(context.Background(), models.Installation{
		Mode:        models.InstallModeMulti,
		TeamID:      "T1",
		BotToken:    "xoxb-test",
		BotUserID:   "UBOT",
		InstalledAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func userMessage(text string) models.Message {
	return models.Message{UserID: "U1", Text: text, Timestamp: time.Now()}
}

func TestUninstalledWorkspaceTouchesNothing(t *testing.T) {
	f := newFixture(t)

	f.engine.OnMessage(context.Background(), "T404", "C1", userMessage("hello"))
	f.engine.OnMention(context.Background(), "T404", "C1", "U1", "summarize")
	f.engine.OnMemberJoined(context.Background(), "T404", "C1", "UBOT")

	if f.client.totalCalls() != 0 {
		t.Fatalf("platform calls for uninstalled workspace = %d, want 0", f.client.totalCalls())
	}
	if f.store.Len() != 0 {
		t.Fatalf("channel state entries = %d, want 0", f.store.Len())
	}
}

func TestOnMessageBuffersAndBootstraps(t *testing.T) {
	f := newFixture(t)
	f.install(t)
	f.client.history = []models.Message{
		{UserID: "U2", Text: "earlier chatter", Timestamp: time.Now().Add(-time.Hour)},
	}

	f.engine.OnMessage(context.Background(), "T1", "C1", userMessage("hello"))

	key := models.ChannelKey{TeamID: "T1", ChannelID: "C1"}
	st, ok := f.store.Get(key)
	if !ok {
		t.Fatal("channel state should exist")
	}
	if st.Len() != 1 {
		t.Fatalf("buffered = %d, want 1", st.Len())
	}

	// Bootstrap runs asynchronously on first contact.
	waitFor(t, func() bool {
		f.client.mu.Lock()
		defer f.client.mu.Unlock()
		return f.client.fetches == 1 && f.client.creates == 1
	})
}

func TestOnMessageIgnoresOwnMessages(t *testing.T) {
	f := newFixture(t)
	f.install(t)

	f.engine.OnMessage(context.Background(), "T1", "C1", models.Message{
		UserID: "UBOT", Text: "my own summary post", Timestamp: time.Now(),
	})

	if f.store.Len() != 0 {
		t.Fatal("bot's own messages must not create channel state")
	}
}

func TestOnMentionHelp(t *testing.T) {
	f := newFixture(t)
	f.install(t)

	f.engine.OnMention(context.Background(), "T1", "C1", "U1", "help")

	waitFor(t, func() bool { return f.client.totalCalls() > 0 })
	f.client.mu.Lock()
	defer f.client.mu.Unlock()
	if f.client.posts != 1 {
		t.Fatalf("posts = %d, want 1 help reply", f.client.posts)
	}
}

func TestOnMentionSummarizeBootstrapsFirst(t *testing.T) {
	f := newFixture(t)
	f.install(t)
	f.client.history = []models.Message{
		{UserID: "U2", Text: "backlog grooming notes", Timestamp: time.Now().Add(-time.Hour)},
	}

	f.engine.OnMention(context.Background(), "T1", "C1", "U1", "summarize")

	waitFor(t, func() bool {
		f.client.mu.Lock()
		defer f.client.mu.Unlock()
		return f.client.creates == 1
	})
}

func TestOnUninstallPurgesEverything(t *testing.T) {
	f := newFixture(t)
	f.install(t)

	f.engine.OnMessage(context.Background(), "T1", "C1", userMessage("hello"))
	f.engine.OnMessage(context.Background(), "T1", "C2", userMessage("hello"))

	f.engine.OnUninstall(context.Background(), "T1")

	if f.store.Len() != 0 {
		t.Fatalf("channel entries after uninstall = %d, want 0", f.store.Len())
	}
	if _, _, err := f.dir.Resolve(context.Background(), "T1"); err == nil {
		t.Fatal("workspace should be gone from the directory")
	}
}
