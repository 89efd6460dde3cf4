package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/handiism/cloudreve-downloader/internal/aria2"
	"github.com/handiism/cloudreve-downloader/internal/cache"
	"github.com/handiism/cloudreve-downloader/internal/config"
	"github.com/handiism/cloudreve-downloader/internal/model"
)

// fakeProcess is an aria2.Process whose liveness is scripted.
type fakeProcess struct {
	running  atomic.Bool
	startErr error
	starts   atomic.Int32

	// dieAfter makes IsRunning return false after that many calls when > 0.
	dieAfter int32
	checks   atomic.Int32
}

func (p *fakeProcess) IsRunning(ctx context.Context) bool {
	n := p.checks.Add(1)
	if p.dieAfter > 0 && n > p.dieAfter {
		return false
	}
	return p.running.Load()
}

func (p *fakeProcess) Start(ctx context.Context) error {
	p.starts.Add(1)
	if p.startErr != nil {
		return p.startErr
	}
	p.running.Store(true)
	return nil
}

func (p *fakeProcess) Stop() error {
	p.running.Store(false)
	return nil
}

type addCall struct {
	URI     string
	Options map[string]string
}

// fakeQueue records submissions and serves scripted download snapshots.
type fakeQueue struct {
	mu       sync.Mutex
	added    []addCall
	failURIs map[string]bool
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	// snapshots[i] is returned by the i-th Downloads call; the last one repeats.
	snapshots [][]aria2.Download
	polls     int
}

func (q *fakeQueue) AddURI(ctx context.Context, uris []string, options map[string]string) (string, error) {
	n := q.inFlight.Add(1)
	defer q.inFlight.Add(-1)
	for {
		cur := q.maxInFlight.Load()
		if n <= cur || q.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(q.delay)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failURIs[uris[0]] {
		return "", errors.New("queue full")
	}
	q.added = append(q.added, addCall{URI: uris[0], Options: options})
	return fmt.Sprintf("gid%d", len(q.added)), nil
}

func (q *fakeQueue) Downloads(ctx context.Context) ([]aria2.Download, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.snapshots) == 0 {
		return nil, nil
	}
	i := q.polls
	if i >= len(q.snapshots) {
		i = len(q.snapshots) - 1
	}
	q.polls++
	return q.snapshots[i], nil
}

// eventLog collects progress events from concurrent goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (l *eventLog) add(e ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(level ProgressLevel, substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Level == level && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	dir := t.TempDir()
	s := config.DefaultSettings()
	s.DownloadRoot = filepath.Join(dir, "download")
	s.CacheDir = filepath.Join(dir, "cache")
	s.MonitorInterval = 5 * time.Millisecond
	s.API.Timeout = 5 * time.Second
	return s
}

func fiveFiles() ([]model.FileEntry, model.LinkTable) {
	files := []model.FileEntry{
		{Path: "/big.iso", Size: 5000},
		{Path: "/a.txt", Size: 10},
		{Path: "/docs/b.pdf", Size: 300},
		{Path: "/docs/deep/c.md", Size: 20},
		{Path: "/missing.bin", Size: 70},
	}
	links := model.LinkTable{
		"/big.iso":        "https://dl/big",
		"/a.txt":          "https://dl/a",
		"/docs/b.pdf":     "https://dl/b",
		"/docs/deep/c.md": "https://dl/c",
	}
	return files, links
}

func TestManager_EnsureDaemon(t *testing.T) {
	t.Run("already running", func(t *testing.T) {
		proc := &fakeProcess{}
		proc.running.Store(true)
		m := NewManager(testSettings(t), nil, WithProcess(proc), WithQueue(&fakeQueue{}))

		if err := m.EnsureDaemon(context.Background()); err != nil {
			t.Fatalf("EnsureDaemon failed: %v", err)
		}
		if proc.starts.Load() != 0 {
			t.Error("Start must not be called when aria2 is running")
		}
	})

	t.Run("starts when absent", func(t *testing.T) {
		proc := &fakeProcess{}
		m := NewManager(testSettings(t), nil, WithProcess(proc), WithQueue(&fakeQueue{}))

		if err := m.EnsureDaemon(context.Background()); err != nil {
			t.Fatalf("EnsureDaemon failed: %v", err)
		}
		if proc.starts.Load() != 1 {
			t.Errorf("Start called %d times, want 1", proc.starts.Load())
		}
	})

	t.Run("start failure is returned", func(t *testing.T) {
		proc := &fakeProcess{startErr: aria2.ErrNotFound}
		m := NewManager(testSettings(t), nil, WithProcess(proc), WithQueue(&fakeQueue{}))

		err := m.EnsureDaemon(context.Background())
		if !errors.Is(err, aria2.ErrNotFound) {
			t.Errorf("EnsureDaemon() error = %v, want ErrNotFound", err)
		}
	})
}

func TestManager_Open(t *testing.T) {
	t.Run("invalid URL does not start aria2", func(t *testing.T) {
		proc := &fakeProcess{}
		m := NewManager(testSettings(t), nil, WithProcess(proc), WithQueue(&fakeQueue{}))

		err := m.Open(context.Background(), "https://host/folder/NOT-A-SHARE")
		if !errors.Is(err, model.ErrInvalidShareURL) {
			t.Fatalf("Open() error = %v, want ErrInvalidShareURL", err)
		}
		if proc.starts.Load() != 0 || proc.checks.Load() != 0 {
			t.Errorf("aria2 touched: %d starts, %d checks", proc.starts.Load(), proc.checks.Load())
		}
	})

	t.Run("valid URL starts aria2", func(t *testing.T) {
		proc := &fakeProcess{}
		m := NewManager(testSettings(t), nil, WithProcess(proc), WithQueue(&fakeQueue{}))

		if err := m.Open(context.Background(), "https://cloud.example.com/s/AB5so"); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if proc.starts.Load() != 1 {
			t.Errorf("Start called %d times, want 1", proc.starts.Load())
		}
		if got := m.GetShare().Code; got != "AB5so" {
			t.Errorf("share code = %q, want AB5so", got)
		}
	})

	t.Run("daemon failure is not a URL error", func(t *testing.T) {
		proc := &fakeProcess{startErr: aria2.ErrNotFound}
		m := NewManager(testSettings(t), nil, WithProcess(proc), WithQueue(&fakeQueue{}))

		err := m.Open(context.Background(), "https://cloud.example.com/s/AB5so")
		if !errors.Is(err, aria2.ErrNotFound) || errors.Is(err, model.ErrInvalidShareURL) {
			t.Errorf("Open() error = %v, want ErrNotFound only", err)
		}
	})
}

func TestManager_DispatchSkipsUnresolved(t *testing.T) {
	settings := testSettings(t)
	events := &eventLog{}
	queue := &fakeQueue{}
	m := NewManager(settings, events.add, WithProcess(&fakeProcess{}), WithQueue(queue))

	files, links := fiveFiles()
	m.setPlan(files, links)

	if err := m.Dispatch(context.Background()); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if len(queue.added) != 4 {
		t.Fatalf("queued %d files, want 4", len(queue.added))
	}
	for _, call := range queue.added {
		if call.URI == "" {
			t.Error("empty URI queued")
		}
	}
	if events.count(LevelWarning, "/missing.bin") != 1 {
		t.Error("expected a warning for the file without a link")
	}

	queued, failed := m.GetDispatchStats()
	if queued != 4 || failed != 0 {
		t.Errorf("GetDispatchStats() = %d, %d; want 4, 0", queued, failed)
	}

	_, total, _, totalFiles := m.GetProgress()
	if totalFiles != 4 {
		t.Errorf("totalFiles = %d, want 4", totalFiles)
	}
	if total != 5000+10+300+20 {
		t.Errorf("total = %d", total)
	}
}

func TestManager_DispatchDestinations(t *testing.T) {
	settings := testSettings(t)
	queue := &fakeQueue{}
	m := NewManager(settings, nil, WithProcess(&fakeProcess{}), WithQueue(queue))

	m.setPlan(
		[]model.FileEntry{{Path: "/docs/deep/c.md", Size: 1}},
		model.LinkTable{"/docs/deep/c.md": "https://dl/c"},
	)

	if err := m.Dispatch(context.Background()); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(queue.added) != 1 {
		t.Fatalf("queued %d files, want 1", len(queue.added))
	}

	wantDir, _ := filepath.Abs(filepath.Join(settings.DownloadRoot, "docs", "deep"))
	opts := queue.added[0].Options
	if opts["dir"] != wantDir {
		t.Errorf("dir option = %q, want %q", opts["dir"], wantDir)
	}
	if opts["out"] != "c.md" {
		t.Errorf("out option = %q, want c.md", opts["out"])
	}
	if info, err := os.Stat(wantDir); err != nil || !info.IsDir() {
		t.Errorf("destination directory not created: %v", err)
	}
}

func TestManager_DispatchRespectsConcurrencyLimit(t *testing.T) {
	settings := testSettings(t)
	settings.MaxConcurrentDownloads = 2
	queue := &fakeQueue{delay: 20 * time.Millisecond}
	m := NewManager(settings, nil, WithProcess(&fakeProcess{}), WithQueue(queue))

	var files []model.FileEntry
	links := model.LinkTable{}
	for i := 0; i < 8; i++ {
		p := fmt.Sprintf("/f%d", i)
		files = append(files, model.FileEntry{Path: p, Size: int64(i)})
		links[p] = "https://dl" + p
	}
	m.setPlan(files, links)

	if err := m.Dispatch(context.Background()); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if got := queue.maxInFlight.Load(); got > 2 {
		t.Errorf("max in-flight submissions = %d, want <= 2", got)
	}
	if len(queue.added) != 8 {
		t.Errorf("queued %d files, want 8", len(queue.added))
	}
}

func TestManager_DispatchFailureIsSkipped(t *testing.T) {
	events := &eventLog{}
	queue := &fakeQueue{failURIs: map[string]bool{"https://dl/b": true}}
	m := NewManager(testSettings(t), events.add, WithProcess(&fakeProcess{}), WithQueue(queue))

	files, links := fiveFiles()
	m.setPlan(files, links)

	if err := m.Dispatch(context.Background()); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	queued, failed := m.GetDispatchStats()
	if queued != 3 || failed != 1 {
		t.Errorf("GetDispatchStats() = %d, %d; want 3, 1", queued, failed)
	}
	if events.count(LevelError, "/docs/b.pdf") != 1 {
		t.Error("expected an error event for the failed submission")
	}
}

func TestManager_MonitorIgnoresRefusedFiles(t *testing.T) {
	events := &eventLog{}
	proc := &fakeProcess{}
	proc.running.Store(true)
	queue := &fakeQueue{
		failURIs: map[string]bool{"https://dl/b": true},
		snapshots: [][]aria2.Download{{
			{GID: "gid1", Status: "complete", CompletedLength: "10"},
			{GID: "gid2", Status: "complete", CompletedLength: "20"},
			{GID: "gid3", Status: "complete", CompletedLength: "5000"},
		}},
	}
	m := NewManager(testSettings(t), events.add, WithProcess(proc), WithQueue(queue))

	files, links := fiveFiles()
	m.setPlan(files, links)
	if err := m.Dispatch(context.Background()); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Monitor(ctx); err != nil {
		t.Fatalf("Monitor() = %v, want nil once the queued files complete", err)
	}

	_, _, done, total := m.GetProgress()
	if done != 3 || total != 4 {
		t.Errorf("GetProgress() files = %d/%d, want 3/4", done, total)
	}
	if events.count(LevelSuccess, "All files downloaded") != 1 {
		t.Error("expected a completion event")
	}
}

func TestManager_MonitorCompletes(t *testing.T) {
	events := &eventLog{}
	proc := &fakeProcess{}
	proc.running.Store(true)
	queue := &fakeQueue{snapshots: [][]aria2.Download{
		{
			{GID: "1", Status: "active", CompletedLength: "5"},
			{GID: "2", Status: "waiting", CompletedLength: "0"},
		},
		{
			{GID: "1", Status: "complete", CompletedLength: "10"},
			{GID: "2", Status: "active", CompletedLength: "100"},
		},
		{
			{GID: "1", Status: "complete", CompletedLength: "10"},
			{GID: "2", Status: "complete", CompletedLength: "300"},
		},
	}}
	m := NewManager(testSettings(t), events.add, WithProcess(proc), WithQueue(queue))
	m.setPlan(
		[]model.FileEntry{{Path: "/a", Size: 10}, {Path: "/b", Size: 300}},
		model.LinkTable{"/a": "https://dl/a", "/b": "https://dl/b"},
	)

	if err := m.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor() = %v, want nil", err)
	}

	received, total, files, totalFiles := m.GetProgress()
	if received != total || files != totalFiles {
		t.Errorf("GetProgress() = %d/%d bytes, %d/%d files; want complete", received, total, files, totalFiles)
	}
	if queue.polls != 3 {
		t.Errorf("polled %d times, want 3", queue.polls)
	}
	if events.count(LevelInfo, "100.00%") != 1 {
		t.Error("expected a 100.00% progress line")
	}
	if events.count(LevelSuccess, "All files downloaded") != 1 {
		t.Error("expected a completion event")
	}
}

func TestManager_MonitorStopsWhenDaemonExits(t *testing.T) {
	events := &eventLog{}
	proc := &fakeProcess{dieAfter: 2}
	proc.running.Store(true)
	queue := &fakeQueue{snapshots: [][]aria2.Download{
		{{GID: "1", Status: "active", CompletedLength: "1"}},
	}}
	m := NewManager(testSettings(t), events.add, WithProcess(proc), WithQueue(queue))
	m.setPlan(
		[]model.FileEntry{{Path: "/a", Size: 10}},
		model.LinkTable{"/a": "https://dl/a"},
	)

	err := m.Monitor(context.Background())
	if !errors.Is(err, aria2.ErrNotRunning) {
		t.Fatalf("Monitor() = %v, want ErrNotRunning", err)
	}
	if queue.polls != 2 {
		t.Errorf("polled %d times, want 2", queue.polls)
	}
	if events.count(LevelWarning, "aria2 has exited") != 1 {
		t.Error("expected a warning when aria2 disappears")
	}
}

func TestManager_MonitorCancelled(t *testing.T) {
	proc := &fakeProcess{}
	proc.running.Store(true)
	m := NewManager(testSettings(t), nil, WithProcess(proc), WithQueue(&fakeQueue{}))
	m.setPlan(
		[]model.FileEntry{{Path: "/a", Size: 10}},
		model.LinkTable{"/a": "https://dl/a"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := m.Monitor(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Monitor() = %v, want DeadlineExceeded", err)
	}
}

func TestManager_StartDownloads(t *testing.T) {
	proc := &fakeProcess{}
	proc.running.Store(true)
	queue := &fakeQueue{snapshots: [][]aria2.Download{
		{},
		{
			{GID: "1", Status: "complete", CompletedLength: "10"},
			{GID: "2", Status: "complete", CompletedLength: "20"},
		},
	}}
	m := NewManager(testSettings(t), nil, WithProcess(proc), WithQueue(queue))
	m.setPlan(
		[]model.FileEntry{{Path: "/a", Size: 10}, {Path: "/b", Size: 20}},
		model.LinkTable{"/a": "https://dl/a", "/b": "https://dl/b"},
	)

	if err := m.StartDownloads(context.Background()); err != nil {
		t.Fatalf("StartDownloads failed: %v", err)
	}
	if len(queue.added) != 2 {
		t.Errorf("queued %d files, want 2", len(queue.added))
	}
}

// cloudreveServer serves a flat share of five files where /b.txt cannot be
// resolved.
func cloudreveServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"code":0,"msg":"","data":{"objects":[
				{"name":"e.txt","type":"file","size":50},
				{"name":"a.txt","type":"file","size":10},
				{"name":"b.txt","type":"file","size":20},
				{"name":"c.txt","type":"file","size":30},
				{"name":"d.txt","type":"file","size":40}]}}`))
		case http.MethodPut:
			p := r.URL.Query().Get("path")
			if p == "/b.txt" {
				w.Write([]byte(`{"code":40001,"msg":"not found","data":""}`))
				return
			}
			w.Write([]byte(`{"code":0,"msg":"","data":"https://dl` + p + `"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestManager_InitializeWalksResolvesAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := cloudreveServer(t, &hits)

	settings := testSettings(t)
	events := &eventLog{}
	m := NewManager(settings, events.add, WithProcess(&fakeProcess{}), WithQueue(&fakeQueue{}))

	if err := m.Initialize(context.Background(), srv.URL+"/s/ABC?pwd=1"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	files := m.GetFiles()
	if len(files) != 5 {
		t.Fatalf("got %d files, want 5", len(files))
	}
	for i := 1; i < len(files); i++ {
		if files[i-1].Size > files[i].Size {
			t.Errorf("files not sorted by size: %v", files)
			break
		}
	}
	if len(m.GetLinks()) != 4 {
		t.Errorf("got %d links, want 4", len(m.GetLinks()))
	}
	if events.count(LevelError, "not found") != 1 {
		t.Error("expected the failed resolution to be reported")
	}

	share := m.GetShare()
	record, ok, err := cache.NewStore(settings.CacheDir).Load(cache.Key(share))
	if err != nil || !ok {
		t.Fatalf("cache not written: ok=%v err=%v", ok, err)
	}
	if len(record.Files) != 5 || len(record.Links) != 4 {
		t.Errorf("cached record = %d files, %d links", len(record.Files), len(record.Links))
	}

	// A second run is served from the cache without touching the server.
	before := hits.Load()
	m2 := NewManager(settings, nil, WithProcess(&fakeProcess{}), WithQueue(&fakeQueue{}))
	if err := m2.Initialize(context.Background(), srv.URL+"/s/ABC"); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if hits.Load() != before {
		t.Errorf("cached run made %d requests", hits.Load()-before)
	}
	if len(m2.GetLinks()) != 4 {
		t.Errorf("cached run has %d links, want 4", len(m2.GetLinks()))
	}

	// Refresh bypasses the cache.
	settings.RefreshCache = true
	m3 := NewManager(settings, nil, WithProcess(&fakeProcess{}), WithQueue(&fakeQueue{}))
	if err := m3.Initialize(context.Background(), srv.URL+"/s/ABC"); err != nil {
		t.Fatalf("refresh Initialize failed: %v", err)
	}
	if hits.Load() == before {
		t.Error("refresh run did not contact the server")
	}
}

func TestManager_InitializeInvalidURL(t *testing.T) {
	m := NewManager(testSettings(t), nil, WithProcess(&fakeProcess{}), WithQueue(&fakeQueue{}))

	err := m.Initialize(context.Background(), "https://host/folder/ABC")
	if !errors.Is(err, model.ErrInvalidShareURL) {
		t.Errorf("Initialize() error = %v, want ErrInvalidShareURL", err)
	}
}
