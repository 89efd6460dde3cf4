package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/handiism/cloudreve-downloader/internal/aria2"
	"github.com/handiism/cloudreve-downloader/internal/cache"
	"github.com/handiism/cloudreve-downloader/internal/cloudreve"
	"github.com/handiism/cloudreve-downloader/internal/config"
	"github.com/handiism/cloudreve-downloader/internal/http"
	ioutils "github.com/handiism/cloudreve-downloader/internal/io"
	"github.com/handiism/cloudreve-downloader/internal/model"
	"golang.org/x/sync/errgroup"
)

// ProgressLevel indicates the severity/type of a progress message.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// ProgressEvent represents a download progress update.
type ProgressEvent struct {
	Message string
	Level   ProgressLevel
}

// Queue is the subset of the aria2 client used by the Manager.
type Queue interface {
	AddURI(ctx context.Context, uris []string, options map[string]string) (string, error)
	Downloads(ctx context.Context) ([]aria2.Download, error)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithProcess replaces the aria2 process controller.
func WithProcess(p aria2.Process) Option {
	return func(m *Manager) { m.daemon = p }
}

// WithQueue replaces the aria2 RPC client.
func WithQueue(q Queue) Option {
	return func(m *Manager) { m.queue = q }
}

// Manager coordinates a share download.
type Manager struct {
	settings   *config.Settings
	httpClient *http.Client
	store      *cache.Store
	daemon     aria2.Process
	queue      Queue

	share model.ShareReference
	files []model.FileEntry
	links model.LinkTable

	totalBytes     int64
	totalFiles     int32
	completedBytes int64
	completedFiles int32
	queuedFiles    int32
	failedFiles    int32

	onProgress func(ProgressEvent)
}

// NewManager creates a new download Manager.
func NewManager(settings *config.Settings, onProgress func(ProgressEvent), opts ...Option) *Manager {
	m := &Manager{
		settings:   settings,
		httpClient: http.NewClient(settings.API.Timeout, settings.API.UserAgent, settings.API.RequestsPerSecond),
		store:      cache.NewStore(settings.CacheDir),
		daemon:     aria2.NewDaemon(settings.Aria2, settings.MaxConcurrentDownloads),
		queue: aria2.NewClient(
			http.NewClient(settings.API.Timeout, settings.API.UserAgent, 0),
			settings.Aria2Endpoint(),
			settings.Aria2.Secret,
		),
		links:      model.LinkTable{},
		onProgress: onProgress,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureDaemon makes sure aria2 is running, starting it if needed.
//
// An error means aria2 is missing or could not be started; the caller is
// expected to treat it as fatal.
func (m *Manager) EnsureDaemon(ctx context.Context) error {
	if m.daemon.IsRunning(ctx) {
		m.progress(ProgressEvent{Message: "aria2 is already running, skipping start", Level: LevelInfo})
		return nil
	}

	m.progress(ProgressEvent{Message: "Starting aria2...", Level: LevelInfo})
	if err := m.daemon.Start(ctx); err != nil {
		return fmt.Errorf("failed to start aria2: %w", err)
	}

	m.progress(ProgressEvent{Message: "aria2 started", Level: LevelSuccess})
	return nil
}

// Open checks shareURL and then makes sure aria2 is running.
//
// The URL is validated first so a bad link never launches the daemon; such
// errors wrap model.ErrInvalidShareURL. Any other error comes from
// EnsureDaemon.
func (m *Manager) Open(ctx context.Context, shareURL string) error {
	share, err := model.ParseShareURL(shareURL)
	if err != nil {
		return err
	}
	m.share = share

	return m.EnsureDaemon(ctx)
}

// Initialize resolves the share behind shareURL into a file list and links.
//
// A cached record is used when present unless settings.RefreshCache is set.
// Otherwise the share is walked, files are sorted by size, a link is
// resolved for each file and the result is cached.
func (m *Manager) Initialize(ctx context.Context, shareURL string) error {
	share, err := model.ParseShareURL(shareURL)
	if err != nil {
		return err
	}
	m.share = share

	key := cache.Key(share)
	if m.settings.RefreshCache {
		if err := m.store.Remove(key); err != nil {
			m.progress(ProgressEvent{Message: fmt.Sprintf("Failed to remove cached listing: %v", err), Level: LevelWarning})
		}
	} else {
		record, ok, err := m.store.Load(key)
		if err != nil {
			m.progress(ProgressEvent{Message: fmt.Sprintf("Ignoring unreadable cache %s: %v", m.store.Path(key), err), Level: LevelVerbose})
		}
		if ok {
			m.progress(ProgressEvent{Message: fmt.Sprintf("Loaded listing from cache %s", m.store.Path(key)), Level: LevelInfo})
			m.setPlan(record.Files, record.Links)
			return nil
		}
	}

	api := cloudreve.NewClient(m.httpClient, share)
	api.OnError = func(err error) {
		m.progress(ProgressEvent{Message: err.Error(), Level: LevelError})
	}

	m.progress(ProgressEvent{Message: fmt.Sprintf("Listing share %s", share.Code), Level: LevelInfo})
	files := api.Walk(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	model.SortBySize(files)

	m.progress(ProgressEvent{Message: fmt.Sprintf("Found %d files, resolving download links", len(files)), Level: LevelInfo})
	links := api.Resolve(ctx, model.Paths(files))
	if err := ctx.Err(); err != nil {
		return err
	}

	// An empty walk usually means the server was unreachable; don't pin it.
	if len(files) > 0 {
		record := &model.CacheRecord{Files: files, Links: links}
		if err := m.store.Save(key, record); err != nil {
			m.progress(ProgressEvent{Message: fmt.Sprintf("Failed to write cache: %v", err), Level: LevelWarning})
		} else {
			m.progress(ProgressEvent{Message: fmt.Sprintf("Listing cached to %s", m.store.Path(key)), Level: LevelInfo})
		}
	}

	m.setPlan(files, links)
	return nil
}

// StartDownloads queues every resolved file into aria2 and monitors the
// overall progress until all files complete, aria2 disappears or ctx is
// cancelled. Dispatch and monitoring run concurrently.
func (m *Manager) StartDownloads(ctx context.Context) error {
	if m.totalFiles == 0 {
		m.progress(ProgressEvent{Message: "Nothing to download", Level: LevelWarning})
		return nil
	}

	var g errgroup.Group
	g.Go(func() error {
		return m.Monitor(ctx)
	})

	dispatchErr := m.Dispatch(ctx)
	monitorErr := g.Wait()

	if dispatchErr != nil {
		return dispatchErr
	}
	if errors.Is(monitorErr, aria2.ErrNotRunning) {
		return nil
	}
	return monitorErr
}

// Dispatch hands every file with a link to aria2.
//
// At most settings.MaxConcurrentDownloads submissions are in flight at once;
// the limit is shared by all files of the run. Failures are reported and the
// file is skipped.
func (m *Manager) Dispatch(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(m.settings.MaxConcurrentDownloads)

	for _, file := range m.files {
		link, ok := m.links[file.Path]
		if !ok {
			m.progress(ProgressEvent{Message: fmt.Sprintf("No download link for %s, skipping", file.Path), Level: LevelWarning})
			continue
		}
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			m.dispatchFile(ctx, file, link)
			return nil
		})
	}

	g.Wait()
	return ctx.Err()
}

func (m *Manager) dispatchFile(ctx context.Context, file model.FileEntry, link string) {
	dir, name := ioutils.LocalPath(m.settings.DownloadRoot, file.Path)
	dir, err := filepath.Abs(dir)
	if err == nil {
		err = ioutils.EnsureDir(dir)
	}
	if err != nil {
		atomic.AddInt32(&m.failedFiles, 1)
		m.progress(ProgressEvent{Message: fmt.Sprintf("Failed to create directory for %s: %v", file.Path, err), Level: LevelError})
		return
	}

	options := map[string]string{"dir": dir}
	if name != "" {
		options["out"] = name
	}

	gid, err := m.queue.AddURI(ctx, []string{link}, options)
	if err != nil {
		atomic.AddInt32(&m.failedFiles, 1)
		m.progress(ProgressEvent{Message: fmt.Sprintf("Failed to queue %s: %v", file.Path, err), Level: LevelError})
		return
	}

	atomic.AddInt32(&m.queuedFiles, 1)
	m.progress(ProgressEvent{Message: fmt.Sprintf("Queued %s (gid %s)", file.Path, gid), Level: LevelInfo})
}

// Monitor polls aria2 every settings.MonitorInterval and reports aggregate
// progress.
//
// It returns nil once the number of completed downloads reaches the number
// of files to download, less those that could not be queued, an error wrapping aria2.ErrNotRunning when the
// daemon can no longer be detected, or ctx.Err() when cancelled.
func (m *Manager) Monitor(ctx context.Context) error {
	ticker := time.NewTicker(m.settings.MonitorInterval)
	defer ticker.Stop()

	for {
		if !m.daemon.IsRunning(ctx) {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.progress(ProgressEvent{Message: "aria2 has exited, stopping progress monitor", Level: LevelWarning})
			return aria2.ErrNotRunning
		}

		downloads, err := m.queue.Downloads(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.progress(ProgressEvent{Message: fmt.Sprintf("Failed to query aria2: %v", err), Level: LevelWarning})
		} else if m.record(downloads) {
			m.progress(ProgressEvent{Message: "All files downloaded, stopping progress monitor", Level: LevelSuccess})
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// record stores an aria2 snapshot, logs it and reports whether every file
// has completed.
func (m *Manager) record(downloads []aria2.Download) bool {
	var files int32
	var bytes int64
	for _, d := range downloads {
		if d.IsComplete() {
			files++
		}
		bytes += d.Completed()
	}

	atomic.StoreInt32(&m.completedFiles, files)
	atomic.StoreInt64(&m.completedBytes, bytes)

	var percent float64
	if m.totalBytes > 0 {
		percent = float64(bytes) / float64(m.totalBytes) * 100
	}

	m.progress(ProgressEvent{
		Message: fmt.Sprintf("Progress: %d/%d files, %s/%s, %.2f%%",
			files, m.totalFiles, model.FormatSize(bytes), model.FormatSize(m.totalBytes), percent),
		Level: LevelInfo,
	})

	// Files aria2 refused will never complete.
	return files >= m.totalFiles-atomic.LoadInt32(&m.failedFiles)
}

// GetProgress returns the last progress snapshot taken from aria2.
func (m *Manager) GetProgress() (received, total int64, filesReceived, filesTotal int32) {
	return atomic.LoadInt64(&m.completedBytes), m.totalBytes,
		atomic.LoadInt32(&m.completedFiles), m.totalFiles
}

// GetDispatchStats returns how many files were queued into aria2 and how
// many could not be queued.
func (m *Manager) GetDispatchStats() (queued, failed int32) {
	return atomic.LoadInt32(&m.queuedFiles), atomic.LoadInt32(&m.failedFiles)
}

// GetFiles returns the files of the share, smallest first.
func (m *Manager) GetFiles() []model.FileEntry {
	return m.files
}

// GetLinks returns the resolved download links.
func (m *Manager) GetLinks() model.LinkTable {
	return m.links
}

// GetShare returns the share parsed by Initialize.
func (m *Manager) GetShare() model.ShareReference {
	return m.share
}

// setPlan installs the file list and links and computes the totals the
// monitor measures against. Files without a link are not counted.
func (m *Manager) setPlan(files []model.FileEntry, links model.LinkTable) {
	if links == nil {
		links = model.LinkTable{}
	}
	model.SortBySize(files)
	m.files = files
	m.links = links

	m.totalFiles = 0
	m.totalBytes = 0
	for _, f := range files {
		if _, ok := links[f.Path]; ok {
			m.totalFiles++
			m.totalBytes += f.Size
		}
	}

	if missing := len(files) - int(m.totalFiles); missing > 0 {
		m.progress(ProgressEvent{Message: fmt.Sprintf("%d files have no download link and will be skipped", missing), Level: LevelWarning})
	}
	m.progress(ProgressEvent{
		Message: fmt.Sprintf("Total files: %d, total size: %s", m.totalFiles, model.FormatSize(m.totalBytes)),
		Level:   LevelInfo,
	})
}

func (m *Manager) progress(event ProgressEvent) {
	if m.onProgress != nil {
		m.onProgress(event)
	}
}
