// Package tui provides a Bubble Tea terminal user interface for cloudreve-downloader.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/handiism/cloudreve-downloader/internal/config"
	"github.com/handiism/cloudreve-downloader/internal/download"
	"github.com/handiism/cloudreve-downloader/internal/logging"
)

const maxLogs = 10

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateInitializing
	StateDownloading
	StateComplete
	StateError
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   download.ProgressLevel
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	settings  *config.Settings
	logger    *log.Logger
	events    chan download.ProgressEvent
	logs      []LogEntry
	err       error

	// Download context
	ctx    context.Context
	cancel context.CancelFunc

	// Download manager reference
	manager *download.Manager

	// Share summary, filled once the listing is known
	share     string
	fileCount int

	// Download progress
	totalFiles      int32
	downloadedFiles int32
	totalBytes      int64
	receivedBytes   int64

	// Options
	refresh bool
	verbose bool
}

// NewModel creates a new TUI model. initialURL pre-fills the input.
// Events are written to logger in addition to being shown on screen.
func NewModel(settings *config.Settings, logger *log.Logger, initialURL string) Model {
	ti := textinput.New()
	ti.Placeholder = "https://cloud.example.com/s/AB5so"
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60
	ti.SetValue(initialURL)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		logger:    logger,
		events:    make(chan download.ProgressEvent, 64),
		logs:      make([]LogEntry, 0),
		ctx:       ctx,
		cancel:    cancel,
		refresh:   settings.RefreshCache,
		verbose:   settings.Log.Verbose,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.events))
}

// Message types
type (
	// ProgressMsg is sent for every event reported by the manager.
	ProgressMsg struct {
		Event download.ProgressEvent
	}

	// InitDoneMsg is sent when the share listing is ready.
	InitDoneMsg struct {
		Share     string
		FileCount int
		Manager   *download.Manager
		Err       error
	}

	// DownloadDoneMsg is sent when all downloads complete.
	DownloadDoneMsg struct {
		Received int64
		Total    int64
		Files    int32
		TotalF   int32
		Err      error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = min(max(msg.Width-20, 20), 80)
		return m, nil

	case tea.KeyMsg:
		// While the URL field has focus every printable key belongs to it;
		// tab moves focus to the options.
		if m.state == StateInput && m.textInput.Focused() {
			switch msg.String() {
			case "ctrl+c":
				m.cancel()
				return m, tea.Quit
			case "esc":
				return m, tea.Quit
			case "tab":
				m.textInput.Blur()
				return m, nil
			case "enter":
				return m.start()
			}
			var cmd tea.Cmd
			m.textInput, cmd = m.textInput.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.state == StateDownloading || m.state == StateInitializing {
				m.cancel()
				m.state = StateError
				m.err = fmt.Errorf("cancelled by user")
			}

		case "tab":
			if m.state == StateInput {
				cmd := m.textInput.Focus()
				return m, cmd
			}

		case "enter":
			if m.state == StateInput {
				return m.start()
			}

		case "r":
			switch m.state {
			case StateInput:
				m.refresh = !m.refresh
			case StateComplete, StateError:
				m = m.reset()
				cmd := m.textInput.Focus()
				return m, cmd
			}

		case "v":
			if m.state == StateInput {
				m.verbose = !m.verbose
				m.applyVerbose()
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case ProgressMsg:
		cmds = append(cmds, waitForEvent(m.events))
		if msg.Event.Level == download.LevelVerbose && !m.verbose {
			break
		}
		m.logs = append(m.logs, LogEntry{
			Message: msg.Event.Message,
			Level:   msg.Event.Level,
		})
		if len(m.logs) > maxLogs {
			m.logs = m.logs[len(m.logs)-maxLogs:]
		}

	case InitDoneMsg:
		if m.state != StateInitializing {
			break
		}
		if msg.Err != nil {
			m.state = StateError
			m.err = msg.Err
		} else {
			m.share = msg.Share
			m.fileCount = msg.FileCount
			m.manager = msg.Manager
			m.state = StateDownloading
			cmds = append(cmds, m.startDownload(), m.tickProgress())
		}

	case DownloadDoneMsg:
		if m.state != StateDownloading {
			break
		}
		m.receivedBytes = msg.Received
		m.totalBytes = msg.Total
		m.downloadedFiles = msg.Files
		m.totalFiles = msg.TotalF
		if msg.Err != nil && m.ctx.Err() == nil {
			m.state = StateError
			m.err = msg.Err
		} else if m.ctx.Err() != nil {
			m.state = StateError
			m.err = fmt.Errorf("cancelled by user")
		} else {
			m.state = StateComplete
		}

	case TickMsg:
		if m.manager != nil && m.state == StateDownloading {
			received, total, files, totalFiles := m.manager.GetProgress()
			m.receivedBytes = received
			m.totalBytes = total
			m.downloadedFiles = files
			m.totalFiles = totalFiles

			cmds = append(cmds, m.progress.SetPercent(m.percent()), m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) start() (tea.Model, tea.Cmd) {
	if strings.TrimSpace(m.textInput.Value()) == "" {
		return m, nil
	}
	m.textInput.Blur()
	m.state = StateInitializing
	return m, tea.Batch(m.initializeDownload(), m.spinner.Tick)
}

func (m Model) reset() Model {
	m.state = StateInput
	m.logs = nil
	m.err = nil
	m.share = ""
	m.fileCount = 0
	m.downloadedFiles = 0
	m.totalFiles = 0
	m.receivedBytes = 0
	m.totalBytes = 0
	m.manager = nil
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.textInput.SetValue("")
	return m
}

func (m Model) applyVerbose() {
	if m.logger == nil {
		return
	}
	if m.verbose {
		m.logger.SetLevel(log.DebugLevel)
	} else {
		m.logger.SetLevel(log.InfoLevel)
	}
}

// percent is the byte-weighted completion of the run.
func (m Model) percent() float64 {
	if m.totalBytes <= 0 {
		if m.totalFiles > 0 {
			return float64(m.downloadedFiles) / float64(m.totalFiles)
		}
		return 0
	}
	p := float64(m.receivedBytes) / float64(m.totalBytes)
	if p > 1 {
		p = 1
	}
	return p
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

func waitForEvent(events <-chan download.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		return ProgressMsg{Event: <-events}
	}
}

// initializeDownload checks the URL, makes sure aria2 is up, then lists
// the share.
func (m Model) initializeDownload() tea.Cmd {
	url := strings.TrimSpace(m.textInput.Value())
	ctx := m.ctx
	events := m.events
	logger := m.logger

	settings := *m.settings
	settings.RefreshCache = m.refresh
	settings.Log.Verbose = m.verbose

	return func() tea.Msg {
		manager := download.NewManager(&settings, eventSink(logger, events))

		if err := manager.Open(ctx, url); err != nil {
			return InitDoneMsg{Err: err}
		}
		if err := manager.Initialize(ctx, url); err != nil {
			return InitDoneMsg{Err: err}
		}

		return InitDoneMsg{
			Share:     manager.GetShare().String(),
			FileCount: len(manager.GetFiles()),
			Manager:   manager,
		}
	}
}

// startDownload starts the actual download in background.
func (m Model) startDownload() tea.Cmd {
	manager := m.manager
	ctx := m.ctx

	return func() tea.Msg {
		if manager == nil {
			return DownloadDoneMsg{Err: fmt.Errorf("no manager")}
		}

		err := manager.StartDownloads(ctx)
		received, total, files, totalFiles := manager.GetProgress()

		return DownloadDoneMsg{
			Received: received,
			Total:    total,
			Files:    files,
			TotalF:   totalFiles,
			Err:      err,
		}
	}
}

// eventSink writes every event to logger and forwards it to the UI.
// Events are dropped from the screen when the UI falls behind; the log file
// still receives them.
func eventSink(logger *log.Logger, events chan<- download.ProgressEvent) func(download.ProgressEvent) {
	var toLog func(download.ProgressEvent)
	if logger != nil {
		toLog = logging.EventHandler(logger)
	}
	return func(event download.ProgressEvent) {
		if toLog != nil {
			toLog(event)
		}
		select {
		case events <- event:
		default:
		}
	}
}

// Run starts the TUI application. Log output goes to the configured log
// file only, so it does not interfere with the screen.
func Run(settings *config.Settings, initialURL string) error {
	logger, closer := logging.New(settings.Log, nil)
	defer closer.Close()

	p := tea.NewProgram(NewModel(settings, logger, initialURL), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
