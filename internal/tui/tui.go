// Package tui renders fetch progress on stderr while a run executes: an
// animated status line per active source, a processing phase, and a
// closing summary with elapsed time. The model consumes pipeline progress
// events over a channel and quits on its own when the run completes.
package tui

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"litscout/internal/core"
	"litscout/internal/logger"
	"litscout/internal/pipeline"
)

var spinnerFrames = []string{"⣋", "⣙", "⣹", "⣸", "⣼", "⣴", "⣦", "⣧", "⣇", "⣏"}

const tickInterval = 80 * time.Millisecond

var fetchMessages = map[core.Source][]string{
	core.SourceBiorxiv: {
		"Scanning bioRxiv preprints...",
		"Reading biology preprints...",
		"Checking bioRxiv for recent submissions...",
	},
	core.SourceMedrxiv: {
		"Scanning medRxiv preprints...",
		"Reading medical preprints...",
		"Checking medRxiv for clinical studies...",
	},
	core.SourceArxiv: {
		"Querying arXiv for papers...",
		"Searching arXiv submissions...",
		"Finding arXiv preprints...",
	},
	core.SourcePubmed: {
		"Searching PubMed database...",
		"Querying NCBI for publications...",
		"Finding peer-reviewed articles...",
	},
	core.SourceHuggingFace: {
		"Checking HuggingFace Hub...",
		"Searching models and datasets...",
		"Finding ML implementations...",
	},
	core.SourceOpenAlex: {
		"Querying OpenAlex works...",
		"Searching the OpenAlex graph...",
		"Finding indexed works...",
	},
	core.SourceSemanticScholar: {
		"Searching Semantic Scholar...",
		"Querying the S2 corpus...",
		"Finding citation data...",
	},
}

var processingMessages = []string{
	"Analyzing results...",
	"Scoring and ranking papers...",
	"Removing duplicates...",
	"Organizing findings...",
}

var (
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	boldStyle   = lipgloss.NewStyle().Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	procStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))

	sourceStyles = map[core.Source]lipgloss.Style{
		core.SourceOpenAlex:        lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		core.SourceSemanticScholar: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		core.SourcePubmed:          lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		core.SourceBiorxiv:         lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		core.SourceMedrxiv:         lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		core.SourceArxiv:           lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		core.SourceHuggingFace:     lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
)

type sourceStatus int

const (
	statusFetching sourceStatus = iota
	statusDone
	statusFailed
)

type sourceState struct {
	status  sourceStatus
	count   int
	err     string
	message string
}

type tickMsg time.Time

type eventsClosedMsg struct{}

// model tracks one line per source that has started fetching, in
// activation order, plus the pipeline-wide processing phase.
type model struct {
	topic  string
	events <-chan pipeline.ProgressEvent

	order  []core.Source
	states map[core.Source]*sourceState

	processing    bool
	processingMsg string
	complete      bool
	totalCount    int

	start time.Time
	frame int
}

func newModel(topic string, events <-chan pipeline.ProgressEvent) model {
	return model{
		topic:  topic,
		events: events,
		states: make(map[core.Source]*sourceState),
		start:  time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(listen(m.events), tick())
}

// listen waits for the next pipeline event and hands it to Update. A
// closed channel means the run ended without a complete event.
func listen(events <-chan pipeline.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return ev
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tickMsg:
		m.frame++
		if m.complete {
			return m, nil
		}
		return m, tick()

	case pipeline.ProgressEvent:
		return m.applyEvent(msg)

	case eventsClosedMsg:
		m.complete = true
		return m, tea.Quit
	}

	return m, nil
}

func (m model) applyEvent(ev pipeline.ProgressEvent) (tea.Model, tea.Cmd) {
	switch ev.Stage {
	case pipeline.StageFetching:
		if _, seen := m.states[ev.Source]; !seen {
			m.order = append(m.order, ev.Source)
		}
		m.states[ev.Source] = &sourceState{
			status:  statusFetching,
			message: pickMessage(ev.Source),
		}

	case pipeline.StageDone:
		m.states[ev.Source] = &sourceState{status: statusDone, count: ev.Count}

	case pipeline.StageFailed:
		m.states[ev.Source] = &sourceState{status: statusFailed, count: ev.Count, err: ev.Err}

	case pipeline.StageProcessing:
		m.processing = true
		m.processingMsg = processingMessages[rand.Intn(len(processingMessages))]

	case pipeline.StageComplete:
		m.complete = true
		m.totalCount = ev.Count
		return m, tea.Quit
	}

	return m, listen(m.events)
}

func pickMessage(src core.Source) string {
	msgs := fetchMessages[src]
	if len(msgs) == 0 {
		msgs = processingMessages
	}
	return msgs[rand.Intn(len(msgs))]
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(bannerStyle.Render("litscout"))
	b.WriteString(" ")
	b.WriteString(dimStyle.Render("· searching scientific literature..."))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Topic: "))
	b.WriteString(boldStyle.Render(m.topic))
	b.WriteString("\n\n")

	frame := spinnerFrames[m.frame%len(spinnerFrames)]

	for _, src := range m.order {
		st := m.states[src]
		name := string(src)
		switch st.status {
		case statusFetching:
			style, ok := sourceStyles[src]
			if !ok {
				style = procStyle
			}
			b.WriteString(fmt.Sprintf("%s %s %s\n", style.Render(frame), style.Render(name), st.message))
		case statusDone:
			b.WriteString(fmt.Sprintf("  %s: %d results\n", name, st.count))
		case statusFailed:
			b.WriteString(fmt.Sprintf("  %s: %s\n", name, failStyle.Render("failed ("+st.err+")")))
		}
	}

	if m.processing && !m.complete {
		b.WriteString(fmt.Sprintf("%s %s %s\n", procStyle.Render(frame), procStyle.Render("Processing"), m.processingMsg))
	}

	if m.complete {
		elapsed := time.Since(m.start).Seconds()
		b.WriteString("\n")
		b.WriteString(okStyle.Render("Research complete"))
		b.WriteString(" ")
		b.WriteString(dimStyle.Render(fmt.Sprintf("(%.1fs)", elapsed)))
		b.WriteString("\n")
		if summary := m.resultSummary(); summary != "" {
			b.WriteString("  " + summary + "\n")
		}
	}

	return b.String()
}

func (m model) resultSummary() string {
	var parts []string
	for _, src := range m.order {
		st := m.states[src]
		if st.status == statusDone && st.count > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", src, st.count))
		}
	}
	return strings.Join(parts, " | ")
}

// Run displays the progress panel until the pipeline finishes. It blocks
// until the complete event arrives or the events channel closes, so run
// the pipeline on another goroutine.
func Run(topic string, events <-chan pipeline.ProgressEvent) error {
	p := tea.NewProgram(newModel(topic, events), tea.WithOutput(os.Stderr))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run progress display: %w", err)
	}
	return nil
}

// IsInteractive reports whether stderr is a terminal, the condition for
// showing the animated panel instead of log lines.
func IsInteractive() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ShowCached prints the banner and a cached-results note without starting
// the panel, for runs served from cache.
func ShowCached(topic string, ageHours float64) {
	var b strings.Builder
	b.WriteString(bannerStyle.Render("litscout"))
	b.WriteString(" ")
	b.WriteString(dimStyle.Render("· searching scientific literature..."))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Topic: "))
	b.WriteString(boldStyle.Render(topic))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  Using cached results (%.1fh old)\n\n", ageHours))
	fmt.Fprint(os.Stderr, b.String())
}

// LogProgress is the fallback progress handler for non-interactive runs:
// every event becomes a debug log line.
func LogProgress(ev pipeline.ProgressEvent) {
	switch ev.Stage {
	case pipeline.StageFetching:
		logger.Debug("Source fetching", "source", string(ev.Source))
	case pipeline.StageDone:
		logger.Debug("Source done", "source", string(ev.Source), "items", ev.Count)
	case pipeline.StageFailed:
		logger.Warn("Source failed", "source", string(ev.Source), "error", ev.Err)
	case pipeline.StageProcessing:
		logger.Debug("Processing results")
	case pipeline.StageComplete:
		logger.Debug("Run complete", "items", ev.Count)
	}
}
