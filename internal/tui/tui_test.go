package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"litscout/internal/core"
	"litscout/internal/pipeline"
)

func newTestModel() model {
	return newModel("quantum computing", make(chan pipeline.ProgressEvent))
}

func apply(t *testing.T, m tea.Model, msg tea.Msg) tea.Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next
}

func TestModelTracksSourceLifecycle(t *testing.T) {
	var m tea.Model = newTestModel()

	m = apply(t, m, pipeline.ProgressEvent{Source: core.SourceArxiv, Stage: pipeline.StageFetching})
	view := m.View()
	if !strings.Contains(view, "arxiv") {
		t.Errorf("Fetching source should appear in the view:\n%s", view)
	}
	if !strings.Contains(view, "Topic: quantum computing") {
		t.Error("Banner should carry the topic")
	}

	m = apply(t, m, pipeline.ProgressEvent{Source: core.SourceArxiv, Stage: pipeline.StageDone, Count: 12})
	view = m.View()
	if !strings.Contains(view, "arxiv: 12 results") {
		t.Errorf("Finished source should show its count:\n%s", view)
	}
}

func TestModelShowsFailure(t *testing.T) {
	var m tea.Model = newTestModel()

	m = apply(t, m, pipeline.ProgressEvent{Source: core.SourcePubmed, Stage: pipeline.StageFetching})
	m = apply(t, m, pipeline.ProgressEvent{Source: core.SourcePubmed, Stage: pipeline.StageFailed, Err: "HTTP 500"})

	view := m.View()
	if !strings.Contains(view, "failed (HTTP 500)") {
		t.Errorf("Failed source should show its error:\n%s", view)
	}
}

func TestModelProcessingPhase(t *testing.T) {
	var m tea.Model = newTestModel()

	m = apply(t, m, pipeline.ProgressEvent{Stage: pipeline.StageProcessing})
	if !strings.Contains(m.View(), "Processing") {
		t.Error("Processing phase should render its own line")
	}
}

func TestModelActivationOrderStable(t *testing.T) {
	var m tea.Model = newTestModel()

	m = apply(t, m, pipeline.ProgressEvent{Source: core.SourcePubmed, Stage: pipeline.StageFetching})
	m = apply(t, m, pipeline.ProgressEvent{Source: core.SourceArxiv, Stage: pipeline.StageFetching})

	view := m.View()
	if strings.Index(view, "pubmed") > strings.Index(view, "arxiv") {
		t.Errorf("Sources should list in activation order:\n%s", view)
	}
}

func TestModelCompleteQuitsWithSummary(t *testing.T) {
	var m tea.Model = newTestModel()

	m = apply(t, m, pipeline.ProgressEvent{Source: core.SourceArxiv, Stage: pipeline.StageFetching})
	m = apply(t, m, pipeline.ProgressEvent{Source: core.SourceArxiv, Stage: pipeline.StageDone, Count: 12})
	m = apply(t, m, pipeline.ProgressEvent{Source: core.SourcePubmed, Stage: pipeline.StageFetching})
	m = apply(t, m, pipeline.ProgressEvent{Source: core.SourcePubmed, Stage: pipeline.StageDone, Count: 3})

	next, cmd := m.Update(pipeline.ProgressEvent{Stage: pipeline.StageComplete, Count: 15})
	if cmd == nil {
		t.Fatal("Complete event should quit the program")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("Complete event should produce a quit message")
	}

	view := next.View()
	if !strings.Contains(view, "Research complete") {
		t.Errorf("Final view should announce completion:\n%s", view)
	}
	if !strings.Contains(view, "arxiv: 12 | pubmed: 3") {
		t.Errorf("Final view should summarize per-source counts:\n%s", view)
	}
}

func TestModelClosedChannelQuits(t *testing.T) {
	m := newTestModel()

	_, cmd := m.Update(eventsClosedMsg{})
	if cmd == nil {
		t.Fatal("Closed events channel should quit the program")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("Closed events channel should produce a quit message")
	}
}

func TestModelKeyboardQuit(t *testing.T) {
	m := newTestModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("Ctrl+C should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("Ctrl+C should produce a quit message")
	}
}

func TestPickMessageKnownSource(t *testing.T) {
	for i := 0; i < 20; i++ {
		msg := pickMessage(core.SourceArxiv)
		found := false
		for _, want := range fetchMessages[core.SourceArxiv] {
			if msg == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("pickMessage returned %q, not an arXiv message", msg)
		}
	}
}

func TestPickMessageUnknownSourceFallsBack(t *testing.T) {
	msg := pickMessage(core.Source("nope"))
	found := false
	for _, want := range processingMessages {
		if msg == want {
			found = true
		}
	}
	if !found {
		t.Errorf("Unknown sources should draw from the processing messages, got %q", msg)
	}
}
