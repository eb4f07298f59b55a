package summarize

import (
	"context"
	"strings"
	"testing"
	"time"
)

// mockClient implements Client for testing
type mockClient struct {
	response   string
	failFirst  int // fail this many leading calls
	callCount  int
	lastPrompt string
}

func (m *mockClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.callCount++
	m.lastPrompt = prompt
	if m.callCount <= m.failFirst {
		return "", &mockError{message: "mock LLM error"}
	}
	return m.response, nil
}

type mockError struct {
	message string
}

func (e *mockError) Error() string {
	return e.message
}

func testOptions() Options {
	return Options{
		MaxWords:   150,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}
}

func TestNewSummarizerWithDefaults(t *testing.T) {
	s := NewSummarizerWithDefaults(&mockClient{})
	if s == nil {
		t.Fatal("NewSummarizerWithDefaults returned nil")
	}
	if s.options.MaxRetries != 2 {
		t.Errorf("Expected 2 retries by default, got %d", s.options.MaxRetries)
	}
	if s.options.MaxWords != 150 {
		t.Errorf("Expected 150 word target by default, got %d", s.options.MaxWords)
	}
}

func TestBrief_Success(t *testing.T) {
	mock := &mockClient{response: "  Recent work centers on base editing efficiency.  "}
	s := NewSummarizer(mock, testOptions())

	brief, err := s.Brief(context.Background(), "CRISPR gene editing", "- [pubmed] Base editing in vivo\n")
	if err != nil {
		t.Fatalf("Brief failed: %v", err)
	}
	if brief != "Recent work centers on base editing efficiency." {
		t.Errorf("Brief should return the trimmed response, got %q", brief)
	}
	if mock.callCount != 1 {
		t.Errorf("Expected a single LLM call, got %d", mock.callCount)
	}
	if !strings.Contains(mock.lastPrompt, `"CRISPR gene editing"`) {
		t.Error("Prompt should quote the topic")
	}
	if !strings.Contains(mock.lastPrompt, "- [pubmed] Base editing in vivo") {
		t.Error("Prompt should embed the context snippet")
	}
	if !strings.Contains(mock.lastPrompt, "at most 150 words") {
		t.Error("Prompt should carry the word target")
	}
}

func TestBrief_EmptySnippet(t *testing.T) {
	mock := &mockClient{response: "unused"}
	s := NewSummarizer(mock, testOptions())

	if _, err := s.Brief(context.Background(), "topic", "   \n"); err == nil {
		t.Error("Empty snippet should be an error")
	}
	if mock.callCount != 0 {
		t.Error("Empty snippet should not reach the LLM")
	}
}

func TestBrief_RetriesThenSucceeds(t *testing.T) {
	mock := &mockClient{response: "A brief.", failFirst: 1}
	s := NewSummarizer(mock, testOptions())

	brief, err := s.Brief(context.Background(), "topic", "- snippet\n")
	if err != nil {
		t.Fatalf("Brief should succeed on retry: %v", err)
	}
	if brief != "A brief." {
		t.Errorf("Unexpected brief %q", brief)
	}
	if mock.callCount != 2 {
		t.Errorf("Expected 2 calls, got %d", mock.callCount)
	}
}

func TestBrief_AllAttemptsFail(t *testing.T) {
	mock := &mockClient{failFirst: 99}
	s := NewSummarizer(mock, testOptions())

	_, err := s.Brief(context.Background(), "topic", "- snippet\n")
	if err == nil {
		t.Fatal("Brief should fail when every attempt errors")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("Error should count attempts, got %v", err)
	}
	if mock.callCount != 3 {
		t.Errorf("Expected MaxRetries+1 calls, got %d", mock.callCount)
	}
}

func TestBrief_EmptyResponseRetried(t *testing.T) {
	mock := &mockClient{response: "   \n"}
	s := NewSummarizer(mock, testOptions())

	_, err := s.Brief(context.Background(), "topic", "- snippet\n")
	if err == nil {
		t.Fatal("Whitespace-only responses should end in an error")
	}
	if mock.callCount != 3 {
		t.Errorf("Blank responses should retry, got %d calls", mock.callCount)
	}
}

func TestBrief_CancelledContextStopsRetries(t *testing.T) {
	mock := &mockClient{failFirst: 99}
	opts := testOptions()
	opts.RetryDelay = time.Minute // would hang without the ctx check
	s := NewSummarizer(mock, opts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Brief(ctx, "topic", "- snippet\n")
	if err == nil {
		t.Fatal("Cancelled context should surface an error")
	}
	if mock.callCount != 1 {
		t.Errorf("Cancellation should stop after the in-flight attempt, got %d calls", mock.callCount)
	}
}
