package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pdfchat/internal/chunker"
	"pdfchat/internal/domain"
	"pdfchat/internal/embedding"
	"pdfchat/internal/llm"
	"pdfchat/internal/service"
)

// mapExtractor serves document text by path.
type mapExtractor map[string]string

func (m mapExtractor) Extract(path string) (string, int, error) {
	text, ok := m[path]
	if !ok {
		return "", 0, &domain.ExtractionError{Path: path, Err: errors.New("no extractable text found")}
	}
	return text, 1, nil
}

// gatedLoader blocks every Load until its context is cancelled or release is closed.
type gatedLoader struct {
	next    Loader
	release chan struct{}
	started chan string
}

func (g *gatedLoader) Load(ctx context.Context, path string, progress domain.ProgressFunc) (*domain.LoadResult, error) {
	g.started <- path
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.next.Load(ctx, path, progress)
}

type fixture struct {
	embedder  *embedding.MockEmbedder
	completer *llm.MockCompleter
	loader    Loader
}

func newFixture(docs mapExtractor) *fixture {
	f := &fixture{
		embedder:  embedding.NewMockEmbedder(16),
		completer: llm.NewMockCompleter(),
	}
	f.loader = service.NewRAGService(
		docs,
		chunker.NewRecursiveChunker(40, 4),
		service.NewIndexer(f.embedder, 0),
		nil,
		f.completer,
		service.Options{CondenseQuestion: false},
	)
	return f
}

func newController(t *testing.T, loader Loader, opts Options) *Controller {
	t.Helper()
	c := NewController(loader, opts, nil)
	t.Cleanup(c.Close)
	return c
}

// waitFor returns the next event of kind, failing on any other terminal event.
func waitFor(t *testing.T, c *Controller, kind EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
			if ev.Kind != EventIndexProgress {
				t.Fatalf("waiting for %s, got %s (err=%v)", kind, ev.Kind, ev.Err)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestAsk_notReadyNeverCallsProviders(t *testing.T) {
	f := newFixture(mapExtractor{})
	c := newController(t, f.loader, Options{})

	_, err := c.Ask("what is this about?")
	var nr *domain.NotReadyError
	if !errors.As(err, &nr) || nr.Message != MsgUploadFirst {
		t.Fatalf("got %v", err)
	}
	if f.embedder.Calls() != 0 || f.completer.Calls() != 0 {
		t.Errorf("providers called: embed=%d complete=%d", f.embedder.Calls(), f.completer.Calls())
	}
	if len(c.History()) != 0 {
		t.Error("history must stay empty")
	}
}

func TestAsk_emptyQuery(t *testing.T) {
	c := newController(t, newFixture(nil).loader, Options{})
	if _, err := c.Ask("  \t"); !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("got %v", err)
	}
}

func TestUpload_whileIndexing(t *testing.T) {
	f := newFixture(mapExtractor{"a.pdf": "alpha text"})
	gate := &gatedLoader{next: f.loader, release: make(chan struct{}), started: make(chan string, 4)}
	c := newController(t, gate, Options{})

	if _, err := c.Upload("a.pdf"); err != nil {
		t.Fatal(err)
	}
	<-gate.started
	if c.State() != Indexing {
		t.Fatalf("state = %s", c.State())
	}

	_, err := c.Ask("anything?")
	var nr *domain.NotReadyError
	if !errors.As(err, &nr) || nr.Message != MsgStillIndexing {
		t.Fatalf("got %v", err)
	}
	if _, err := c.Upload("a.pdf"); !errors.Is(err, domain.ErrUploadInProgress) {
		t.Fatalf("second upload: got %v", err)
	}
	if f.completer.Calls() != 0 {
		t.Error("completer called while indexing")
	}

	close(gate.release)
	waitFor(t, c, EventIndexReady)
	if c.State() != Ready {
		t.Errorf("state = %s", c.State())
	}
}

func TestAsk_concurrentQueriesAppendEachTurn(t *testing.T) {
	f := newFixture(mapExtractor{"doc.pdf": strings.Repeat("The quick brown fox jumps. ", 20)})
	c := newController(t, f.loader, Options{})
	if _, err := c.Upload("doc.pdf"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, c, EventIndexReady)

	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := c.Ask(fmt.Sprintf("question %d?", i)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		waitFor(t, c, EventAnswer)
	}

	history := c.History()
	if len(history) != n {
		t.Fatalf("history has %d turns, want %d", len(history), n)
	}
	seen := map[string]bool{}
	for _, turn := range history {
		seen[turn.Question] = true
	}
	if len(seen) != n {
		t.Errorf("duplicate or lost turns: %v", seen)
	}
}

func TestUpload_reuploadRetrievesOnlyFromNewDocument(t *testing.T) {
	docs := mapExtractor{
		"a.pdf": strings.Repeat("Apples grow in orchards. ", 10),
		"b.pdf": strings.Repeat("Bananas ripen in the sun. ", 10),
	}
	f := newFixture(docs)
	c := newController(t, f.loader, Options{ClearHistoryOnUpload: true})

	if _, err := c.Upload("a.pdf"); err != nil {
		t.Fatal(err)
	}
	readyA := waitFor(t, c, EventIndexReady)
	if _, err := c.Ask("apples?"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, c, EventAnswer)
	if len(c.History()) != 1 {
		t.Fatal("expected one turn before re-upload")
	}

	if _, err := c.Upload("b.pdf"); err != nil {
		t.Fatal(err)
	}
	readyB := waitFor(t, c, EventIndexReady)
	if readyA.Document.ID == readyB.Document.ID {
		t.Fatal("re-upload must create a new document")
	}
	if len(c.History()) != 0 {
		t.Error("history should be cleared on upload")
	}

	if _, err := c.Ask("apples?"); err != nil {
		t.Fatal(err)
	}
	ev := waitFor(t, c, EventAnswer)
	if len(ev.Result.Sources) == 0 {
		t.Fatal("no sources")
	}
	for _, s := range ev.Result.Sources {
		if s.Chunk.DocumentID != readyB.Document.ID || strings.Contains(s.Chunk.Text, "Apples") {
			t.Errorf("source from previous document: %+v", s.Chunk)
		}
	}
}

func TestUpload_keepsHistoryWhenConfigured(t *testing.T) {
	f := newFixture(mapExtractor{"a.pdf": "alpha", "b.pdf": "beta"})
	c := newController(t, f.loader, Options{ClearHistoryOnUpload: false})
	if _, err := c.Upload("a.pdf"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, c, EventIndexReady)
	if _, err := c.Ask("q?"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, c, EventAnswer)
	if _, err := c.Upload("b.pdf"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, c, EventIndexReady)
	if len(c.History()) != 1 {
		t.Errorf("history = %d turns, want 1", len(c.History()))
	}
}

func TestUpload_failureEmittedOnceAndRecoverable(t *testing.T) {
	f := newFixture(mapExtractor{"good.pdf": "some text"})
	c := newController(t, f.loader, Options{})

	if _, err := c.Upload("scanned.pdf"); err != nil {
		t.Fatal(err)
	}
	ev := waitFor(t, c, EventIndexFailed)
	if !errors.Is(ev.Err, domain.ErrExtraction) {
		t.Errorf("err = %v", ev.Err)
	}
	if c.State() != Failed {
		t.Fatalf("state = %s", c.State())
	}
	select {
	case extra := <-c.Events():
		t.Fatalf("unexpected extra event %s", extra.Kind)
	case <-time.After(50 * time.Millisecond):
	}

	_, err := c.Ask("hello?")
	var nr *domain.NotReadyError
	if !errors.As(err, &nr) || nr.Message != MsgUploadFirst {
		t.Fatalf("got %v", err)
	}
	if f.embedder.Calls() != 0 || f.completer.Calls() != 0 {
		t.Errorf("providers called after failed upload: embed=%d complete=%d", f.embedder.Calls(), f.completer.Calls())
	}

	if _, err := c.Upload("good.pdf"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, c, EventIndexReady)
	if c.State() != Ready {
		t.Errorf("state = %s", c.State())
	}
}

func TestAsk_failedAnswerNotAppended(t *testing.T) {
	f := newFixture(mapExtractor{"a.pdf": "alpha"})
	f.completer.ReplyWith(func(string, []domain.Turn) (string, error) {
		return "", errors.New("HTTP 500: server error")
	})
	c := newController(t, f.loader, Options{})
	if _, err := c.Upload("a.pdf"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, c, EventIndexReady)
	if _, err := c.Ask("q?"); err != nil {
		t.Fatal(err)
	}
	ev := waitFor(t, c, EventAnswerFailed)
	if !errors.Is(ev.Err, domain.ErrGeneration) || !strings.Contains(ev.Err.Error(), "server error") {
		t.Errorf("err = %v", ev.Err)
	}
	if len(c.History()) != 0 {
		t.Error("failed answers must not be recorded")
	}
	if c.State() != Ready {
		t.Errorf("a failed answer must not change state, got %s", c.State())
	}
}

func TestUpload_restartPolicyCancelsInFlightBuild(t *testing.T) {
	f := newFixture(mapExtractor{"a.pdf": "alpha", "b.pdf": "beta"})
	gate := &gatedLoader{next: f.loader, release: make(chan struct{}), started: make(chan string, 4)}
	c := newController(t, gate, Options{UploadPolicy: UploadRestart})

	if _, err := c.Upload("a.pdf"); err != nil {
		t.Fatal(err)
	}
	<-gate.started
	taskB, err := c.Upload("b.pdf")
	if err != nil {
		t.Fatalf("restart upload: %v", err)
	}
	<-gate.started
	close(gate.release)

	ev := waitFor(t, c, EventIndexReady)
	if ev.TaskID != taskB || ev.Path != "b.pdf" {
		t.Errorf("ready event from %s (%s), want b.pdf", ev.Path, ev.TaskID)
	}
	doc, ok := c.Document()
	if !ok || doc.Path != "b.pdf" {
		t.Errorf("document = %+v", doc)
	}
}

func TestClose_waitsAndClosesEvents(t *testing.T) {
	f := newFixture(mapExtractor{"a.pdf": "alpha"})
	gate := &gatedLoader{next: f.loader, release: make(chan struct{}), started: make(chan string, 1)}
	c := NewController(gate, Options{}, nil)
	if _, err := c.Upload("a.pdf"); err != nil {
		t.Fatal(err)
	}
	<-gate.started

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	for range c.Events() {
	}
	if _, err := c.Upload("a.pdf"); !errors.Is(err, ErrClosed) {
		t.Errorf("upload after close: %v", err)
	}
	c.Close()
}
