// Package session owns the loaded document, its chain and the conversation
// history, and runs indexing and answering off the UI goroutine.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"pdfchat/internal/domain"
)

const (
	MsgUploadFirst   = "Please upload a PDF document first."
	MsgStillIndexing = "The document is still being indexed. Please wait."
)

var ErrClosed = errors.New("session is closed")

type State int

const (
	NoDocument State = iota
	Indexing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case NoDocument:
		return "no document"
	case Indexing:
		return "indexing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// UploadPolicy decides what an upload does while another build is running.
type UploadPolicy string

const (
	UploadReject  UploadPolicy = "reject"
	UploadRestart UploadPolicy = "restart"
)

// Loader builds a queryable chain for a document.
type Loader interface {
	Load(ctx context.Context, path string, progress domain.ProgressFunc) (*domain.LoadResult, error)
}

type Options struct {
	UploadPolicy         UploadPolicy
	ClearHistoryOnUpload bool
	EventBuffer          int
}

// Controller is the per-process chat session. All fields below mu are
// guarded by it.
type Controller struct {
	loader Loader
	opts   Options
	logger *zap.Logger

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	chain       domain.Chain
	document    domain.Document
	history     []domain.Turn
	generation  uint64
	buildID     uint64
	cancelBuild context.CancelFunc
	closed      bool
}

func NewController(loader Loader, opts Options, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.UploadPolicy == "" {
		opts.UploadPolicy = UploadReject
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		loader: loader,
		opts:   opts,
		logger: logger,
		events: make(chan Event, opts.EventBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Events returns the completion queue. It is closed by Close.
func (c *Controller) Events() <-chan Event { return c.events }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Document returns the document behind the current chain, if any.
func (c *Controller) Document() (domain.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.document, c.chain != nil
}

// History returns a copy of the completed turns.
func (c *Controller) History() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Turn(nil), c.history...)
}

// Upload starts indexing path in the background and returns the task ID
// carried by the resulting events.
func (c *Controller) Upload(path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	if c.state == Indexing {
		if c.opts.UploadPolicy != UploadRestart {
			return "", domain.ErrUploadInProgress
		}
		c.cancelBuild()
	}

	c.buildID++
	buildCtx, cancel := context.WithCancel(c.ctx)
	c.cancelBuild = cancel
	c.state = Indexing

	taskID := uuid.NewString()
	logger := c.logger.With(
		zap.String("task_id", taskID),
		zap.String("action", "upload"),
		zap.String("path", path),
	)
	c.wg.Add(1)
	go c.runBuild(ctxzap.ToContext(buildCtx, logger), cancel, c.buildID, taskID, path)
	return taskID, nil
}

func (c *Controller) runBuild(ctx context.Context, cancel context.CancelFunc, id uint64, taskID, path string) {
	defer c.wg.Done()
	defer cancel()
	logger := ctxzap.Extract(ctx)
	logger.Info("building index")

	progress := func(done, total int) {
		c.offer(Event{Kind: EventIndexProgress, TaskID: taskID, Path: path, Done: done, Total: total})
	}
	res, err := c.loader.Load(ctx, path, progress)

	c.mu.Lock()
	if id != c.buildID || c.closed {
		c.mu.Unlock()
		logger.Info("discarding superseded build", zap.Error(err))
		return
	}
	c.cancelBuild = nil
	if err != nil {
		c.state = Failed
		c.chain = nil
		c.document = domain.Document{}
		c.mu.Unlock()
		logger.Warn("index build failed", zap.Error(err))
		c.emit(Event{Kind: EventIndexFailed, TaskID: taskID, Path: path, Err: err})
		return
	}
	c.state = Ready
	c.chain = res.Chain
	c.document = res.Document
	c.generation++
	if c.opts.ClearHistoryOnUpload {
		c.history = nil
	}
	c.mu.Unlock()

	logger.Info("index ready", zap.Int("chunks", res.Chunks))
	c.emit(Event{
		Kind:     EventIndexReady,
		TaskID:   taskID,
		Path:     path,
		Document: res.Document,
		Chunks:   res.Chunks,
		Summary:  res.Summary,
	})
}

// Ask answers query in the background. Without a ready index it returns a
// *domain.NotReadyError and touches no provider.
func (c *Controller) Ask(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", domain.ErrEmptyQuery
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	switch c.state {
	case NoDocument, Failed:
		return "", &domain.NotReadyError{Message: MsgUploadFirst}
	case Indexing:
		return "", &domain.NotReadyError{Message: MsgStillIndexing}
	}

	chain := c.chain
	generation := c.generation
	history := append([]domain.Turn(nil), c.history...)

	taskID := uuid.NewString()
	logger := c.logger.With(zap.String("task_id", taskID), zap.String("action", "ask"))
	c.wg.Add(1)
	go c.runAsk(ctxzap.ToContext(c.ctx, logger), chain, generation, history, taskID, query)
	return taskID, nil
}

func (c *Controller) runAsk(ctx context.Context, chain domain.Chain, generation uint64, history []domain.Turn, taskID, query string) {
	defer c.wg.Done()
	logger := ctxzap.Extract(ctx)

	res, err := chain.Answer(ctx, query, history)
	if err != nil {
		logger.Warn("answer failed", zap.Error(err))
		c.emit(Event{Kind: EventAnswerFailed, TaskID: taskID, Question: query, Err: err})
		return
	}

	c.mu.Lock()
	stale := generation != c.generation && c.opts.ClearHistoryOnUpload
	if !stale && !c.closed {
		c.history = append(c.history, domain.Turn{Question: query, Answer: res.Answer})
	}
	c.mu.Unlock()

	logger.Info("answer ready", zap.Int("sources", len(res.Sources)), zap.Bool("stale", stale))
	c.emit(Event{Kind: EventAnswer, TaskID: taskID, Question: query, Result: res})
}

// emit delivers ev unless the session is shutting down.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// offer delivers ev only if there is room; progress updates are lossy.
func (c *Controller) offer(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

// Close cancels in-flight work, waits for it and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	close(c.events)
}
