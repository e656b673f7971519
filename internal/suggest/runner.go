package suggest

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultMockDelay = time.Second
)

type Options struct {
	APIKey    string
	Endpoint  string
	Model     string
	Timeout   time.Duration
	MockDelay time.Duration
	Client    *http.Client
	Logger    *log.Logger
}

// New returns the Gemini client when an API key is set and the mock
// otherwise.
func New(opts Options) Suggester {
	if opts.APIKey == "" {
		delay := opts.MockDelay
		if delay <= 0 {
			delay = DefaultMockDelay
		}
		return Mock{Delay: delay}
	}
	return NewGemini(GeminiOptions{
		APIKey:   opts.APIKey,
		Endpoint: opts.Endpoint,
		Model:    opts.Model,
		Client:   opts.Client,
		Logger:   opts.Logger,
	})
}

type request struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner allows one suggestion request per task at a time. Each request runs
// in its own goroutine with a timeout and can be cancelled by task id.
type Runner struct {
	suggester Suggester
	timeout   time.Duration
	logger    *log.Logger

	mu       sync.Mutex
	inFlight map[string]*request
}

func NewRunner(s Suggester, timeout time.Duration, logger *log.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Runner{
		suggester: s,
		timeout:   timeout,
		logger:    logger,
		inFlight:  make(map[string]*request),
	}
}

// Start launches a request for taskID. The returned channel yields exactly one
// Result. ok is false when a request for the task is already running.
func (r *Runner) Start(ctx context.Context, taskID, title, description string) (<-chan Result, bool) {
	r.mu.Lock()
	if _, busy := r.inFlight[taskID]; busy {
		r.mu.Unlock()
		return nil, false
	}
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	req := &request{cancel: cancel, done: make(chan struct{})}
	r.inFlight[taskID] = req
	r.mu.Unlock()

	out := make(chan Result, 1)
	go func() {
		defer close(req.done)
		defer cancel()

		res := r.suggester.Suggest(reqCtx, title, description)
		if res.Failed() && !res.Canceled() {
			r.logger.Warn("suggestion failed", "task_id", taskID, "err", res.Err)
		}

		r.mu.Lock()
		delete(r.inFlight, taskID)
		r.mu.Unlock()

		out <- res
		close(out)
	}()
	return out, true
}

// Run is Start followed by a wait for the result.
func (r *Runner) Run(ctx context.Context, taskID, title, description string) (Result, error) {
	ch, ok := r.Start(ctx, taskID, title, description)
	if !ok {
		return Result{}, ErrInFlight
	}
	return <-ch, nil
}

func (r *Runner) InFlight(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inFlight[taskID]
	return ok
}

// Cancel abandons the request for taskID, if any, and waits for its
// goroutine to finish.
func (r *Runner) Cancel(taskID string) {
	r.mu.Lock()
	req, ok := r.inFlight[taskID]
	r.mu.Unlock()
	if !ok {
		return
	}
	req.cancel()
	<-req.done
}

// CancelAll abandons every running request.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	reqs := make([]*request, 0, len(r.inFlight))
	for _, req := range r.inFlight {
		reqs = append(reqs, req)
	}
	r.mu.Unlock()

	for _, req := range reqs {
		req.cancel()
	}
	for _, req := range reqs {
		<-req.done
	}
}
