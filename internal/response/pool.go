package response

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/replyflow/internal/ratelimit"
)

type result struct {
	text string
	err  error
}

// Pool runs provider calls with a per-user concurrency bound, a per-user
// rate limit and a hard timeout. Waiting for a slot counts against the same
// timeout. A call that outlives its timeout keeps its slot until the
// provider returns, and its answer is dropped.
type Pool struct {
	limiter ratelimit.Limiter
	perUser int
	timeout time.Duration

	mu     sync.Mutex
	slots  map[string]*userSlots
	closed bool
	wg     sync.WaitGroup
}

// userSlots is dropped from the pool once no caller references it.
type userSlots struct {
	ch   chan struct{}
	refs int
}

func NewPool(limiter ratelimit.Limiter, perUser int, timeout time.Duration) *Pool {
	if perUser <= 0 {
		perUser = 1
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Pool{
		limiter: limiter,
		perUser: perUser,
		timeout: timeout,
		slots:   make(map[string]*userSlots),
	}
}

func (p *Pool) Do(ctx context.Context, userID string, fn func(ctx context.Context) (string, error)) (string, error) {
	slots, err := p.enter(userID)
	if err != nil {
		return "", err
	}

	wait := time.NewTimer(p.timeout)
	select {
	case slots.ch <- struct{}{}:
		wait.Stop()
	case <-wait.C:
		p.leave(userID, slots)
		return "", ErrTimeout
	case <-ctx.Done():
		wait.Stop()
		p.leave(userID, slots)
		return "", ctx.Err()
	}

	if p.limiter != nil {
		decision, err := p.limiter.Allow(ctx, userID)
		if err != nil || !decision.Allowed {
			<-slots.ch
			p.leave(userID, slots)
			if err != nil {
				return "", err
			}
			return "", ErrRateLimited
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	done := make(chan result, 1)

	go func() {
		defer p.leave(userID, slots)
		defer func() { <-slots.ch }()
		defer cancel()
		text, err := fn(callCtx)
		done <- result{text: text, err: err}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-callCtx.Done():
		select {
		case res := <-done:
			return res.text, res.err
		default:
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrTimeout
	}
}

// Close refuses new calls and waits for running ones to return.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// enter registers the caller with the wait group and the user's slots; the
// caller must call leave exactly once.
func (p *Pool) enter(userID string) (*userSlots, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	p.wg.Add(1)
	slots, ok := p.slots[userID]
	if !ok {
		slots = &userSlots{ch: make(chan struct{}, p.perUser)}
		p.slots[userID] = slots
	}
	slots.refs++
	return slots, nil
}

func (p *Pool) leave(userID string, slots *userSlots) {
	p.mu.Lock()
	slots.refs--
	if slots.refs == 0 {
		delete(p.slots, userID)
	}
	p.mu.Unlock()
	p.wg.Done()
}

func (p *Pool) activeUsers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
