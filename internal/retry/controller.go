// Package retry classifies failed fetch attempts and decides how each task proceeds.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// StatusBlocked is the non-standard status LinkedIn answers with when it blocks a client.
const StatusBlocked = 999

// Policy is the delay range and rotation rule for one failure class.
type Policy struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Rotate   bool
}

// DefaultPolicies returns the built-in policy table.
func DefaultPolicies() map[crawler.FailureClass]Policy {
	return map[crawler.FailureClass]Policy{
		crawler.FailureChallenge:  {MinDelay: 10 * time.Second, MaxDelay: 20 * time.Second, Rotate: true},
		crawler.FailureRateLimit:  {MinDelay: 15 * time.Second, MaxDelay: 30 * time.Second, Rotate: true},
		crawler.FailureServer:     {MinDelay: 5 * time.Second, MaxDelay: 10 * time.Second},
		crawler.FailureTimeout:    {MinDelay: 2 * time.Second, MaxDelay: 6 * time.Second},
		crawler.FailureConnection: {MinDelay: 2 * time.Second, MaxDelay: 6 * time.Second},
		crawler.FailureUnknown:    {MinDelay: 2 * time.Second, MaxDelay: 6 * time.Second},
	}
}

// Config tunes the controller.
type Config struct {
	// MaxRetries is the number of retries a task gets after its first attempt.
	MaxRetries int
	// Scale multiplies every delay; 0 disables waiting.
	Scale    float64
	Policies map[crawler.FailureClass]Policy
}

// Decision is the controller's verdict for one failed attempt.
type Decision struct {
	Class  crawler.FailureClass
	State  crawler.TaskState
	Delay  time.Duration
	Rotate bool
	// Next is the task to re-enqueue; only meaningful when State is RETRYING.
	Next crawler.FetchTask
}

// Retry reports whether the task should be re-enqueued.
func (d Decision) Retry() bool {
	return d.State == crawler.TaskStateRetrying
}

// Controller maps failure classes to backoff decisions.
type Controller struct {
	maxRetries int
	scale      float64
	policies   map[crawler.FailureClass]Policy
}

// New builds a controller, filling missing policies from DefaultPolicies.
func New(cfg Config) *Controller {
	policies := DefaultPolicies()
	for class, p := range cfg.Policies {
		policies[class] = p
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	scale := cfg.Scale
	if scale < 0 {
		scale = 0
	}
	return &Controller{maxRetries: maxRetries, scale: scale, policies: policies}
}

// MaxRetries returns the configured retry ceiling.
func (c *Controller) MaxRetries() int {
	return c.maxRetries
}

// Classify turns a fetch error or an unusable response into a failure class.
// A nil error with a 2xx page is FailureNone.
func Classify(err error, page *crawler.Page) crawler.FailureClass {
	if err == nil {
		if page == nil {
			return crawler.FailureUnknown
		}
		return classifyStatus(page.StatusCode)
	}

	switch {
	case errors.Is(err, crawler.ErrChallengeDetected):
		return crawler.FailureChallenge
	case errors.Is(err, crawler.ErrRateLimited):
		return crawler.FailureRateLimit
	case errors.Is(err, crawler.ErrServerFailure):
		return crawler.FailureServer
	}

	var netErr *crawler.NetworkError
	if errors.As(err, &netErr) {
		switch netErr.Kind {
		case crawler.NetworkTimeout:
			return crawler.FailureTimeout
		case crawler.NetworkConnection:
			return crawler.FailureConnection
		case crawler.NetworkHTTPStatus:
			if class := classifyStatus(netErr.Status); class != crawler.FailureNone {
				return class
			}
			return crawler.FailureUnknown
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return crawler.FailureTimeout
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return crawler.FailureTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return crawler.FailureConnection
	}
	return crawler.FailureUnknown
}

func classifyStatus(status int) crawler.FailureClass {
	switch {
	case status >= 200 && status < 300:
		return crawler.FailureNone
	case status == http.StatusTooManyRequests:
		return crawler.FailureRateLimit
	case status == http.StatusForbidden, status == StatusBlocked:
		return crawler.FailureChallenge
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return crawler.FailureTimeout
	case status >= 500 && status < 600:
		return crawler.FailureServer
	default:
		return crawler.FailureUnknown
	}
}

// Decide returns the next state for a task that failed with class.
// A task fails terminally once it has used up MaxRetries retries.
func (c *Controller) Decide(task crawler.FetchTask, class crawler.FailureClass) Decision {
	if class == crawler.FailureNone {
		return Decision{Class: class, State: crawler.TaskStateSucceeded}
	}
	policy := c.policy(class)
	d := Decision{Class: class, Rotate: policy.Rotate}
	if task.Attempt >= c.maxRetries {
		d.State = crawler.TaskStateFailed
		return d
	}
	d.State = crawler.TaskStateRetrying
	d.Delay = c.backoff(policy)
	d.Next = task.NextAttempt()
	return d
}

// Backoff returns a jittered delay for class.
func (c *Controller) Backoff(class crawler.FailureClass) time.Duration {
	return c.backoff(c.policy(class))
}

func (c *Controller) policy(class crawler.FailureClass) Policy {
	if p, ok := c.policies[class]; ok {
		return p
	}
	return c.policies[crawler.FailureUnknown]
}

func (c *Controller) backoff(p Policy) time.Duration {
	if c.scale == 0 {
		return 0
	}
	low, high := p.MinDelay, p.MaxDelay
	if high < low {
		high = low
	}
	delay := low + randomJitter(high-low)
	return time.Duration(float64(delay) * c.scale)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit) + 1)
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Jitter returns a uniformly random duration in [base, base+spread].
func Jitter(base, spread time.Duration) time.Duration {
	if base < 0 {
		base = 0
	}
	return base + randomJitter(spread)
}
