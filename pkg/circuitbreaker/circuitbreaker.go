package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State 表示熔断器状态
type State int

const (
	StateClosed   State = iota // 关闭：正常状态，允许请求通过
	StateOpen                  // 打开：熔断状态，直接拒绝请求
	StateHalfOpen              // 半开：尝试恢复，允许少量请求通过
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// 失败阈值：连续失败多少次后打开熔断器
	FailureThreshold int
	// 成功阈值：半开状态下成功多少次后关闭熔断器
	SuccessThreshold int
	// 超时时间：打开状态持续多久后进入半开状态
	Timeout time.Duration
	// 半开状态下的最大并发请求数
	HalfOpenMaxRequests int
	// IsFailure 决定哪些错误计入失败；nil 表示所有非 nil 错误
	IsFailure func(error) bool
	// OnStateChange 状态变化回调（在锁外调用）
	OnStateChange func(from, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// CircuitBreaker 熔断器
type CircuitBreaker struct {
	config Config
	now    func() time.Time

	state         State
	failureCount  int
	successCount  int
	halfOpenCount int
	lastStateTime time.Time

	mu sync.Mutex
}

// NewCircuitBreaker 创建新的熔断器
func NewCircuitBreaker(config Config) *CircuitBreaker {
	return newWithClock(config, time.Now)
}

func newWithClock(config Config, now func() time.Time) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	return &CircuitBreaker{
		config:        config,
		now:           now,
		state:         StateClosed,
		lastStateTime: now(),
	}
}

// Execute 执行函数，带熔断保护
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteContext(context.Background(), func(context.Context) error { return fn() })
}

// ExecuteContext 与 Execute 相同，但会先检查 ctx 是否已取消；取消不计入失败
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var transitions []transition
	cb.mu.Lock()
	transitions = cb.checkTimeout(transitions)

	switch cb.state {
	case StateOpen:
		cb.mu.Unlock()
		cb.notify(transitions)
		return ErrCircuitBreakerOpen
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.config.HalfOpenMaxRequests {
			cb.mu.Unlock()
			cb.notify(transitions)
			return ErrCircuitBreakerOpen
		}
		cb.halfOpenCount++
	}
	cb.mu.Unlock()
	cb.notify(transitions)

	err := fn(ctx)

	transitions = transitions[:0]
	cb.mu.Lock()
	if cb.isFailure(err) {
		transitions = cb.onFailure(transitions)
	} else {
		transitions = cb.onSuccess(transitions)
	}
	cb.mu.Unlock()
	cb.notify(transitions)

	return err
}

type transition struct{ from, to State }

func (cb *CircuitBreaker) isFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if cb.config.IsFailure != nil {
		return cb.config.IsFailure(err)
	}
	return true
}

func (cb *CircuitBreaker) setState(to State, ts []transition) []transition {
	if cb.state == to {
		return ts
	}
	ts = append(ts, transition{from: cb.state, to: to})
	cb.state = to
	cb.lastStateTime = cb.now()
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCount = 0
	return ts
}

// checkTimeout 打开状态超时后进入半开状态
func (cb *CircuitBreaker) checkTimeout(ts []transition) []transition {
	if cb.state == StateOpen && cb.now().Sub(cb.lastStateTime) >= cb.config.Timeout {
		ts = cb.setState(StateHalfOpen, ts)
	}
	return ts
}

// onFailure 处理失败
func (cb *CircuitBreaker) onFailure(ts []transition) []transition {
	switch cb.state {
	case StateHalfOpen:
		// 半开状态下失败，立即打开
		return cb.setState(StateOpen, ts)
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			return cb.setState(StateOpen, ts)
		}
	}
	return ts
}

// onSuccess 处理成功
func (cb *CircuitBreaker) onSuccess(ts []transition) []transition {
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.halfOpenCount > 0 {
			cb.halfOpenCount--
		}
		if cb.successCount >= cb.config.SuccessThreshold {
			return cb.setState(StateClosed, ts)
		}
	case StateClosed:
		cb.failureCount = 0
	}
	return ts
}

func (cb *CircuitBreaker) notify(ts []transition) {
	if cb.config.OnStateChange == nil {
		return
	}
	for _, t := range ts {
		cb.config.OnStateChange(t.from, t.to)
	}
}

// GetState 获取当前状态（线程安全）
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.lastStateTime) >= cb.config.Timeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset 重置熔断器
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	ts := cb.setState(StateClosed, nil)
	cb.failureCount = 0
	cb.mu.Unlock()
	cb.notify(ts)
}

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)
