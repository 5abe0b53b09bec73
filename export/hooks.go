package export

import (
	"sort"

	"go.uber.org/zap"
)

// Hook observes an execution around the pipeline run. Before hooks run in
// ascending priority order, after hooks in descending order. Hook panics
// and errors are logged and never abort the execution path.
type Hook struct {
	Name     string
	Priority int
	Before   func(record *Record)
	After    func(record *Record, result *Result)
}

// HookChain holds ordered execution hooks registered at startup.
type HookChain struct {
	hooks  []Hook
	logger *zap.SugaredLogger
}

// NewHookChain creates a hook chain.
func NewHookChain(logger *zap.SugaredLogger) *HookChain {
	return &HookChain{logger: logger.Named("hooks")}
}

// Add registers a hook. Not safe for use after execution has started.
func (c *HookChain) Add(h Hook) {
	c.hooks = append(c.hooks, h)
	sort.SliceStable(c.hooks, func(i, j int) bool {
		return c.hooks[i].Priority < c.hooks[j].Priority
	})
}

// RunBefore invokes all before hooks in ascending priority order.
func (c *HookChain) RunBefore(record *Record) {
	for _, h := range c.hooks {
		if h.Before == nil {
			continue
		}
		c.safeRun(h.Name, func() { h.Before(record) })
	}
}

// RunAfter invokes all after hooks in descending priority order.
func (c *HookChain) RunAfter(record *Record, result *Result) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		h := c.hooks[i]
		if h.After == nil {
			continue
		}
		c.safeRun(h.Name, func() { h.After(record, result) })
	}
}

func (c *HookChain) safeRun(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("Hook panicked",
				"hook", name,
				"panic", r,
			)
		}
	}()
	fn()
}
