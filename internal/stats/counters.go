package stats

import (
	"sync"
	"time"
)

// ModelStats is one row of the in-memory counters.
type ModelStats struct {
	Requests         int64 `json:"requests"`
	Errors           int64 `json:"errors"`
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

func (s *ModelStats) addUsage(u Usage) {
	s.PromptTokens += u.PromptTokens
	s.CompletionTokens += u.CompletionTokens
	s.TotalTokens += u.TotalTokens
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	StartedAt time.Time             `json:"startedAt"`
	Totals    ModelStats            `json:"totals"`
	PerModel  map[string]ModelStats `json:"perModel"`
}

// Counters keeps process-lifetime totals in memory. Created once at startup; never reset.
type Counters struct {
	startedAt time.Time

	mu       sync.Mutex
	totals   ModelStats
	perModel map[string]*ModelStats
}

func NewCounters() *Counters {
	return &Counters{
		startedAt: time.Now().UTC(),
		perModel:  make(map[string]*ModelStats),
	}
}

func (c *Counters) model(name string) *ModelStats {
	s, ok := c.perModel[name]
	if !ok {
		s = &ModelStats{}
		c.perModel[name] = s
	}
	return s
}

func (c *Counters) RecordRequest(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals.Requests++
	c.model(model).Requests++
}

func (c *Counters) RecordError(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals.Errors++
	c.model(model).Errors++
}

func (c *Counters) RecordUsage(model string, usage Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals.addUsage(usage)
	c.model(model).addUsage(usage)
}

// Snapshot copies the current values.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	per := make(map[string]ModelStats, len(c.perModel))
	for name, s := range c.perModel {
		per[name] = *s
	}
	return Snapshot{StartedAt: c.startedAt, Totals: c.totals, PerModel: per}
}
