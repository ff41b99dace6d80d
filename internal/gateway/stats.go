package gateway

// Stats is the operational view exposed on the admin surface.
type Stats struct {
	Size                   int            `json:"size"`
	Keys                   []string       `json:"keys"`
	RequestsUsedThisWindow int            `json:"requests_used_this_window"`
	BudgetLimit            int            `json:"budget_limit"`
	CanAcquireNow          bool           `json:"can_acquire_now"`
	QueueDepth             int            `json:"queue_depth"`
	Breakers               []CircuitState `json:"breakers"`
}

func (g *Gateway) Stats() Stats {
	return Stats{
		Size:                   g.cache.Len(),
		Keys:                   g.cache.Keys(),
		RequestsUsedThisWindow: g.budget.Used(),
		BudgetLimit:            g.budget.Limit(),
		CanAcquireNow:          g.budget.CanAcquire(),
		QueueDepth:             g.queue.Depth(),
		Breakers:               g.breakers.States(),
	}
}
