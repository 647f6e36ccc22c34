// Package selection turns the active model catalog and a policy rule set
// into an ordered candidate list for one request. The engine is pure: it
// never touches the database, so routing can call it on every request.
package selection

import (
	"sort"

	"github.com/sheetwise/modelmux/models"
	"go.uber.org/zap"
)

// Request carries the routing hints that influence candidate selection.
type Request struct {
	// TaskType tags the kind of work (e.g., "formula-generation").
	// Empty means untyped chat.
	TaskType string

	// Complexity is a soft preference. When no eligible model supports
	// the requested level the hint is ignored rather than failing the
	// request.
	Complexity models.Complexity

	// PinnedModelID forces a specific config to the front when set and
	// eligible (manual selection mode).
	PinnedModelID string
}

// Engine orders model configs for routing.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a selection engine
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Candidates filters and orders the active configs for a request.
//
// Filtering removes configs that are blacklisted, not vetted for the task
// type, or over the policy's per-request cost ceiling. Ordering follows
// the policy's provider ranking for the task type; within a provider,
// higher priority wins, then the org default, then ID for determinism.
// Providers absent from the ranking sort after ranked ones. The result is
// capped at the policy's effective max retries.
func (e *Engine) Candidates(configs []*models.ModelConfig, mode models.SelectionMode, rules models.PolicyRules, req Request) []*models.ModelConfig {
	eligible := e.filter(configs, rules, req)
	if len(eligible) == 0 {
		return nil
	}

	eligible = e.applyComplexity(eligible, req.Complexity)

	ranking := rules.ProviderRanking(req.TaskType)
	rank := make(map[models.Provider]int, len(ranking))
	for i, p := range ranking {
		rank[models.Provider(p)] = i
	}

	ordered := make([]*models.ModelConfig, len(eligible))
	copy(ordered, eligible)

	byRanking := mode != models.SelectionModeManual && rules.FallbackStrategy != models.FallbackAnyProvider

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]

		if byRanking {
			ra, rb := providerRank(rank, a.Provider), providerRank(rank, b.Provider)
			if ra != rb {
				return ra < rb
			}
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.IsDefault != b.IsDefault {
			return a.IsDefault
		}
		if !byRanking {
			ra, rb := providerRank(rank, a.Provider), providerRank(rank, b.Provider)
			if ra != rb {
				return ra < rb
			}
		}
		return a.ID.String() < b.ID.String()
	})

	if mode == models.SelectionModeManual && req.PinnedModelID != "" {
		ordered = pinFirst(ordered, req.PinnedModelID)
	}

	// The fallback chain never explores more than maxRetries candidates,
	// so the list is capped here and routing walks it whole
	if max := rules.EffectiveMaxRetries(); len(ordered) > max {
		ordered = ordered[:max]
	}

	return ordered
}

// filter drops configs excluded by the rules or unsuited to the task.
func (e *Engine) filter(configs []*models.ModelConfig, rules models.PolicyRules, req Request) []*models.ModelConfig {
	var out []*models.ModelConfig
	for _, cfg := range configs {
		if !cfg.IsActive {
			continue
		}
		if rules.IsBlacklisted(cfg) {
			continue
		}
		if !cfg.SupportsTaskType(req.TaskType) {
			continue
		}
		if rules.MaxCostPerRequest > 0 && cfg.MaxTokens > 0 && cfg.CostPerToken > 0 {
			ceiling := float64(cfg.MaxTokens) * cfg.CostPerToken
			if ceiling > rules.MaxCostPerRequest {
				continue
			}
		}
		out = append(out, cfg)
	}
	return out
}

// applyComplexity narrows to configs supporting the requested level.
// When nothing supports it the hint is dropped so the request still routes.
func (e *Engine) applyComplexity(configs []*models.ModelConfig, c models.Complexity) []*models.ModelConfig {
	if c == "" {
		return configs
	}
	var matching []*models.ModelConfig
	for _, cfg := range configs {
		if cfg.SupportsComplexity(c) {
			matching = append(matching, cfg)
		}
	}
	if len(matching) == 0 {
		e.logger.Debug("no candidate supports requested complexity, ignoring hint",
			zap.String("complexity", string(c)),
		)
		return configs
	}
	return matching
}

func providerRank(rank map[models.Provider]int, p models.Provider) int {
	if r, ok := rank[p]; ok {
		return r
	}
	return len(rank) + 1
}

// pinFirst moves the config matching the pinned ID or model name to the
// front, keeping the rest in order.
func pinFirst(configs []*models.ModelConfig, pinned string) []*models.ModelConfig {
	for i, cfg := range configs {
		if cfg.ID.String() == pinned || cfg.ModelName == pinned {
			out := make([]*models.ModelConfig, 0, len(configs))
			out = append(out, cfg)
			out = append(out, configs[:i]...)
			out = append(out, configs[i+1:]...)
			return out
		}
	}
	return configs
}
