// Package scoring derives complexity scores and subtask-count suggestions
// from task text. Matching is plain substring containment over the lowercased
// concatenation of the task's text fields; weights and patterns are fixed
// tables tuned for typical web-project task wording.
package scoring

import (
	"fmt"
	"strings"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// keywordWeight pairs one indicator keyword with its additive weight.
type keywordWeight struct {
	keyword string
	weight  int
}

// complexityIndicators are checked in order; every keyword found in the task
// text contributes its weight once.
var complexityIndicators = []keywordWeight{
	// Technology / integration complexity
	{"api", 3}, {"integration", 4}, {"database", 3}, {"authentication", 3},
	{"third-party", 3}, {"external", 2}, {"service", 2}, {"endpoint", 2},

	// Implementation complexity
	{"algorithm", 4}, {"optimization", 3}, {"performance", 3}, {"security", 4},
	{"error handling", 3}, {"validation", 2}, {"caching", 3}, {"offline", 4},

	// UI/UX complexity
	{"component", 2}, {"interface", 2}, {"modal", 2}, {"animation", 3},
	{"responsive", 2}, {"accessibility", 3}, {"cross-browser", 3},

	// Testing complexity
	{"testing", 2}, {"unit test", 1}, {"integration test", 3}, {"e2e", 4},
	{"cross-device", 3}, {"compatibility", 3},

	// Infrastructure complexity
	{"deployment", 4}, {"configuration", 2}, {"environment", 2},
	{"monitoring", 3}, {"logging", 2}, {"analytics", 3},

	// Mobile / PWA specific
	{"camera", 3}, {"permissions", 2}, {"pwa", 3}, {"service worker", 4},
	{"push notifications", 3}, {"geolocation", 2},

	// Business logic complexity
	{"workflow", 3}, {"state management", 3}, {"data transformation", 3},
	{"business rules", 4}, {"calculations", 2}, {"reporting", 3},

	// Quality indicators
	{"comprehensive", 2}, {"robust", 2}, {"complete", 2}, {"production", 3},
	{"scalable", 3}, {"maintainable", 2},

	// Scope indicators
	{"multiple", 2}, {"various", 2}, {"different", 1}, {"across", 2},
	{"implement", 1}, {"create", 1}, {"build", 1}, {"develop", 1},
	{"setup", 1}, {"configure", 1}, {"integrate", 2}, {"connect", 1},
}

// taskTypePattern classifies a task and carries the category's complexity
// bonus and typical subtask count.
type taskTypePattern struct {
	name            string
	patterns        []string
	baseComplexity  int
	typicalSubtasks int
}

// taskTypePatterns are checked in order; the first category with any pattern
// present in the text wins.
var taskTypePatterns = []taskTypePattern{
	{"setup", []string{"install", "configure", "setup", "initialize", "create project"}, 2, 4},
	{"api_integration", []string{"api", "endpoint", "integration", "service", "external"}, 4, 5},
	{"ui_component", []string{"component", "interface", "ui", "button", "modal", "form"}, 3, 4},
	{"data_pipeline", []string{"pipeline", "data flow", "transformation", "processing"}, 5, 6},
	{"testing", []string{"test", "testing", "verification", "validation"}, 3, 4},
	{"optimization", []string{"optimize", "performance", "improve", "enhance"}, 4, 5},
	{"deployment", []string{"deploy", "production", "release", "launch"}, 5, 6},
}

// generalType is the fallback category when no pattern matches.
const generalType = "general"

// Config tunes expansion decisions. Zero values take the defaults.
type Config struct {
	ExpansionThreshold int
	MaxSubtasks        int
	MinSubtasks        int
}

func (c *Config) applyDefaults() {
	if c.ExpansionThreshold == 0 {
		c.ExpansionThreshold = 6
	}
	if c.MaxSubtasks == 0 {
		c.MaxSubtasks = 8
	}
	if c.MinSubtasks == 0 {
		c.MinSubtasks = 3
	}
}

// Scorer computes ComplexityScores. It is stateless and safe for concurrent
// use.
type Scorer struct {
	cfg Config
}

// NewScorer creates a Scorer with the given tuning.
func NewScorer(cfg Config) *Scorer {
	cfg.applyDefaults()
	return &Scorer{cfg: cfg}
}

// Score analyzes one task. The result is derived data only; calling Score
// twice on the same task yields the same value.
func (s *Scorer) Score(task domain.Task) domain.ComplexityScore {
	text := strings.ToLower(strings.Join([]string{
		task.Title, task.Description, task.Details, task.TestStrategy,
	}, " "))

	indicators := make(map[string]int)
	total := 0
	for _, kw := range complexityIndicators {
		if strings.Contains(text, kw.keyword) {
			indicators[kw.keyword] = kw.weight
			total += kw.weight
		}
	}

	taskType, bonus := classifyType(text)
	total += bonus

	shouldExpand := total >= s.cfg.ExpansionThreshold
	suggested := s.suggestedSubtasks(total, taskType)

	return domain.ComplexityScore{
		TotalScore:        total,
		Indicators:        indicators,
		TaskType:          taskType,
		SuggestedSubtasks: suggested,
		ShouldExpand:      shouldExpand,
		Recommendation:    recommendation(total, shouldExpand, suggested),
	}
}

// classifyType returns the first matching category and its bonus.
func classifyType(text string) (string, int) {
	for _, tp := range taskTypePatterns {
		for _, pattern := range tp.patterns {
			if strings.Contains(text, pattern) {
				return tp.name, tp.baseComplexity
			}
		}
	}
	return generalType, 0
}

// suggestedSubtasks maps a score to a subtask count. Typed tasks start from
// the category's typical count; general tasks use fixed score bands.
func (s *Scorer) suggestedSubtasks(score int, taskType string) int {
	if taskType == generalType {
		switch {
		case score >= 12:
			return min(s.cfg.MaxSubtasks, 7)
		case score >= 8:
			return 5
		case score >= 6:
			return 4
		case score >= 4:
			return 3
		default:
			return 0
		}
	}

	base := typicalSubtasks(taskType)
	switch {
	case score >= 10:
		return min(s.cfg.MaxSubtasks, base+2)
	case score >= 8:
		return min(s.cfg.MaxSubtasks, base+1)
	default:
		return max(s.cfg.MinSubtasks, base)
	}
}

func typicalSubtasks(taskType string) int {
	for _, tp := range taskTypePatterns {
		if tp.name == taskType {
			return tp.typicalSubtasks
		}
	}
	return 4
}

func recommendation(score int, shouldExpand bool, subtasks int) string {
	if !shouldExpand {
		return fmt.Sprintf("Task is straightforward (score: %d). No subtasks needed.", score)
	}
	urgency := "Low"
	switch {
	case score >= 10:
		urgency = "High"
	case score >= 8:
		urgency = "Medium"
	}
	return fmt.Sprintf("%s complexity task (score: %d). Recommend %d subtasks.", urgency, score, subtasks)
}
