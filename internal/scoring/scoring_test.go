package scoring

import (
	"testing"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

func TestScore_UIComponentTask(t *testing.T) {
	s := NewScorer(Config{})
	got := s.Score(domain.Task{Title: "Create a UserProfile component with tests"})

	// create(1) + component(2) + ui_component bonus(3)
	if got.TotalScore != 6 {
		t.Errorf("TotalScore = %d, want 6", got.TotalScore)
	}
	if got.TaskType != "ui_component" {
		t.Errorf("TaskType = %q, want ui_component", got.TaskType)
	}
	if !got.ShouldExpand {
		t.Error("ShouldExpand = false, want true at threshold")
	}
	if got.SuggestedSubtasks != 4 {
		t.Errorf("SuggestedSubtasks = %d, want 4", got.SuggestedSubtasks)
	}
	if got.Recommendation != "Low complexity task (score: 6). Recommend 4 subtasks." {
		t.Errorf("Recommendation = %q", got.Recommendation)
	}
}

func TestScore_Straightforward(t *testing.T) {
	s := NewScorer(Config{})
	got := s.Score(domain.Task{Title: "Update the changelog"})

	if got.TotalScore != 0 {
		t.Errorf("TotalScore = %d, want 0", got.TotalScore)
	}
	if got.TaskType != "general" {
		t.Errorf("TaskType = %q, want general", got.TaskType)
	}
	if got.ShouldExpand {
		t.Error("ShouldExpand = true, want false")
	}
	if got.SuggestedSubtasks != 0 {
		t.Errorf("SuggestedSubtasks = %d, want 0", got.SuggestedSubtasks)
	}
	if got.Recommendation != "Task is straightforward (score: 0). No subtasks needed." {
		t.Errorf("Recommendation = %q", got.Recommendation)
	}
}

func TestScore_GeneralBands(t *testing.T) {
	tests := []struct {
		name         string
		title        string
		wantScore    int
		wantSubtasks int
		wantExpand   bool
		wantTaskType string
	}{
		{
			// develop(1)+offline(4)+caching(3)+security(4)+error handling(3)+across(2)+multiple(2)
			name:         "high band",
			title:        "Develop offline caching with security auditing and error handling across multiple devices",
			wantScore:    19,
			wantSubtasks: 7,
			wantExpand:   true,
			wantTaskType: "general",
		},
		{
			// develop(1)+robust(2)+analytics(3)+reporting(3)
			name:         "mid band",
			title:        "Develop robust analytics reporting",
			wantScore:    9,
			wantSubtasks: 5,
			wantExpand:   true,
			wantTaskType: "general",
		},
		{
			// develop(1)+caching(3)+analytics(3)
			name:         "low band",
			title:        "Develop caching analytics",
			wantScore:    7,
			wantSubtasks: 4,
			wantExpand:   true,
			wantTaskType: "general",
		},
		{
			// develop(1)+caching(3): suggestion band reached, threshold not
			name:         "below threshold",
			title:        "Develop caching",
			wantScore:    4,
			wantSubtasks: 3,
			wantExpand:   false,
			wantTaskType: "general",
		},
	}
	s := NewScorer(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(domain.Task{Title: tt.title})
			if got.TotalScore != tt.wantScore {
				t.Errorf("TotalScore = %d, want %d", got.TotalScore, tt.wantScore)
			}
			if got.SuggestedSubtasks != tt.wantSubtasks {
				t.Errorf("SuggestedSubtasks = %d, want %d", got.SuggestedSubtasks, tt.wantSubtasks)
			}
			if got.ShouldExpand != tt.wantExpand {
				t.Errorf("ShouldExpand = %v, want %v", got.ShouldExpand, tt.wantExpand)
			}
			if got.TaskType != tt.wantTaskType {
				t.Errorf("TaskType = %q, want %q", got.TaskType, tt.wantTaskType)
			}
		})
	}
}

func TestScore_TypedBands(t *testing.T) {
	tests := []struct {
		name         string
		title        string
		wantScore    int
		wantType     string
		wantSubtasks int
	}{
		{
			// create(1)+responsive(2)+modal(2)+component(2)+animation(3)+accessibility(3) + bonus 3
			name:         "typed high adds two",
			title:        "Create responsive modal component with animation and accessibility",
			wantScore:    16,
			wantType:     "ui_component",
			wantSubtasks: 6,
		},
		{
			// build(1)+validation(2)+component(2) + bonus 3
			name:         "typed mid adds one",
			title:        "Build form validation component",
			wantScore:    8,
			wantType:     "ui_component",
			wantSubtasks: 5,
		},
		{
			// configure(1)+environment(2) + setup bonus 2
			name:         "typed low floors at typical",
			title:        "Configure environment settings",
			wantScore:    5,
			wantType:     "setup",
			wantSubtasks: 4,
		},
		{
			// error handling(3)+integration(4) + api_integration bonus 4
			name:         "multi-word indicator",
			title:        "Add error handling for integration",
			wantScore:    11,
			wantType:     "api_integration",
			wantSubtasks: 7,
		},
	}
	s := NewScorer(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(domain.Task{Title: tt.title})
			if got.TotalScore != tt.wantScore {
				t.Errorf("TotalScore = %d, want %d", got.TotalScore, tt.wantScore)
			}
			if got.TaskType != tt.wantType {
				t.Errorf("TaskType = %q, want %q", got.TaskType, tt.wantType)
			}
			if got.SuggestedSubtasks != tt.wantSubtasks {
				t.Errorf("SuggestedSubtasks = %d, want %d", got.SuggestedSubtasks, tt.wantSubtasks)
			}
		})
	}
}

// Category matching is ordered substring containment, so "performance"
// matches the ui_component pattern "form" before the optimization category
// is ever checked. The tables are tuned around this, not against it.
func TestScore_FirstCategoryWins(t *testing.T) {
	s := NewScorer(Config{})
	got := s.Score(domain.Task{Title: "Improve performance"})

	if got.TaskType != "ui_component" {
		t.Errorf("TaskType = %q, want ui_component", got.TaskType)
	}
	// performance(3) + ui_component bonus(3)
	if got.TotalScore != 6 {
		t.Errorf("TotalScore = %d, want 6", got.TotalScore)
	}
}

func TestScore_AllTextFieldsAnalyzed(t *testing.T) {
	s := NewScorer(Config{})
	got := s.Score(domain.Task{
		Title:        "Ship the widget",
		Description:  "needs caching",
		Details:      "and analytics",
		TestStrategy: "e2e coverage",
	})

	// caching(3) + analytics(3) + e2e(4)
	if got.TotalScore != 10 {
		t.Errorf("TotalScore = %d, want 10", got.TotalScore)
	}
	if _, ok := got.Indicators["e2e"]; !ok {
		t.Error("Indicators missing e2e from testStrategy field")
	}
}

func TestScore_CustomThreshold(t *testing.T) {
	s := NewScorer(Config{ExpansionThreshold: 10})
	got := s.Score(domain.Task{Title: "Develop caching analytics"}) // score 7

	if got.ShouldExpand {
		t.Error("ShouldExpand = true, want false under raised threshold")
	}

	s = NewScorer(Config{ExpansionThreshold: 3})
	got = s.Score(domain.Task{Title: "Develop caching"}) // score 4
	if !got.ShouldExpand {
		t.Error("ShouldExpand = false, want true under lowered threshold")
	}
}

func TestScore_MaxSubtasksCap(t *testing.T) {
	s := NewScorer(Config{MaxSubtasks: 5})
	// ui_component typed, score 16: base 4 + 2 capped at 5
	got := s.Score(domain.Task{Title: "Create responsive modal component with animation and accessibility"})

	if got.SuggestedSubtasks != 5 {
		t.Errorf("SuggestedSubtasks = %d, want 5 (capped)", got.SuggestedSubtasks)
	}
}
