package workspace

import "fmt"

type Step int

const (
	StepUpload     Step = 1
	StepGenre      Step = 2
	StepCharacters Step = 3
	StepGenerate   Step = 4
)

func (s Step) String() string {
	switch s {
	case StepUpload:
		return "upload"
	case StepGenre:
		return "genre"
	case StepCharacters:
		return "characters"
	case StepGenerate:
		return "generate"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Caption is the one-line hint shown under the step indicator.
func (s Step) Caption(imageCount int) string {
	switch s {
	case StepUpload:
		if imageCount == 0 {
			return "Step 1: Upload photos to begin"
		}
		if imageCount == 1 {
			return "1 photo uploaded"
		}
		return fmt.Sprintf("%d photos uploaded", imageCount)
	case StepGenre:
		return "Step 2: Choose your story genre"
	case StepCharacters:
		return "Step 3: Add character details"
	case StepGenerate:
		return "Step 4: Generate your story"
	default:
		return ""
	}
}

// Transition is the outcome of Continue.
type Transition int

const (
	TransitionAdvanced Transition = iota + 1
	// TransitionModal means the character modal was opened instead of
	// advancing.
	TransitionModal
)

func (t Transition) String() string {
	switch t {
	case TransitionAdvanced:
		return "advanced"
	case TransitionModal:
		return "modal"
	default:
		return ""
	}
}
