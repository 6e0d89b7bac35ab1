package intent

// Intent is the discrete category assigned to a user turn. It determines
// which capability handles the turn.
type Intent string

const (
	PersonalAutomation Intent = "personal_automation"
	ImageManipulation  Intent = "image_manipulation"
	VisionAnalysis     Intent = "vision_analysis"
	ImageGeneration    Intent = "image_generation"
	ResearchCoding     Intent = "research_coding"
	CasualChat         Intent = "casual_chat"
)

func (i Intent) String() string { return string(i) }
