package model

// QuestionKind defines how an answer is interpreted
type QuestionKind string

const (
	QuestionSingleChoice QuestionKind = "single_choice" // value is the option index
	QuestionScale        QuestionKind = "scale"         // value is a number within ScaleRange
	QuestionFreeText     QuestionKind = "free_text"     // value is a string
)

// Valid reports whether k is a known kind
func (k QuestionKind) Valid() bool {
	return k == QuestionSingleChoice || k == QuestionScale || k == QuestionFreeText
}

// ScaleRange is the declared inclusive bounds of a scale question
type ScaleRange struct {
	Min int `json:"min" bson:"min"`
	Max int `json:"max" bson:"max"`
}

// Midpoint is the neutral value of the scale
func (r ScaleRange) Midpoint() float64 {
	return float64(r.Min+r.Max) / 2
}

// HalfRange is the distance from the midpoint to either bound
func (r ScaleRange) HalfRange() float64 {
	return float64(r.Max-r.Min) / 2
}

// Question is one item of a micro-survey definition
type Question struct {
	ID        string       `json:"id" bson:"id"`
	Kind      QuestionKind `json:"kind" bson:"kind"`
	Prompt    string       `json:"prompt" bson:"prompt"`
	Required  bool         `json:"required" bson:"required"`
	Options   []string     `json:"options,omitempty" bson:"options,omitempty"`       // single_choice only
	Scale     *ScaleRange  `json:"scaleRange,omitempty" bson:"scaleRange,omitempty"` // scale only
	MaxLength int          `json:"maxLength,omitempty" bson:"maxLength,omitempty"`   // free_text only, 0 = service default
}
