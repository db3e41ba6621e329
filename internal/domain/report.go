package domain

// Review classifications, strongest first.
const (
	ClassificationCriticalTerm = "Untranslated Critical Term"
	ClassificationUntranslated = "Untranslated"
	ClassificationAdaptation   = "AI Adaptation"
	ClassificationWarning      = "AI Warning"
)

// ReviewItem flags a translation for human inspection. It is returned in the
// Report only and never persisted.
type ReviewItem struct {
	LanguageCode   string `json:"language_code"`
	Key            string `json:"key"`
	SourceText     string `json:"source_text"`
	TranslatedText string `json:"translated_text"`
	Reason         string `json:"reason"`
	Classification string `json:"classification"`
}

// Warning records a unit (batch or language) that failed after retry
// exhaustion. The job continues past it.
type Warning struct {
	Unit    string `json:"unit"`
	Message string `json:"message"`
}

// Report accumulates across a whole job and is the sole channel for
// partial-failure visibility: success with non-empty warnings is a valid
// outcome.
type Report struct {
	TotalProcessed int          `json:"total_processed"`
	Units          []string     `json:"units,omitempty"`
	Warnings       []Warning    `json:"warnings,omitempty"`
	ReviewItems    []ReviewItem `json:"review_items,omitempty"`
}

func (r *Report) AddUnit(unit string) {
	r.Units = append(r.Units, unit)
}

func (r *Report) AddWarning(unit, message string) {
	r.Warnings = append(r.Warnings, Warning{Unit: unit, Message: message})
}

func (r *Report) AddReviewItems(items ...ReviewItem) {
	r.ReviewItems = append(r.ReviewItems, items...)
}

// JobCursor is the resumption marker for a job that exceeds one execution's
// budget. It is a value held by the caller, not a stored entity.
type JobCursor struct {
	Offset int `json:"offset"`
}
