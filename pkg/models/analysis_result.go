package models

// AIResult is the consolidated outcome of a successful orchestrator run.
// It is written once, together with ai_completed=true.
type AIResult struct {
	Narrative         string `json:"narrative"`
	FramesAnalyzed    int    `json:"frames_analyzed"`
	FramesSkipped     int    `json:"frames_skipped"`
	BatchesProcessed  int    `json:"batches_processed"`
	TokensUsed        int    `json:"tokens_used"`
	FallbackTriggered bool   `json:"fallback_triggered"`
	Provider          string `json:"provider,omitempty"`
}

// BatchSegment is the narrative produced for one batch of frames.
type BatchSegment struct {
	BatchIndex    int    `json:"batch_index"`
	FramesInBatch int    `json:"frames_in_batch"`
	Narrative     string `json:"narrative_text"`
	TokensUsed    int    `json:"tokens_used"`
	Fallback      bool   `json:"fallback,omitempty"`
}
