package constants

// Stage names recorded in processing_logs. These are the only values the
// progress mapping understands, so keep them stable.
const (
	StageStart      = "processing_start"
	StageOCR        = "ocr"
	StageLLM        = "llm"
	StageValidation = "validation"
	StageCompleted  = "completed"
	StageError      = "error"
)

// Log severities.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// stageProgress maps the latest log stage to a completion percentage.
var stageProgress = map[string]int{
	StageStart:      10,
	StageOCR:        40,
	StageLLM:        70,
	StageValidation: 85,
	StageCompleted:  100,
	StageError:      100,
}

// StageProgress returns the fixed progress percentage for a stage name.
// Unknown stages (and the empty log case) report 0.
func StageProgress(stage string) int {
	return stageProgress[stage]
}
