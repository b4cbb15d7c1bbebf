package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunReportCounters(t *testing.T) {
	rep := NewRunReport("billing", "office")
	assert.NotEmpty(t, rep.ID)
	assert.False(t, rep.Completed)

	rep.AddResult(ExtractionResult{MessageUID: "1", Outcome: OutcomeWritten})
	rep.AddResult(ExtractionResult{MessageUID: "2", Outcome: OutcomeSkippedDupe})
	rep.AddResult(ExtractionResult{MessageUID: "3", Outcome: OutcomeSkippedFiltered})
	rep.AddResult(ExtractionResult{MessageUID: "4", Outcome: OutcomeFailed})
	rep.AddError("mark message 4 read: timeout")

	assert.Equal(t, 1, rep.Written)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, 1, rep.ErrorCount())
	assert.Len(t, rep.Results, 4)

	rep.Finish()
	assert.False(t, rep.FinishedAt.IsZero())
}
