package report

import (
	"encoding/json"
	"fmt"

	"edutrack/internal/model"
)

// BuildPrompt renders the school engagement data into the prompt the
// generation service answers with an executive summary.
func BuildPrompt(sum model.Summary, sections []model.SectionStats) string {
	stats := struct {
		TotalStudents   int                  `json:"totalStudents"`
		TotalCoins      int                  `json:"totalCoins"`
		TotalAttendance int                  `json:"totalAttendance"`
		SectionStats    []model.SectionStats `json:"sectionStats"`
	}{
		TotalStudents:   sum.TotalStudents,
		TotalCoins:      sum.TotalCoins,
		TotalAttendance: sum.TotalAttendance,
		SectionStats:    sections,
	}
	blob, _ := json.MarshalIndent(stats, "", "  ")

	return fmt.Sprintf(`You are a school administrator assistant. Analyze the following raw data from our school management system:
%s

Please provide a professional executive summary formatted in Markdown. Include:
1. A brief overview of school engagement (attendance and rewards).
2. Identification of the top-performing section based on coins and attendance.
3. Three specific, actionable recommendations for the principal to improve student engagement.

Keep the tone formal and encouraging.`, string(blob))
}
