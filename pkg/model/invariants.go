package model

import "fmt"

// ValidateAnalysis enforces the has_fix ⇒ non-empty content invariant
// (§3, §9 "Dynamic structured output → typed sum types") at parse time,
// so malformed LLM output never reaches a FileChange consumer.
func ValidateAnalysis(a Analysis) error {
	if !a.HasFix {
		return nil
	}
	for i, fc := range a.FileChanges {
		if fc.Action == FileActionModify || fc.Action == FileActionCreate {
			if fc.Content == "" {
				return fmt.Errorf("file_changes[%d] (%s %s): has_fix=true requires non-empty content", i, fc.Action, fc.Path)
			}
		}
	}
	return nil
}
