package sheet

import "regexp"

// maxCodeScan bounds the text searched for a class code.
const maxCodeScan = 1024

var classCodePattern = regexp.MustCompile(`[A-Z]{2,4}-\d{1,2}[A-Z]?`)

// ExtractClassCode returns the first section code (e.g. "BCS-1G") found in
// text, or "" when there is none.
func ExtractClassCode(text string) string {
	if text == "" {
		return ""
	}
	if len(text) > maxCodeScan {
		text = text[:maxCodeScan]
	}
	return classCodePattern.FindString(text)
}
