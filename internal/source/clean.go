package source

import "strings"

// CleanCell removes spreadsheet artifacts from a cell value:
//   - Trims whitespace
//   - Unwraps Excel's text-formula form (="...")
//
// Surrounding quotes are otherwise kept; body HTML may legitimately end in one.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return s
}

// CleanHeader normalizes a header cell so column names match regardless of
// case, quoting or an Excel formula prefix.
func CleanHeader(s string) string {
	s = CleanCell(s)
	s = strings.TrimPrefix(s, "=")
	s = strings.Trim(s, `"'`)
	return strings.ToLower(strings.TrimSpace(s))
}
