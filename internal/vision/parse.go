package vision

import (
	"strings"
)

// ParseNote extracts the note from a model response: the first line that is
// not a preamble, with list markers, labels and quotes removed. "none" and
// similar answers yield an empty note.
func ParseNote(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Skip common headers or non-note lines
		if strings.HasPrefix(line, "Here") || strings.HasPrefix(line, "Based on") {
			continue
		}

		line = strings.TrimLeft(line, "-*• ")
		for _, label := range []string{"Note:", "Description:", "Defect:"} {
			if len(line) >= len(label) && strings.EqualFold(line[:len(label)], label) {
				line = strings.TrimSpace(line[len(label):])
			}
		}
		line = strings.Trim(line, `"'`)

		switch strings.ToLower(strings.TrimRight(line, ".!")) {
		case "", "none", "no damage", "no defects", "nothing":
			return ""
		}
		return line
	}
	return ""
}
