package export

import (
	"regexp"
	"strings"
)

var illegalChars = regexp.MustCompile(`[<>"'/\\|?*]+`)

// sanitizeTitle makes a book title safe to use as a file name: strip
// characters that common file systems reject, then map colons and
// periods to hyphens. Periods would otherwise confuse extension
// detection in downstream tooling.
func sanitizeTitle(title string) string {
	s := illegalChars.ReplaceAllString(title, "")
	s = strings.ReplaceAll(s, ":", "-")
	s = strings.ReplaceAll(s, ".", "-")
	return s
}
