package core

import (
	"fmt"
	"maps"
	"slices"
)

const (
	MaintainerLink    = "https://github.com/dorcha-inc/hsp/blob/main/MAINTAINERS.md"
	BugReportTemplate = "\n\n[NOTE]This is most likely a bug in hsp, please reach out to the maintainers at %s"
)

// BugReportMessage is appended to errors that can only come from a bug in hsp.
func BugReportMessage() string {
	return fmt.Sprintf(BugReportTemplate, MaintainerLink)
}

// GOOSWindows is runtime.GOOS on Windows, where tools are not shell scripts.
const GOOSWindows = "windows"

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
