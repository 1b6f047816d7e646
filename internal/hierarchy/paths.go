package hierarchy

import "strings"

const pathSep = ","

// FormatPath turns a slash separated location into a parent path:
// "a/b" becomes ",a,b,".
func FormatPath(p string) string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return JoinPath(segments...)
}

// JoinPath builds a parent path from its segments.
func JoinPath(segments ...string) string {
	if len(segments) == 0 {
		return pathSep
	}
	return pathSep + strings.Join(segments, pathSep) + pathSep
}

// ProjectPath is the root path every other row hangs from.
func ProjectPath(project string) string {
	return JoinPath(project)
}

// Segments splits a parent path back into its segments.
func Segments(path string) []string {
	trimmed := strings.Trim(path, pathSep)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, pathSep)
}

// Depth is the number of segments in a path.
func Depth(path string) int {
	return len(Segments(path))
}

// PathOf is the path children of row use as their parent.
func PathOf(row Row) string {
	b := row.Common()
	if row.Type() == TypeProject {
		return ProjectPath(b.ID)
	}
	return b.Parent + b.ID + pathSep
}
