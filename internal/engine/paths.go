package engine

import (
	"strings"
)

// TrashRoot is the flat namespace projecting every trashed record,
// regardless of its remote parent (spec §3, Path).
const TrashRoot = "/.Trash"

// inTrash reports whether path lives under the trash view.
func inTrash(path string) bool {
	return path == TrashRoot || strings.HasPrefix(path, TrashRoot+"/")
}

// trashPathFor returns the trash-view path for a file named name.
func trashPathFor(name string) string {
	return TrashRoot + "/" + name
}

// parentPath returns the parent directory of path. parentPath("/") is "".
func parentPath(path string) string {
	if path == "/" {
		return ""
	}
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// baseName returns the last path component.
func baseName(path string) string {
	idx := strings.LastIndex(path, "/")
	return path[idx+1:]
}

// joinPath appends name as a child of parent ("/" or "/.Trash" included).
func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
