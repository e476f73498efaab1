package ftpclient

import (
	"strings"
)

// PathStyle selects the parsing/printing convention for a ServerPath,
// derived from a Server's ServerType.
type PathStyle int

// Supported path styles.
const (
	PathStyleUnix PathStyle = iota
	PathStyleDOS
	PathStyleVMS
	PathStyleMVS
)

// pathStyleFor maps a ServerType to the ServerPath style it implies.
func pathStyleFor(t ServerType) PathStyle {
	switch t {
	case ServerTypeDOS, ServerTypeDOSVirtual:
		return PathStyleDOS
	case ServerTypeVMS:
		return PathStyleVMS
	case ServerTypeMVS:
		return PathStyleMVS
	default:
		return PathStyleUnix
	}
}

// ServerPath is an absolute path on the remote server, carrying the path
// style it was parsed with so that parent()/add_segment()/etc. round-trip
// through the same convention. The zero value is the empty path.
type ServerPath struct {
	style    PathStyle
	segments []string
	// prefix carries style-specific furniture that doesn't fit the plain
	// segment model: a drive letter for DOS, a bracket/device name for VMS.
	prefix string
}

// NewServerPath parses str under the given style. An empty string produces
// the zero (empty) ServerPath regardless of style.
func NewServerPath(str string, style PathStyle) ServerPath {
	if str == "" {
		return ServerPath{}
	}

	switch style {
	case PathStyleDOS:
		return parseDOSPath(str)
	case PathStyleVMS:
		return parseVMSPath(str)
	case PathStyleMVS:
		return parseMVSPath(str)
	default:
		return parseUnixPath(str)
	}
}

func parseUnixPath(str string) ServerPath {
	parts := strings.Split(strings.Trim(str, "/"), "/")

	segments := make([]string, 0, len(parts))

	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}

	return ServerPath{style: PathStyleUnix, segments: segments}
}

func parseDOSPath(str string) ServerPath {
	prefix := ""
	rest := str

	if idx := strings.Index(str, ":"); idx >= 0 {
		prefix = str[:idx+1]
		rest = str[idx+1:]
	}

	rest = strings.ReplaceAll(rest, "\\", "/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	segments := make([]string, 0, len(parts))

	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}

	return ServerPath{style: PathStyleDOS, segments: segments, prefix: prefix}
}

// parseVMSPath parses DEVICE:[DIR.SUBDIR]FILE style paths into segments
// DIR, SUBDIR, FILE, keeping the device as the prefix.
func parseVMSPath(str string) ServerPath {
	prefix := ""
	rest := str

	if idx := strings.Index(str, ":"); idx >= 0 {
		prefix = str[:idx+1]
		rest = str[idx+1:]
	}

	rest = strings.TrimPrefix(rest, "[")

	var dirPart, filePart string
	if idx := strings.Index(rest, "]"); idx >= 0 {
		dirPart = rest[:idx]
		filePart = rest[idx+1:]
	} else {
		filePart = rest
	}

	var segments []string
	if dirPart != "" {
		segments = strings.Split(dirPart, ".")
	}

	if filePart != "" {
		segments = append(segments, filePart)
	}

	return ServerPath{style: PathStyleVMS, segments: segments, prefix: prefix}
}

// parseMVSPath parses quoted partitioned datasets, 'HLQ.MEMBER', into
// segments HLQ, MEMBER.
func parseMVSPath(str string) ServerPath {
	trimmed := strings.Trim(str, "'")
	parts := strings.Split(trimmed, ".")

	segments := make([]string, 0, len(parts))

	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}

	return ServerPath{style: PathStyleMVS, segments: segments}
}

// IsEmpty reports whether this is the zero-constructed ServerPath.
func (p ServerPath) IsEmpty() bool {
	return len(p.segments) == 0 && p.prefix == ""
}

// HasParent reports whether this path has a segment above it (i.e. is not
// the root).
func (p ServerPath) HasParent() bool {
	return len(p.segments) > 0
}

// Depth returns the number of segments between this path and its style's
// root.
func (p ServerPath) Depth() int {
	return len(p.segments)
}

// segmentsUpTo returns the first n segments of p (n clamped to [0, Depth()]).
func (p ServerPath) segmentsUpTo(n int) []string {
	if n < 0 {
		n = 0
	}

	if n > len(p.segments) {
		n = len(p.segments)
	}

	return append([]string(nil), p.segments[:n]...)
}

// pathFromSegments builds a ServerPath in the same style/prefix as like,
// replacing its segments outright. Used to materialize an ancestor of a path
// during the Mkdir walk.
func pathFromSegments(like ServerPath, segments []string) ServerPath {
	np := like
	np.segments = segments

	return np
}

// Parent returns the path one level up. Calling Parent on the root returns
// the root unchanged.
func (p ServerPath) Parent() ServerPath {
	if len(p.segments) == 0 {
		return p
	}

	np := p
	np.segments = append([]string(nil), p.segments[:len(p.segments)-1]...)

	return np
}

// LastSegment returns the final path component, or "" for the root.
func (p ServerPath) LastSegment() string {
	if len(p.segments) == 0 {
		return ""
	}

	return p.segments[len(p.segments)-1]
}

// AddSegment returns a new path with name appended below this one.
func (p ServerPath) AddSegment(name string) ServerPath {
	np := p
	np.segments = append(append([]string(nil), p.segments...), name)

	return np
}

// IsSubdirOf reports whether p is exactly one segment below other.
func (p ServerPath) IsSubdirOf(other ServerPath) bool {
	if len(p.segments) != len(other.segments)+1 {
		return false
	}

	return other.IsParentOf(p)
}

// IsParentOf reports whether p is an ancestor of other (at any depth).
func (p ServerPath) IsParentOf(other ServerPath) bool {
	if len(other.segments) <= len(p.segments) {
		return false
	}

	for i, seg := range p.segments {
		if other.segments[i] != seg {
			return false
		}
	}

	return true
}

// CommonParent returns the deepest path that is an ancestor of (or equal
// to) both p and other.
func (p ServerPath) CommonParent(other ServerPath) ServerPath {
	n := len(p.segments)
	if len(other.segments) < n {
		n = len(other.segments)
	}

	common := 0

	for ; common < n; common++ {
		if p.segments[common] != other.segments[common] {
			break
		}
	}

	np := p
	np.segments = append([]string(nil), p.segments[:common]...)

	return np
}

// FormatFilename renders name as a full path string under p. If relative is
// true, the bare name is returned unqualified (as a server command argument
// assumed to resolve against the current directory); otherwise the full
// absolute path is rendered.
func (p ServerPath) FormatFilename(name string, relative bool) string {
	if relative {
		return name
	}

	return p.AddSegment(name).String()
}

// FormatSubdir renders name as the argument to a CWD into a subdirectory of
// p, which for every style this engine supports is just the bare name.
func (p ServerPath) FormatSubdir(name string) string {
	return name
}

// String renders the ServerPath back into its wire representation.
func (p ServerPath) String() string {
	switch p.style {
	case PathStyleDOS:
		return p.prefix + strings.Join(p.segments, "\\")
	case PathStyleVMS:
		if len(p.segments) == 0 {
			return p.prefix
		}

		dirs := p.segments[:len(p.segments)-1]
		file := p.segments[len(p.segments)-1]

		if len(dirs) == 0 {
			return p.prefix + file
		}

		return p.prefix + "[" + strings.Join(dirs, ".") + "]" + file
	case PathStyleMVS:
		return "'" + strings.Join(p.segments, ".") + "'"
	default:
		return "/" + strings.Join(p.segments, "/")
	}
}
