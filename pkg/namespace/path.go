package namespace

import (
	"regexp"
	"strings"
)

// ============================================================================
// ID Path Encoding/Decoding
// ============================================================================

// idPattern is the identifier alphabet accepted inside a path segment.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Path addresses a node by the chain of ids from just below the root down to
// the node itself.
//
// Format: "/<id_1>/<id_2>/.../<id_n>", root is "/"
// Example: "/Vx3k.../Qa9p..." addresses folder Qa9p inside folder Vx3k.
//
// Paths are built only by EncodePath, ParsePath and the Tree, so a Path value
// is always well formed. Because segments are ids rather than names, renaming
// any ancestor leaves every existing Path valid.
//
// The zero value is the root path.
type Path struct {
	token string
}

// RootPath addresses the root folder.
var RootPath = Path{}

// EncodePath builds a Path from an ancestor id chain.
//
// Parameters:
//   - ids: Ids from just below the root to the addressed node (none for root)
//
// Returns:
//   - Path: The encoded path
//   - error: ErrInvalidPath if any id is empty, uses characters outside
//     [A-Za-z0-9_-], or is the reserved root id
func EncodePath(ids ...string) (Path, error) {
	if len(ids) == 0 {
		return RootPath, nil
	}

	var b strings.Builder
	for _, id := range ids {
		if err := checkSegment(id); err != nil {
			return Path{}, err
		}
		b.WriteByte('/')
		b.WriteString(id)
	}

	return Path{token: b.String()}, nil
}

// ParsePath decodes a path token received from a caller.
//
// This is the inverse of Path.String. Tokens must start with "/", must not
// end with "/" (except the root token "/" itself) and must not contain empty
// segments.
//
// Parameters:
//   - token: The path token to decode
//
// Returns:
//   - Path: The decoded path
//   - error: ErrInvalidPath if the token is malformed
//
// Example:
//
//	p, err := ParsePath("/a1/b2")
//	if err != nil {
//	    return err
//	}
//	ids := p.IDs() // ["a1", "b2"]
func ParsePath(token string) (Path, error) {
	if token == "/" {
		return RootPath, nil
	}

	if token == "" || token[0] != '/' {
		return Path{}, &Error{Code: ErrInvalidPath, Message: "path must start with '/'", Path: token}
	}

	for _, seg := range strings.Split(token[1:], "/") {
		if err := checkSegment(seg); err != nil {
			return Path{}, &Error{Code: ErrInvalidPath, Message: err.(*Error).Message, Path: token}
		}
	}

	return Path{token: token}, nil
}

// MustParsePath is like ParsePath but panics on malformed input.
// Intended for tests and constants.
func MustParsePath(token string) Path {
	p, err := ParsePath(token)
	if err != nil {
		panic(err)
	}
	return p
}

func checkSegment(id string) error {
	switch {
	case id == "":
		return &Error{Code: ErrInvalidPath, Message: "empty path segment"}
	case id == RootID:
		return &Error{Code: ErrInvalidPath, Message: "root id cannot appear as a path segment", Path: id}
	case !idPattern.MatchString(id):
		return &Error{Code: ErrInvalidPath, Message: "invalid characters in path segment", Path: id}
	}
	return nil
}

// String returns the canonical token.
func (p Path) String() string {
	if p.token == "" {
		return "/"
	}
	return p.token
}

// IsRoot reports whether p addresses the root folder.
func (p Path) IsRoot() bool { return p.token == "" }

// IDs returns the ancestor id chain, empty for the root.
func (p Path) IDs() []string {
	if p.token == "" {
		return nil
	}
	return strings.Split(p.token[1:], "/")
}

// Depth returns the number of segments (0 for root).
func (p Path) Depth() int {
	if p.token == "" {
		return 0
	}
	return strings.Count(p.token, "/")
}

// Last returns the id of the addressed node. For the root this is RootID.
func (p Path) Last() string {
	if p.token == "" {
		return RootID
	}
	return p.token[strings.LastIndexByte(p.token, '/')+1:]
}

// Parent returns the path of the containing folder. The root is its own parent.
func (p Path) Parent() Path {
	if p.token == "" {
		return p
	}
	return Path{token: p.token[:strings.LastIndexByte(p.token, '/')]}
}

// Child returns the path of the node with the given id inside p.
//
// The id is not validated; ids handed out by the Tree are always valid.
func (p Path) Child(id string) Path {
	return Path{token: p.token + "/" + id}
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(b []byte) error {
	parsed, err := ParsePath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
