// Package trigger routes store change events to handlers registered on
// path patterns such as "{namespace}/groups/{groupId}/messages/{messageId}".
package trigger

import (
	"fmt"
	"strings"

	"github.com/kperson/fire-sync/internal/store"
)

// Params holds the values bound to a pattern's wildcard segments.
type Params map[string]string

type segment struct {
	literal  string
	wildcard string
}

// Pattern is a parsed path pattern.
type Pattern struct {
	raw  string
	segs []segment
}

// ParsePattern parses a slash-separated pattern. A segment written as
// {name} matches any single key and binds it to name.
func ParsePattern(pattern string) (Pattern, error) {
	parts := store.Split(pattern)
	if len(parts) == 0 {
		return Pattern{}, fmt.Errorf("trigger: empty pattern")
	}

	p := Pattern{raw: strings.Join(parts, "/")}
	seen := make(map[string]bool)
	for _, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := part[1 : len(part)-1]
			if name == "" || seen[name] {
				return Pattern{}, fmt.Errorf("trigger: bad wildcard %q in %q", part, pattern)
			}
			seen[name] = true
			p.segs = append(p.segs, segment{wildcard: name})
			continue
		}
		if err := store.ValidateKey(part); err != nil {
			return Pattern{}, fmt.Errorf("trigger: pattern %q: %w", pattern, err)
		}
		p.segs = append(p.segs, segment{literal: part})
	}
	return p, nil
}

// Match reports whether path matches the pattern exactly, segment for
// segment, and returns the bound wildcards.
func (p Pattern) Match(path string) (Params, bool) {
	parts := store.Split(path)
	if len(parts) != len(p.segs) {
		return nil, false
	}

	params := make(Params)
	for i, seg := range p.segs {
		if seg.wildcard != "" {
			params[seg.wildcard] = parts[i]
			continue
		}
		if parts[i] != seg.literal {
			return nil, false
		}
	}
	return params, true
}

func (p Pattern) String() string {
	return p.raw
}
