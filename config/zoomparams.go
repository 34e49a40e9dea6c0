package config

import (
	"strconv"
	"strings"
	"sync"

	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/geo"
)

// inputKey is the reserved parameter key whose subtree is always returned as
// a mapping, even when it resolves to a single entry.
const inputKey = "input"

// ZoomParams resolves a zoom-conditional parameter tree into flat per-zoom
// snapshots. Keys may carry one operator suffix of =Z, <=Z, >=Z, <Z or >Z,
// for example "dem_file>=10" or "smoothing<=5".
type ZoomParams struct {
	raw   map[string]any
	zooms geo.ZoomLevels

	mu   sync.Mutex
	memo map[int]map[string]any
}

// NewZoomParams creates a resolver over the raw tree for the given zoom set.
func NewZoomParams(raw map[string]any, zooms geo.ZoomLevels) *ZoomParams {
	return &ZoomParams{
		raw:   raw,
		zooms: zooms,
		memo:  make(map[int]map[string]any),
	}
}

// At returns the parameter snapshot for a zoom level. Snapshots are memoized
// per zoom and never recomputed within this resolver's lifetime.
func (p *ZoomParams) At(zoom int) (map[string]any, error) {
	if !p.zooms.Contains(zoom) {
		return nil, errors.ZoomOutOfRange(zoom)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if snapshot, ok := p.memo[zoom]; ok {
		return snapshot, nil
	}

	resolved, err := resolveTree("", p.raw, zoom)
	if err != nil {
		return nil, err
	}
	// The root never collapses, so this assertion always holds.
	snapshot := resolved.(map[string]any)
	p.memo[zoom] = snapshot
	return snapshot, nil
}

// resolveTree filters one subtree for a zoom level. Subtrees that carried
// zoom conditions and collapse to a single entry are unwrapped, except under
// the reserved "input" key.
func resolveTree(name string, tree map[string]any, zoom int) (any, error) {
	out := make(map[string]any)
	conditional := false

	for key, value := range tree {
		base, cond, err := parseConditionalKey(key)
		if err != nil {
			return nil, err
		}
		if cond != nil {
			conditional = true
			if !cond.matches(zoom) {
				continue
			}
		}
		if sub, ok := value.(map[string]any); ok {
			resolved, err := resolveTree(base, sub, zoom)
			if err != nil {
				return nil, err
			}
			out[base] = resolved
			continue
		}
		out[base] = value
	}

	if name != inputKey && name != "" && conditional && len(out) == 1 {
		for _, v := range out {
			return v, nil
		}
	}
	return out, nil
}

// zoomCondition is one parsed operator suffix.
type zoomCondition struct {
	op   string
	zoom int
}

func (c zoomCondition) matches(zoom int) bool {
	switch c.op {
	case "=":
		return zoom == c.zoom
	case "<=":
		return zoom <= c.zoom
	case ">=":
		return zoom >= c.zoom
	case "<":
		return zoom < c.zoom
	case ">":
		return zoom > c.zoom
	}
	return false
}

// parseConditionalKey splits a key into its base name and optional zoom
// condition. Two-character operators are matched before one-character ones.
func parseConditionalKey(key string) (string, *zoomCondition, error) {
	idx := strings.IndexAny(key, "=<>")
	if idx < 0 {
		return key, nil, nil
	}

	base := key[:idx]
	rest := key[idx:]
	var op string
	for _, candidate := range []string{"<=", ">=", "=", "<", ">"} {
		if strings.HasPrefix(rest, candidate) {
			op = candidate
			break
		}
	}
	operand := strings.TrimSpace(rest[len(op):])
	zoom, err := strconv.Atoi(operand)
	if err != nil || zoom < 0 || base == "" {
		return "", nil, errors.ConfigInvalid("cannot parse zoom condition in key "+strconv.Quote(key)).
			WithDetail("key", key)
	}
	return base, &zoomCondition{op: op, zoom: zoom}, nil
}
