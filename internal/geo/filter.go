package geo

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"geopipe/internal/logging"
)

// FilterBBox narrows features to those whose own bounding box overlaps
// box. This is overlap by feature bbox, not exact geometry intersection;
// the approximation is deliberate, trading precision for a single
// coordinate walk per feature. Features without a computable bbox are
// dropped with a warning.
func FilterBBox(feats []Feature, box BBox, logger *slog.Logger) []Feature {
	logger = logging.Default(logger)

	out := feats[:0:0]
	for i, f := range feats {
		fb, err := FeatureBBox(f)
		if err != nil {
			logger.Warn("dropping feature without computable bbox", "index", i, "error", err)
			continue
		}
		if fb.Intersects(box) {
			out = append(out, f)
		}
	}
	return out
}

// FilterProperties narrows features to those matching every predicate.
// Predicate values take three forms:
//   - "contains:<s>"    substring match
//   - patterns with * or ?  wildcard match (translated to a regexp)
//   - anything else     exact match
//
// Property values are compared in their string form. A pattern that
// fails to compile is reported once and matches nothing.
func FilterProperties(feats []Feature, predicates map[string]string) ([]Feature, error) {
	type matcher func(string) bool
	matchers := make(map[string]matcher, len(predicates))

	for key, pattern := range predicates {
		switch {
		case strings.HasPrefix(pattern, "contains:"):
			want := strings.TrimPrefix(pattern, "contains:")
			matchers[key] = func(v string) bool { return strings.Contains(v, want) }
		case strings.ContainsAny(pattern, "*?"):
			re, err := wildcardRegexp(pattern)
			if err != nil {
				return nil, fmt.Errorf("property filter %q: %w", key, err)
			}
			matchers[key] = re.MatchString
		default:
			want := pattern
			matchers[key] = func(v string) bool { return v == want }
		}
	}

	out := feats[:0:0]
	for _, f := range feats {
		ok := true
		for key, match := range matchers {
			v, present := f.Properties[key]
			if !present || !match(stringify(v)) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// wildcardRegexp translates a glob-style pattern (* and ?) into an
// anchored regexp.
func wildcardRegexp(pattern string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, ".*")
	quoted = strings.ReplaceAll(quoted, `\?`, ".")
	return regexp.Compile("^" + quoted + "$")
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
