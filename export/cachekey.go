package export

import (
	"encoding/json"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/svnlab/easy-file/errors"
)

// CacheMatcher decides whether a prior successful record's artifact can be
// reused for a new registration, based on a task's cache-key expressions.
type CacheMatcher struct {
	logger *zap.SugaredLogger
}

// NewCacheMatcher creates a cache matcher.
func NewCacheMatcher(logger *zap.SugaredLogger) *CacheMatcher {
	return &CacheMatcher{logger: logger.Named("cache")}
}

// Match reports whether the candidate record's stored params agree with the
// current params under every cache-key path.
//
// Rules:
//   - no cache keys: the task code alone identifies the result, match.
//   - unparseable stored params and empty current params: match.
//   - structurally equal raw maps: match without evaluating keys.
//   - otherwise every key path must resolve to equal values in both maps
//     (AND semantics). A resolution error on either side makes the whole
//     candidate a non-match; it is logged, never surfaced.
func (m *CacheMatcher) Match(cacheKeys []string, candidate *Record, current map[string]any) bool {
	if len(cacheKeys) == 0 {
		return true
	}

	original, err := candidate.Params()
	if err != nil {
		m.logger.Debugw("Stored params unparseable, matching only empty requests",
			"record_id", candidate.ID,
			"error", err,
		)
		return len(current) == 0
	}

	if reflect.DeepEqual(original, current) {
		return true
	}

	// The flag only ever goes false; every key is checked.
	matched := true
	for _, key := range cacheKeys {
		origVal, err := resolvePath(original, key)
		if err != nil {
			m.logger.Debugw("Cache key did not resolve in stored params",
				"record_id", candidate.ID,
				"key", key,
				"error", err,
			)
			matched = false
			continue
		}
		curVal, err := resolvePath(current, key)
		if err != nil {
			m.logger.Debugw("Cache key did not resolve in current params",
				"record_id", candidate.ID,
				"key", key,
				"error", err,
			)
			matched = false
			continue
		}
		if !valuesEqual(origVal, curVal) {
			matched = false
		}
	}
	return matched
}

// resolvePath walks a dotted path (e.g. "filter.date.from") through nested
// maps. Only map[string]any nodes can be traversed.
func resolvePath(params map[string]any, path string) (any, error) {
	var current any = params
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, errors.Newf("path %q: segment %q is not an object", path, segment)
		}
		value, ok := node[segment]
		if !ok {
			return nil, errors.Newf("path %q: segment %q missing", path, segment)
		}
		current = value
	}
	return current, nil
}

// valuesEqual compares resolved values. Numbers are normalized through
// JSON so int64(3) and float64(3) from different decoding paths agree.
func valuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}
