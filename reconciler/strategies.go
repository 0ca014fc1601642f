package reconciler

import "context"

// MatchByKey matches the first entity whose key equals the spec's key.
func MatchByKey[S, E any](specKey func(S) string, entityKey func(E) string) Matcher[S, E] {
	return func(spec S, entities []E) (E, bool) {
		want := specKey(spec)
		for _, e := range entities {
			if entityKey(e) == want {
				return e, true
			}
		}
		var zero E
		return zero, false
	}
}

// MatchFirst tries matchers in order; the first that matches wins.
func MatchFirst[S, E any](matchers ...Matcher[S, E]) Matcher[S, E] {
	return func(spec S, entities []E) (E, bool) {
		for _, m := range matchers {
			if e, ok := m(spec, entities); ok {
				return e, true
			}
		}
		var zero E
		return zero, false
	}
}

// RecreateOnConflict deletes by name before the single create retry.
func RecreateOnConflict[S any](deleteByName func(ctx context.Context, spec S) ([]string, error)) ConflictStrategy[S] {
	return func(ctx context.Context, spec S, _ error) ([]string, error) {
		return deleteByName(ctx, spec)
	}
}

// CollidesOn reports entities sharing one key with the spec while
// differing on another, e.g. same uid under a different name.
func CollidesOn[S, E any](specShared func(S) string, entityShared func(E) string, specOwn func(S) string, entityOwn func(E) string) ConflictFilter[S, E] {
	return func(spec S, e E) bool {
		return entityShared(e) == specShared(spec) && entityOwn(e) != specOwn(spec)
	}
}
