// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package resolver maps file-name fragments from analyst instructions to a
// single repository path.
package resolver

import (
	"path"
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/types"
)

// DefaultMinSimilarity is the lowest fuzzy stem score accepted as a match.
const DefaultMinSimilarity = 0.6

// DefaultModelsRoot is the directory SQL and YAML candidates must live under.
const DefaultModelsRoot = "models"

// Resolver turns a fragment into one path out of a candidate pool. It holds
// no state between calls and is safe for concurrent use.
type Resolver struct {
	modelsRoot    string
	minSimilarity float64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithModelsRoot restricts SQL and YAML candidates to paths below root.
// An empty root accepts the whole repository.
func WithModelsRoot(root string) Option {
	return func(r *Resolver) {
		r.modelsRoot = strings.Trim(path.Clean("/"+root), "/")
	}
}

// WithMinSimilarity sets the fuzzy-match threshold in [0, 1].
func WithMinSimilarity(v float64) Option {
	return func(r *Resolver) {
		if v >= 0 && v <= 1 {
			r.minSimilarity = v
		}
	}
}

func New(opts ...Option) *Resolver {
	r := &Resolver{
		modelsRoot:    DefaultModelsRoot,
		minSimilarity: DefaultMinSimilarity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// matcher narrows candidates for a fragment. A single result is a match,
// several results are handed to the next matcher, none means the next
// matcher sees the previous candidate set.
type matcher func(fragment string, candidates []string) []string

// Resolve returns the unique path in pool that fragment refers to.
//
// Matching runs exact basename, then suffix, then fuzzy stem. A step that
// finds several candidates hands only those to the following steps, so a
// partial directory in the fragment can break a basename tie. Anything still
// ambiguous at the end is a not-found error naming the candidates.
func (r *Resolver) Resolve(fragment string, pool []string) (string, error) {
	fragment = normalizeFragment(fragment)
	kind, err := types.KindFromPath(fragment)
	if err != nil {
		return "", err
	}

	candidates := r.Pool(kind, pool)
	if len(candidates) == 0 {
		return "", notFound(fragment, nil)
	}

	var ambiguous []string
	for _, m := range []matcher{matchExactBasename, matchSuffix, r.matchFuzzyStem} {
		got := m(fragment, candidates)
		switch len(got) {
		case 0:
			continue
		case 1:
			return got[0], nil
		default:
			candidates = got
			ambiguous = got
		}
	}

	return "", notFound(fragment, ambiguous)
}

// Pool returns the members of all that a fragment of kind may resolve to,
// sorted. SQL and YAML files must sit under the models root. Other kinds
// accept same-kind files anywhere in the repository.
func (r *Resolver) Pool(kind types.Kind, all []string) []string {
	out := make([]string, 0, len(all))
	for _, p := range all {
		p = strings.TrimPrefix(path.Clean("/"+p), "/")
		k, err := types.KindFromPath(p)
		if err != nil || k != kind {
			continue
		}
		if (kind == types.KindSQL || kind == types.KindYAML) && !r.underRoot(p) {
			continue
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (r *Resolver) underRoot(p string) bool {
	if r.modelsRoot == "" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(p), strings.ToLower(r.modelsRoot)+"/")
}

func matchExactBasename(fragment string, candidates []string) []string {
	base := path.Base(fragment)
	var out []string
	for _, c := range candidates {
		if strings.EqualFold(path.Base(c), base) {
			out = append(out, c)
		}
	}
	return out
}

func matchSuffix(fragment string, candidates []string) []string {
	suffix := "/" + strings.ToLower(fragment)
	var out []string
	for _, c := range candidates {
		lc := strings.ToLower(c)
		if lc == strings.ToLower(fragment) || strings.HasSuffix(lc, suffix) {
			out = append(out, c)
		}
	}
	return out
}

// matchFuzzyStem returns every candidate tied for the best stem similarity
// at or above the threshold.
func (r *Resolver) matchFuzzyStem(fragment string, candidates []string) []string {
	want := stem(fragment)
	best := -1.0
	var out []string
	for _, c := range candidates {
		score := Similarity(want, stem(c))
		if score < r.minSimilarity {
			continue
		}
		switch {
		case score > best:
			best = score
			out = []string{c}
		case score == best:
			out = append(out, c)
		}
	}
	return out
}

// Similarity is the Ratcliff/Obershelp ratio of a and b compared rune by
// rune: 2*M/T where M is the number of matching runes and T the total length.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return difflib.NewMatcher(runes(a), runes(b)).Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func stem(p string) string {
	base := path.Base(p)
	return strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
}

func normalizeFragment(fragment string) string {
	f := strings.TrimSpace(fragment)
	f = strings.ReplaceAll(f, "\\", "/")
	f = strings.TrimPrefix(f, "./")
	return strings.TrimPrefix(f, "/")
}

func notFound(fragment string, candidates []string) error {
	if len(candidates) > 1 {
		return mserr.New(mserr.CodeResolverPathNotFound,
			"ambiguous file reference "+fragment+": matches "+strings.Join(candidates, ", "),
			mserr.Field("fragment", fragment),
			mserr.Field("candidates", candidates),
		)
	}
	return mserr.New(mserr.CodeResolverPathNotFound,
		"no file matches "+fragment,
		mserr.Field("fragment", fragment),
	)
}
