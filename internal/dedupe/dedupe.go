// Package dedupe finds and collapses near-duplicate stories by embedding
// similarity. Stories that share a source requirement are never treated as
// duplicates of each other.
package dedupe

import (
	"context"
	"fmt"

	"github.com/dshills/storytrace/internal/embed"
	"github.com/dshills/storytrace/internal/schema"
)

// DefaultThreshold is the cosine similarity at or above which two stories
// with disjoint sources count as duplicates.
const DefaultThreshold = 0.99

// Pair is two stories flagged as duplicates.
type Pair struct {
	A          string  `json:"a"`
	B          string  `json:"b"`
	Similarity float64 `json:"similarity"`
}

// Drop records a story removed in favor of its cluster representative.
type Drop struct {
	StoryID     string  `json:"story_id"`
	KeptID      string  `json:"kept_story_id"`
	ClusterSize int     `json:"cluster_size"`
	Similarity  float64 `json:"similarity"`
	Diff        string  `json:"diff"`
}

// Report is the content of duplicates.json.
type Report struct {
	Threshold float64 `json:"threshold"`
	Pairs     []Pair  `json:"pairs"`
	Dropped   []Drop  `json:"dropped"`
}

// CheckDuplicates returns every pair of stories whose similarity reaches
// threshold and whose source requirement sets are disjoint, in index order.
func CheckDuplicates(ctx context.Context, e embed.Embedder, stories []schema.Story, threshold float64) ([]Pair, error) {
	m, err := newMatrix(ctx, e, stories)
	if err != nil {
		return nil, err
	}
	return m.pairs(threshold), nil
}

// Dedupe clusters linked stories and keeps one representative per cluster:
// the member with the most acceptance criteria, then the longest embedding
// text, then the lowest index. Clusters appear in the order of their first
// member. The input slice is not modified.
func Dedupe(ctx context.Context, e embed.Embedder, stories []schema.Story, threshold float64) ([]schema.Story, []Drop, error) {
	m, err := newMatrix(ctx, e, stories)
	if err != nil {
		return nil, nil, err
	}
	kept, dropped := m.collapse(threshold)
	return kept, dropped, nil
}

// Run performs both operations over a single embedding call.
func Run(ctx context.Context, e embed.Embedder, stories []schema.Story, threshold float64) ([]schema.Story, *Report, error) {
	m, err := newMatrix(ctx, e, stories)
	if err != nil {
		return nil, nil, err
	}
	kept, dropped := m.collapse(threshold)
	return kept, &Report{Threshold: threshold, Pairs: m.pairs(threshold), Dropped: dropped}, nil
}

type matrix struct {
	stories []schema.Story
	vecs    [][]float32
}

func newMatrix(ctx context.Context, e embed.Embedder, stories []schema.Story) (*matrix, error) {
	m := &matrix{stories: stories}
	if len(stories) < 2 {
		return m, nil
	}
	texts := make([]string, len(stories))
	for i := range stories {
		texts[i] = stories[i].EmbeddingText()
	}
	vecs, err := e.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding stories: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding stories: got %d vectors for %d stories", len(vecs), len(texts))
	}
	m.vecs = vecs
	return m, nil
}

// linked reports whether stories i and j are duplicates and their similarity.
// Stories with an empty narrative are never linked.
func (m *matrix) linked(i, j int, threshold float64) (float64, bool) {
	a, b := &m.stories[i], &m.stories[j]
	if a.UserStory == "" || b.UserStory == "" || schema.SharesSource(a, b) {
		return 0, false
	}
	sim := embed.Cosine(m.vecs[i], m.vecs[j])
	return sim, sim >= threshold
}

func (m *matrix) pairs(threshold float64) []Pair {
	out := []Pair{}
	if m.vecs == nil {
		return out
	}
	for i := range m.stories {
		for j := i + 1; j < len(m.stories); j++ {
			if sim, ok := m.linked(i, j, threshold); ok {
				out = append(out, Pair{A: m.stories[i].StoryID, B: m.stories[j].StoryID, Similarity: sim})
			}
		}
	}
	return out
}

func (m *matrix) collapse(threshold float64) ([]schema.Story, []Drop) {
	n := len(m.stories)
	dropped := []Drop{}
	if m.vecs == nil {
		return append([]schema.Story(nil), m.stories...), dropped
	}

	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if _, ok := m.linked(i, j, threshold); ok {
				uf.union(i, j)
			}
		}
	}

	var roots []int
	members := make(map[int][]int)
	for i := 0; i < n; i++ {
		r := uf.find(i)
		if _, seen := members[r]; !seen {
			roots = append(roots, r)
		}
		members[r] = append(members[r], i)
	}

	kept := make([]schema.Story, 0, len(roots))
	for _, r := range roots {
		cluster := members[r]
		rep := m.representative(cluster)
		kept = append(kept, m.stories[rep])
		for _, i := range cluster {
			if i == rep {
				continue
			}
			dropped = append(dropped, Drop{
				StoryID:     m.stories[i].StoryID,
				KeptID:      m.stories[rep].StoryID,
				ClusterSize: len(cluster),
				Similarity:  embed.Cosine(m.vecs[i], m.vecs[rep]),
				Diff:        WordDiff(m.stories[rep].UserStory, m.stories[i].UserStory),
			})
		}
	}
	return kept, dropped
}

func (m *matrix) representative(cluster []int) int {
	best := cluster[0]
	bestAC, bestLen := m.richness(best)
	for _, i := range cluster[1:] {
		ac, l := m.richness(i)
		if ac > bestAC || (ac == bestAC && l > bestLen) {
			best, bestAC, bestLen = i, ac, l
		}
	}
	return best
}

func (m *matrix) richness(i int) (int, int) {
	s := &m.stories[i]
	return len(s.AcceptanceCriteria), len(s.EmbeddingText())
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
