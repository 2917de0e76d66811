package dedupe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agenthands/moralgraph/internal/core/cluster"
	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/llm"
)

// ContextLabels returns the distinct raw context labels of a generation
// in sorted order, and how many raw edges use each one.
func ContextLabels(cards []model.RawCard, edges []model.RawEdge) ([]string, map[string]int) {
	counts := make(map[string]int)
	for _, e := range edges {
		counts[e.ContextName]++
	}
	for _, c := range cards {
		if c.ChoiceContext != "" {
			if _, ok := counts[c.ChoiceContext]; !ok {
				counts[c.ChoiceContext] = 0
			}
		}
	}
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels, counts
}

// ErrContextsUnresolved is returned when the labels could not be grouped.
// Nothing is written for the run, so the next pass tries again.
var ErrContextsUnresolved = errors.New("context labels could not be grouped")

// DedupeContexts maps every label onto a canonical label and upserts one
// CanonicalContext per group. Every canonical label maps to itself. The
// first mapping computed for a run is stored and reused by later passes.
func (d *Deduplicator) DedupeContexts(ctx context.Context, runID int64, labels []string, counts map[string]int) (model.ContextMapping, error) {
	mapping, err := d.storedMapping(ctx, runID)
	if err != nil {
		return nil, err
	}
	reused := len(mapping) > 0
	if !reused {
		if mapping, err = d.groupContexts(ctx, labels, counts); err != nil {
			return nil, err
		}
	}
	for _, l := range labels {
		if _, ok := mapping[l]; !ok {
			mapping[l] = l
		}
	}
	if err := d.Store.SaveContextAliases(ctx, mapping.Aliases(runID)); err != nil {
		return nil, fmt.Errorf("failed to save context aliases: %w", err)
	}

	names := mapping.CanonicalNames()
	sort.Strings(names)
	for _, name := range names {
		if err := d.Store.UpsertCanonicalContext(ctx, model.CanonicalContext{Name: name, DeduplicationID: runID}); err != nil {
			return nil, fmt.Errorf("failed to upsert canonical context %q: %w", name, err)
		}
	}
	d.log.Info("deduplicated contexts", "run_id", runID, "labels", len(labels), "canonical", len(names),
		"strategy", d.Options.ContextStrategy, "reused", reused)
	return mapping, nil
}

func (d *Deduplicator) storedMapping(ctx context.Context, runID int64) (model.ContextMapping, error) {
	aliases, err := d.Store.ContextAliases(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load context aliases: %w", err)
	}
	mapping := make(model.ContextMapping, len(aliases))
	for _, a := range aliases {
		mapping[a.RawName] = a.CanonicalName
	}
	return mapping, nil
}

func (d *Deduplicator) groupContexts(ctx context.Context, labels []string, counts map[string]int) (model.ContextMapping, error) {
	var (
		groups [][]string
		err    error
	)
	switch d.Options.ContextStrategy {
	case StrategyLLM:
		groups, err = d.synonymGroups(ctx, labels)
	default:
		groups, err = d.embeddingGroups(ctx, labels, counts)
	}
	if err != nil {
		return nil, err
	}

	mapping := make(model.ContextMapping, len(labels))
	for _, g := range groups {
		for _, l := range g {
			mapping[l] = g[0]
		}
	}
	return mapping, nil
}

// embeddingGroups clusters label embeddings. Each group is returned with
// its canonical label first: the label most used by raw edges, ties going
// to the lexicographically smallest.
func (d *Deduplicator) embeddingGroups(ctx context.Context, labels []string, counts map[string]int) ([][]string, error) {
	type labelVec struct {
		label string
		vec   []float32
	}
	vecs := make([]labelVec, 0, len(labels))
	for _, l := range labels {
		label := l
		v, err := d.embed(ctx, "embed_context", func(ctx context.Context) ([]float32, error) {
			return d.Embeddings.EmbedText(ctx, label)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: embedding %q: %v", ErrContextsUnresolved, label, err)
		}
		vecs = append(vecs, labelVec{label: label, vec: v})
	}

	clusters := cluster.DBSCAN(vecs, func(l labelVec) []float32 { return l.vec },
		d.Options.ContextEps, d.Options.ContextMinSamples)

	groups := make([][]string, 0, len(clusters))
	for _, c := range clusters {
		members := make([]string, 0, len(c))
		for _, l := range c {
			members = append(members, l.label)
		}
		sort.Slice(members, func(i, j int) bool {
			if counts[members[i]] != counts[members[j]] {
				return counts[members[i]] > counts[members[j]]
			}
			return members[i] < members[j]
		})
		groups = append(groups, members)
	}
	return groups, nil
}

// synonymGroups asks the model to group labels. Labels the model leaves
// out stay on their own.
func (d *Deduplicator) synonymGroups(ctx context.Context, labels []string) ([][]string, error) {
	if len(labels) < 2 {
		return nil, nil
	}
	req := llm.Request{
		System:   d.Options.Prompts.ContextSynonyms,
		User:     synonymsMessage(labels),
		Function: GroupSynonymsFunction,
	}

	var proposed []model.SynonymGroup
	err := d.complete(ctx, GroupSynonymsFunction.Name, req, func(resp *llm.Response) error {
		out, err := llm.Decode[model.SynonymGroups](resp, GroupSynonymsFunction)
		if errors.Is(err, llm.ErrNoFunctionCall) && strings.TrimSpace(resp.Text) != "" {
			proposed = ParseSynonymText(resp.Text)
			return nil
		}
		if err != nil {
			return err
		}
		proposed = out.Groups
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrContextsUnresolved, err)
	}
	return ValidateGroups(proposed, labels), nil
}

// ValidateGroups drops unknown labels and labels already claimed by an
// earlier group. The canonical label is moved first; when it did not
// survive, the last surviving member takes its place.
func ValidateGroups(proposed []model.SynonymGroup, labels []string) [][]string {
	known := make(map[string]bool, len(labels))
	for _, l := range labels {
		known[l] = true
	}
	claimed := make(map[string]bool)

	var groups [][]string
	for _, g := range proposed {
		var members []string
		for _, m := range g.Members {
			m = strings.TrimSpace(m)
			if !known[m] || claimed[m] {
				continue
			}
			claimed[m] = true
			members = append(members, m)
		}
		if len(members) == 0 {
			continue
		}

		canonical := members[len(members)-1]
		for _, m := range members {
			if m == strings.TrimSpace(g.Canonical) {
				canonical = m
			}
		}
		ordered := []string{canonical}
		for _, m := range members {
			if m != canonical {
				ordered = append(ordered, m)
			}
		}
		groups = append(groups, ordered)
	}
	return groups
}

// ParseSynonymText reads the plain text format: groups separated by blank
// lines, one label per line, the last line of a group being its canonical
// label.
func ParseSynonymText(text string) []model.SynonymGroup {
	var (
		groups  []model.SynonymGroup
		members []string
	)
	flush := func() {
		if len(members) > 0 {
			groups = append(groups, model.SynonymGroup{
				Canonical: members[len(members)-1],
				Members:   members,
			})
		}
		members = nil
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "- "))
		if line == "" {
			flush()
			continue
		}
		members = append(members, line)
	}
	flush()
	return groups
}
