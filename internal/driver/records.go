package driver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/moralgraph/internal/core/model"
)

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStrings(v any) []string {
	switch xs := v.(type) {
	case []string:
		return xs
	case []any:
		out := make([]string, 0, len(xs))
		for _, x := range xs {
			out = append(out, asString(x))
		}
		return out
	}
	return nil
}

func asFloat32s(v any) []float32 {
	switch xs := v.(type) {
	case []float32:
		return xs
	case []float64:
		out := make([]float32, len(xs))
		for i, x := range xs {
			out[i] = float32(x)
		}
		return out
	case []any:
		out := make([]float32, 0, len(xs))
		for _, x := range xs {
			f, _ := x.(float64)
			out = append(out, float32(f))
		}
		return out
	}
	return nil
}

// Timestamps are stored as unix nanoseconds.
func asTime(v any) time.Time {
	n := asInt64(v)
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func float64s(v []float32) []float64 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Edge metadata is stored as a JSON string property.
func encodeMetadata(m model.EdgeMetadata) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode edge metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(v any) model.EdgeMetadata {
	s := asString(v)
	if s == "" {
		return nil
	}
	var m model.EdgeMetadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func get(rec *neo4j.Record, key string) any {
	v, _ := rec.Get(key)
	return v
}

func props(rec *neo4j.Record, key string) map[string]any {
	if n, ok := get(rec, key).(neo4j.Node); ok {
		return n.Props
	}
	return nil
}

func rawCardFrom(p map[string]any) model.RawCard {
	return model.RawCard{
		ID:            asInt64(p["id"]),
		Title:         asString(p["title"]),
		Policies:      asStrings(p["policies"]),
		GenerationID:  asInt64(p["generation_id"]),
		ChoiceContext: asString(p["choice_context"]),
		Embedding:     asFloat32s(p["embedding"]),
		CreatedAt:     asTime(p["created_at"]),
	}
}

func canonicalCardFrom(p map[string]any) model.CanonicalCard {
	return model.CanonicalCard{
		ID:              asInt64(p["id"]),
		Title:           asString(p["title"]),
		Policies:        asStrings(p["policies"]),
		DeduplicationID: asInt64(p["deduplication_id"]),
		Embedding:       asFloat32s(p["embedding"]),
		CreatedAt:       asTime(p["created_at"]),
	}
}

func runFrom(p map[string]any) model.DeduplicationRun {
	r := model.DeduplicationRun{
		ID:           asInt64(p["id"]),
		GenerationID: asInt64(p["generation_id"]),
		State:        model.RunState(asString(p["state"])),
		CreatedAt:    asTime(p["created_at"]),
	}
	if t := asTime(p["finished_at"]); !t.IsZero() {
		r.FinishedAt = &t
	}
	return r
}

func rawEdgeFrom(rec *neo4j.Record) model.RawEdge {
	return model.RawEdge{
		ID:           asInt64(get(rec, "id")),
		FromID:       asInt64(get(rec, "from_id")),
		ToID:         asInt64(get(rec, "to_id")),
		ContextName:  asString(get(rec, "context_name")),
		Metadata:     decodeMetadata(get(rec, "metadata")),
		GenerationID: asInt64(get(rec, "generation_id")),
	}
}

func canonicalEdgeFrom(rec *neo4j.Record, runID int64) model.CanonicalEdge {
	return model.CanonicalEdge{
		ID:              asInt64(get(rec, "id")),
		FromID:          asInt64(get(rec, "from_id")),
		ToID:            asInt64(get(rec, "to_id")),
		ContextName:     asString(get(rec, "context_name")),
		Metadata:        decodeMetadata(get(rec, "metadata")),
		DeduplicationID: runID,
	}
}

func edgeLinkFrom(p map[string]any) model.EdgeLink {
	return model.EdgeLink{
		UUID:                 asString(p["uuid"]),
		RawEdgeID:            asInt64(p["raw_edge_id"]),
		CanonicalEdgeID:      asInt64(p["canonical_edge_id"]),
		RawContextName:       asString(p["raw_context_name"]),
		CanonicalContextName: asString(p["canonical_context_name"]),
		DeduplicationID:      asInt64(p["deduplication_id"]),
	}
}
