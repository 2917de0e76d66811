package driver

var IndexQueries = []string{
	"CREATE INDEX ON :Generation(id);",
	"CREATE INDEX ON :ValuesCard(id);",
	"CREATE INDEX ON :ValuesCard(generation_id);",
	"CREATE INDEX ON :DeduplicationRun(id);",
	"CREATE INDEX ON :DeduplicationRun(state);",
	"CREATE INDEX ON :CanonicalCard(id);",
	"CREATE INDEX ON :CanonicalCard(deduplication_id);",
	"CREATE INDEX ON :CanonicalContext(deduplication_id);",
	"CREATE INDEX ON :ContextAlias(deduplication_id);",
	"CREATE INDEX ON :EdgeLink(deduplication_id);",
	"CREATE INDEX ON :Counter(name);",
}

const (
	NextIDQuery = `
		MERGE (c:Counter {name: $name})
		ON CREATE SET c.value = 0
		SET c.value = c.value + 1
		RETURN c.value AS id
	`

	CreateGenerationQuery = `
		CREATE (g:Generation {id: $id, created_at: $created_at})
		RETURN g.id AS id
	`

	LatestGenerationQuery = `
		MATCH (g:Generation)
		RETURN g.id AS id
		ORDER BY g.created_at DESC, g.id DESC
		LIMIT 1
	`

	CreateRawCardQuery = `
		MATCH (g:Generation {id: $generation_id})
		CREATE (c:ValuesCard {
			id: $id,
			title: $title,
			policies: $policies,
			generation_id: $generation_id,
			choice_context: $choice_context,
			embedding: $embedding,
			created_at: $created_at
		})
		RETURN c
	`

	CreateRawEdgeQuery = `
		MATCH (a:ValuesCard {id: $from_id}), (b:ValuesCard {id: $to_id})
		CREATE (a)-[e:EDGE {
			id: $id,
			context_name: $context_name,
			metadata: $metadata,
			generation_id: $generation_id
		}]->(b)
		RETURN e.id AS id
	`

	GetRawCardsQuery = `
		MATCH (c:ValuesCard {generation_id: $generation_id})
		RETURN c
		ORDER BY c.id
	`

	SetRawCardEmbeddingQuery = `
		MATCH (c:ValuesCard {id: $id})
		SET c.embedding = $embedding
		RETURN c.id AS id
	`

	GetUnlinkedRawCardsQuery = `
		MATCH (c:ValuesCard {generation_id: $generation_id})
		OPTIONAL MATCH (c)-[l:DEDUPLICATED_TO {deduplication_id: $deduplication_id}]->(:CanonicalCard)
		WITH c, count(l) AS links
		WHERE links = 0
		RETURN c
		ORDER BY c.id
	`

	GetRawEdgesQuery = `
		MATCH (a:ValuesCard)-[e:EDGE {generation_id: $generation_id}]->(b:ValuesCard)
		RETURN e.id AS id, a.id AS from_id, b.id AS to_id,
			e.context_name AS context_name, e.metadata AS metadata,
			e.generation_id AS generation_id
		ORDER BY id
	`

	GetUnlinkedRawEdgesQuery = `
		MATCH (a:ValuesCard)-[e:EDGE {generation_id: $generation_id}]->(b:ValuesCard)
		OPTIONAL MATCH (l:EdgeLink {raw_edge_id: e.id, deduplication_id: $deduplication_id})
		WITH a, b, e, count(l) AS links
		WHERE links = 0
		RETURN e.id AS id, a.id AS from_id, b.id AS to_id,
			e.context_name AS context_name, e.metadata AS metadata,
			e.generation_id AS generation_id
		ORDER BY id
	`

	// CreateRunQuery returns no row while another run is IN_PROGRESS.
	CreateRunQuery = `
		OPTIONAL MATCH (active:DeduplicationRun {state: 'IN_PROGRESS'})
		WITH active
		WHERE active IS NULL
		MERGE (c:Counter {name: 'deduplication_run'})
		ON CREATE SET c.value = 0
		SET c.value = c.value + 1
		CREATE (r:DeduplicationRun {
			id: c.value,
			generation_id: $generation_id,
			state: 'IN_PROGRESS',
			created_at: $created_at
		})
		RETURN r
	`

	GetActiveRunQuery = `
		MATCH (r:DeduplicationRun {state: 'IN_PROGRESS'})
		RETURN r
		ORDER BY r.id
		LIMIT 1
	`

	FinishRunQuery = `
		MATCH (r:DeduplicationRun {id: $id})
		SET r.state = 'FINISHED',
			r.finished_at = coalesce(r.finished_at, $finished_at)
		RETURN r.id AS id
	`

	GetRunQuery = `
		MATCH (r:DeduplicationRun {id: $id})
		RETURN r
	`

	GetRunsQuery = `
		MATCH (r:DeduplicationRun)
		RETURN r
		ORDER BY r.id
	`

	GetLatestFinishedRunQuery = `
		MATCH (r:DeduplicationRun {state: 'FINISHED'})
		RETURN r
		ORDER BY r.id DESC
		LIMIT 1
	`

	GetCanonicalCardsQuery = `
		MATCH (c:CanonicalCard {deduplication_id: $deduplication_id})
		WHERE size($ids) = 0 OR c.id IN $ids
		OPTIONAL MATCH (c)-[:IN_CONTEXT]->(x:CanonicalContext {name: $context_name, deduplication_id: $deduplication_id})
		WITH c, count(x) AS hits
		WHERE $context_name = '' OR hits > 0
		RETURN c
		ORDER BY c.id
	`

	CreateCanonicalCardQuery = `
		MATCH (r:DeduplicationRun {id: $deduplication_id})
		CREATE (c:CanonicalCard {
			id: $id,
			title: $title,
			policies: $policies,
			deduplication_id: $deduplication_id,
			embedding: $embedding,
			created_at: $created_at
		})
		RETURN c
	`

	GetCanonicalCardQuery = `
		MATCH (c:CanonicalCard {id: $id, deduplication_id: $deduplication_id})
		RETURN c
	`

	GetCanonicalCardForRawQuery = `
		MATCH (:ValuesCard {id: $raw_card_id})-[:DEDUPLICATED_TO {deduplication_id: $deduplication_id}]->(c:CanonicalCard)
		RETURN c
		ORDER BY c.id
		LIMIT 1
	`

	UpsertCardLinkQuery = `
		MATCH (v:ValuesCard {id: $raw_card_id}), (c:CanonicalCard {id: $canonical_card_id})
		MERGE (v)-[:DEDUPLICATED_TO {deduplication_id: $deduplication_id}]->(c)
		RETURN c.id AS id
	`

	GetCardLinksQuery = `
		MATCH (v:ValuesCard)-[:DEDUPLICATED_TO {deduplication_id: $deduplication_id}]->(c:CanonicalCard)
		RETURN v.id AS raw_card_id, c.id AS canonical_card_id
		ORDER BY raw_card_id, canonical_card_id
	`

	MergeCardLinksQuery = `
		MATCH (keep:CanonicalCard {id: $keep}), (drop:CanonicalCard {id: $drop})
		MATCH (v:ValuesCard)-[l:DEDUPLICATED_TO {deduplication_id: $deduplication_id}]->(drop)
		MERGE (v)-[:DEDUPLICATED_TO {deduplication_id: $deduplication_id}]->(keep)
		DELETE l
	`

	MergeCardContextsQuery = `
		MATCH (keep:CanonicalCard {id: $keep}), (drop:CanonicalCard {id: $drop})
		MATCH (drop)-[r:IN_CONTEXT {deduplication_id: $deduplication_id}]->(x:CanonicalContext)
		MERGE (keep)-[:IN_CONTEXT {deduplication_id: $deduplication_id}]->(x)
		DELETE r
	`

	// Outgoing edges of drop, self-loops included, move onto keep. Edge
	// links follow the edge that survives the collapse.
	MergeOutgoingEdgesQuery = `
		MATCH (keep:CanonicalCard {id: $keep}), (drop:CanonicalCard {id: $drop})
		MATCH (drop)-[e:UPGRADES_TO {deduplication_id: $deduplication_id}]->(t:CanonicalCard)
		WITH keep, e, CASE WHEN t.id = $drop THEN keep ELSE t END AS target
		MERGE (keep)-[n:UPGRADES_TO {context_name: e.context_name, deduplication_id: $deduplication_id}]->(target)
		ON CREATE SET n.id = e.id, n.metadata = e.metadata
		WITH e, n
		OPTIONAL MATCH (l:EdgeLink {canonical_edge_id: e.id, deduplication_id: $deduplication_id})
		WITH e, n, collect(l) AS links
		FOREACH (x IN links | SET x.canonical_edge_id = n.id)
		DELETE e
	`

	MergeIncomingEdgesQuery = `
		MATCH (keep:CanonicalCard {id: $keep}), (drop:CanonicalCard {id: $drop})
		MATCH (s:CanonicalCard)-[e:UPGRADES_TO {deduplication_id: $deduplication_id}]->(drop)
		MERGE (s)-[n:UPGRADES_TO {context_name: e.context_name, deduplication_id: $deduplication_id}]->(keep)
		ON CREATE SET n.id = e.id, n.metadata = e.metadata
		WITH e, n
		OPTIONAL MATCH (l:EdgeLink {canonical_edge_id: e.id, deduplication_id: $deduplication_id})
		WITH e, n, collect(l) AS links
		FOREACH (x IN links | SET x.canonical_edge_id = n.id)
		DELETE e
	`

	DeleteCanonicalCardQuery = `
		MATCH (c:CanonicalCard {id: $id, deduplication_id: $deduplication_id})
		DETACH DELETE c
	`

	UpsertCanonicalContextQuery = `
		MERGE (x:CanonicalContext {name: $name, deduplication_id: $deduplication_id})
		RETURN x.name AS name
	`

	GetCanonicalContextsQuery = `
		MATCH (x:CanonicalContext {deduplication_id: $deduplication_id})
		RETURN x.name AS name
		ORDER BY name
	`

	SaveContextAliasesQuery = `
		UNWIND $aliases AS a
		MERGE (x:ContextAlias {raw_name: a.raw_name, deduplication_id: a.deduplication_id})
		ON CREATE SET x.canonical_name = a.canonical_name
	`

	GetContextAliasesQuery = `
		MATCH (x:ContextAlias {deduplication_id: $deduplication_id})
		RETURN x.raw_name AS raw_name, x.canonical_name AS canonical_name
		ORDER BY raw_name
	`

	UpsertCardContextQuery = `
		MATCH (c:CanonicalCard {id: $canonical_card_id})
		MERGE (x:CanonicalContext {name: $context_name, deduplication_id: $deduplication_id})
		MERGE (c)-[:IN_CONTEXT {deduplication_id: $deduplication_id}]->(x)
		RETURN c.id AS id
	`

	GetCardContextsQuery = `
		MATCH (c:CanonicalCard)-[:IN_CONTEXT {deduplication_id: $deduplication_id}]->(x:CanonicalContext)
		RETURN c.id AS canonical_card_id, x.name AS context_name
		ORDER BY canonical_card_id, context_name
	`

	UpsertCanonicalEdgeQuery = `
		MATCH (a:CanonicalCard {id: $from_id}), (b:CanonicalCard {id: $to_id})
		MERGE (a)-[e:UPGRADES_TO {context_name: $context_name, deduplication_id: $deduplication_id}]->(b)
		ON CREATE SET e.id = $id, e.metadata = $metadata
		RETURN e.id AS id, a.id AS from_id, b.id AS to_id,
			e.context_name AS context_name, e.metadata AS metadata
	`

	GetCanonicalEdgesQuery = `
		MATCH (a:CanonicalCard)-[e:UPGRADES_TO {deduplication_id: $deduplication_id}]->(b:CanonicalCard)
		WHERE $context_name = '' OR e.context_name = $context_name
		RETURN e.id AS id, a.id AS from_id, b.id AS to_id,
			e.context_name AS context_name, e.metadata AS metadata
		ORDER BY id
	`

	UpsertEdgeLinkQuery = `
		MERGE (l:EdgeLink {raw_edge_id: $raw_edge_id, deduplication_id: $deduplication_id})
		ON CREATE SET l.uuid = $uuid,
			l.canonical_edge_id = $canonical_edge_id,
			l.raw_context_name = $raw_context_name,
			l.canonical_context_name = $canonical_context_name
		RETURN l.uuid AS uuid
	`

	GetEdgeLinksQuery = `
		MATCH (l:EdgeLink {deduplication_id: $deduplication_id})
		RETURN l
		ORDER BY l.raw_edge_id
	`
)
