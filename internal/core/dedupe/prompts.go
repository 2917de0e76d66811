package dedupe

import (
	"encoding/json"

	"github.com/agenthands/moralgraph/internal/llm"
)

const guidelines = `# Guidelines
Two or more values cards are about the same value if:
- A user that articulated one of the cards would feel like the other cards in the cluster capture what they cared about *fully*.
- Someone instructed to pay attention to one set of attention policies would pay attention to exactly the same things as someone instructed to pay attention to the other set.
- Any difference in attention policies between the cards would be acknowledged as an oversight or a mistake, and both cards should be updated to reflect the same attention policies.
- The cards are formulated using roughly the same level of granularity and detail.

Only if the cards pass all of these criteria can they be considered to be about the same value.`

const attentionalPolicyDefinition = `# Attentional Policies Definition
Attentional policies are policies for attending to certain things when making a meaningful choices, like responding to the question at hand. When we are faced with a meaningful choice, we often attend to certain things before forming our set of options. This option set formation is itself an expression of our values. For example, at a dinner conversation, I might want to live with a certain kind of playfulness. Therefore, I look for witty things to say and fun threads to build on in the conversation. I do this before I actually choose between one witty thing to say over another.

Here are some guidelines for what makes a good set of attentional policies:

- **All policies should be clear enough that a person in the right situation would know what to attend to.**
- **Make sure policies aren't vague or abstract.** Use precise, but general, instructions that almost anyone could see how to follow with their attention. Avoid abstractions like "LOVE and OPENNESS which emerges". Instead, say "FEELINGS in my chest that indicate..." or "MOMENTS where a new kind of relating opens up". Don't use the word "meaningful" itself, or synonyms like "deep".
- **Start with plural noun phrases.** Policies should start with a capitalized phrase that's a kind of thing to attend to ("MOMENTS", "SENSATIONS", "CHOICES", "PEOPLE", etc), followed by a qualifying phrase that provides more detail.
- **Use general words.** For instance, prefer "strangers" to "customers" when either would work. Prefer "objects" to "trees". Find the level of specificity that's most general while still being clear. Remove names and irrelevant details.
- **All policies should work together as part of a 'source of meaning'.** A "source of meaning" is a way of living that is important to someone. Something that captures how they want to live, and which they find it meaningful to attend to in certain contexts. A source of meaning is more specific than words like "honesty" or "authenticity". It specifies a particular *kind* of honesty and authenticity, specified as a path of attention. A sources of meaning also isn't just something someone likes -- it opens a space of possibility for them, rather than just satisfying their preference.`

const DedupePrompt = `You are given a values cards and a list of other canonical values cards. Determine if the value in the input values card is already represented by one of the canonical values. If so, return the id of the canonical values card that represents the source of meaning.

` + guidelines

const BestCardPrompt = `You will be provided with a list of "values cards", all representing the same value. Your task is to return the "id" of the "values card" which has the best attentional policies, according to the guidelines below.

` + attentionalPolicyDefinition

const ContextSynonymsPrompt = `You will be given a list of short descriptions of choices a person might face ("contexts"). Some of them describe the same kind of choice in different words.

Group the contexts that are synonyms of each other. For every group, pick the member that states the choice most clearly and generally as its canonical context. Only use contexts from the list, verbatim. Contexts without a synonym may be left out.`

var DedupeFunction = &llm.FunctionSchema{
	Name:        "dedupe",
	Description: "Return the id of the canonical values card that is a duplicate value",
	Properties: []llm.Property{{
		Name:        "matching_id",
		Type:        "integer",
		Description: "The id of the canonical values card that is about the same source of meaning as the provided non-canonical values card. Should only be included if such a card exists.",
	}},
}

var BestCardFunction = &llm.FunctionSchema{
	Name:        "best_card",
	Description: "Return the best formulated values card from a list of values cards.",
	Properties: []llm.Property{{
		Name:        "best_id",
		Type:        "integer",
		Description: "The id of the values card that is best formulated according to the guidelines.",
	}},
	Required: []string{"best_id"},
}

var GroupSynonymsFunction = &llm.FunctionSchema{
	Name:        "group_synonyms",
	Description: "Return groups of contexts that describe the same kind of choice.",
	Properties: []llm.Property{{
		Name: "groups",
		Type: "array",
		Items: &llm.Property{
			Type: "object",
			Properties: []llm.Property{
				{Name: "canonical", Type: "string", Description: "The member that best describes the choice."},
				{Name: "members", Type: "array", Items: &llm.Property{Type: "string"}},
			},
			Required: []string{"canonical", "members"},
		},
	}},
	Required: []string{"groups"},
}

// Prompts holds the system prompts in use. Empty fields fall back to the
// built-in ones.
type Prompts struct {
	Dedupe          string
	BestCard        string
	ContextSynonyms string
}

func (p Prompts) withDefaults() Prompts {
	if p.Dedupe == "" {
		p.Dedupe = DedupePrompt
	}
	if p.BestCard == "" {
		p.BestCard = BestCardPrompt
	}
	if p.ContextSynonyms == "" {
		p.ContextSynonyms = ContextSynonymsPrompt
	}
	return p
}

type promptCard struct {
	ID       int64    `json:"id"`
	Policies []string `json:"policies"`
}

type dedupeInput struct {
	Input struct {
		Policies []string `json:"policies"`
	} `json:"input_values_card"`
	Canonical []promptCard `json:"canonical_values_cards"`
}

func dedupeMessage(policies []string, candidates []promptCard) string {
	var in dedupeInput
	in.Input.Policies = policies
	in.Canonical = candidates
	b, _ := json.Marshal(in)
	return string(b)
}

func bestCardMessage(cards []promptCard) string {
	b, _ := json.Marshal(cards)
	return string(b)
}

func synonymsMessage(labels []string) string {
	b, _ := json.Marshal(map[string][]string{"contexts": labels})
	return string(b)
}
