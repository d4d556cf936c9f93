package domain

import "strings"

// DimensionKey identifies one of the five fixed DRAFT dimensions.
type DimensionKey string

const (
	DimDefine    DimensionKey = "D"
	DimRules     DimensionKey = "R"
	DimArtifacts DimensionKey = "A"
	DimFlex      DimensionKey = "F"
	DimTest      DimensionKey = "T"
)

// Dimensions lists every dimension in declaration order.
var Dimensions = []DimensionKey{DimDefine, DimRules, DimArtifacts, DimFlex, DimTest}

// FieldSpec is one fixed intake question.
type FieldSpec struct {
	Key      string
	Question string
	// Enrichment is answer-shaped text appended to the question before embedding.
	Enrichment string
	// Keywords drive the no-backend heuristic assessment.
	Keywords []string
	// Scaffold is the static suggestion template; empty means none.
	Scaffold string
}

// DimensionSpec describes a dimension and its ordered fields.
type DimensionSpec struct {
	Key       DimensionKey
	Name      string
	Mandatory bool
	// ScreenQuestion is asked when deciding applicability; empty for mandatory dimensions.
	ScreenQuestion string
	// ScreenKeywords decide applicability when no oracle is configured.
	ScreenKeywords []string
	Fields         []FieldSpec
}

var taxonomy = map[DimensionKey]DimensionSpec{
	DimDefine: {
		Key:       DimDefine,
		Name:      "Define (Existence & ROI)",
		Mandatory: true,
		Fields: []FieldSpec{
			{
				Key:        "D1",
				Question:   "What exactly is being created?",
				Enrichment: "We are building a product, system, tool, service, application, dashboard, platform, engine, pipeline",
				Keywords:   []string{"building", "creating", "system", "tool", "service", "product"},
				Scaffold:   "Based on '%s...', this creates [specific deliverable].",
			},
			{
				Key:        "D2",
				Question:   "What domain does it belong to?",
				Enrichment: "This belongs to the domain of governance, security, data, AI, infrastructure, compliance, operations",
				Keywords:   []string{"domain", "area", "scope", "field"},
			},
			{
				Key:        "D3",
				Question:   "What fails without it?",
				Enrichment: "Without this, the following would fail or be blocked: downstream systems depend on this component",
				Keywords:   []string{"without", "fail", "break", "depend", "block", "need"},
				Scaffold:   "If this didn't exist, what downstream work would be blocked?",
			},
			{
				Key:        "D4",
				Question:   "Replacement test — what existing thing could serve?",
				Enrichment: "The existing alternatives include current solutions, workarounds, and replacements that could serve",
				Keywords:   []string{"alternative", "replace", "existing", "instead", "workaround"},
			},
			{
				Key:        "D5",
				Question:   "What are the explicit non-goals?",
				Enrichment: "This is explicitly not about the following non-goals and out of scope items we will exclude",
				Keywords:   []string{"not about", "non-goal", "exclude", "out of scope", "won't"},
				Scaffold:   "Non-goals prevent scope creep: 'This does NOT include [X].'",
			},
		},
	},
	DimRules: {
		Key:            DimRules,
		Name:           "Rules (Operation & Limits)",
		ScreenQuestion: "Does this task involve delegated decisions, authority, or operational limits?",
		ScreenKeywords: []string{"authority", "decision", "permission", "limit", "allowed", "forbidden"},
		Fields: []FieldSpec{
			{
				Key:        "R1",
				Question:   "Who is the human authority source?",
				Enrichment: "The human authority and decision maker responsible for approving this is the founder, lead, manager",
				Keywords:   []string{"authority", "owner", "decision maker", "approve", "responsible"},
				Scaffold:   "Who is the human decision-maker?",
			},
			{
				Key:        "R2",
				Question:   "What decisions is this allowed to make?",
				Enrichment: "This system is allowed and permitted to perform the following authorized operations and actions",
				Keywords:   []string{"allowed", "permitted", "can do", "authorized"},
			},
			{
				Key:        "R3",
				Question:   "What decisions are forbidden?",
				Enrichment: "This system is forbidden and prohibited from performing the following restricted actions",
				Keywords:   []string{"forbidden", "prohibited", "cannot", "must not", "never"},
			},
			{
				Key:        "R4",
				Question:   "What are the stop conditions (need >= 3)?",
				Enrichment: "The system must stop and halt when these abort conditions and safety limits are reached",
				Keywords:   []string{"stop", "halt", "abort", "limit", "condition"},
				Scaffold:   "List 3+ stop conditions: 'STOP if scope expands beyond [X].'",
			},
			{
				Key:        "R5",
				Question:   "What interfaces does it interact with?",
				Enrichment: "This interfaces and connects with the following APIs, systems, integrations, and services",
				Keywords:   []string{"interface", "api", "connect", "integrate", "interact"},
			},
		},
	},
	DimArtifacts: {
		Key:            DimArtifacts,
		Name:           "Artifacts (Inputs & Outputs)",
		ScreenQuestion: "Does this task consume or produce specific artifacts (files, data, outputs)?",
		ScreenKeywords: []string{"file", "output", "input", "document", "data", "artifact", "create"},
		Fields: []FieldSpec{
			{
				Key:        "A1",
				Question:   "What inputs are allowed?",
				Enrichment: "The system accepts and receives the following inputs: data, files, parameters, requests, queries",
				Keywords:   []string{"input", "accept", "receive", "data", "file"},
			},
			{
				Key:        "A2",
				Question:   "What inputs are forbidden?",
				Enrichment: "The system must reject and block the following forbidden and invalid inputs",
				Keywords:   []string{"reject", "block", "invalid", "forbidden input"},
			},
			{
				Key:        "A3",
				Question:   "What outputs are allowed?",
				Enrichment: "The system produces and generates the following outputs: responses, files, reports, artifacts",
				Keywords:   []string{"output", "produce", "generate", "return", "response"},
			},
			{
				Key:        "A4",
				Question:   "What outputs are forbidden?",
				Enrichment: "The system must never produce the following forbidden and invalid outputs",
				Keywords:   []string{"forbidden output", "must not produce", "never output"},
			},
			{
				Key:        "A5",
				Question:   "Provide a correct example.",
				Enrichment: "A correct example of expected output looks like this",
				Keywords:   []string{"example", "correct", "expected"},
				Scaffold:   "Provide one correct example of expected output.",
			},
			{
				Key:        "A6",
				Question:   "Provide an incorrect example.",
				Enrichment: "An incorrect and wrong example that should be avoided looks like this",
				Keywords:   []string{"incorrect", "wrong", "bad example"},
				Scaffold:   "Provide one incorrect example showing what to avoid.",
			},
		},
	},
	DimFlex: {
		Key:            DimFlex,
		Name:           "Flex (Change Without Drift)",
		ScreenQuestion: "Does this task have a lifecycle — will it need to change or adapt over time?",
		ScreenKeywords: []string{"change", "update", "evolve", "lifecycle", "adapt", "version"},
		Fields: []FieldSpec{
			{
				Key:        "F1",
				Question:   "Who has change authority?",
				Enrichment: "The authority to change and modify this system belongs to the following people and roles",
				Keywords:   []string{"change authority", "modify", "who can change"},
			},
			{
				Key:        "F2",
				Question:   "What changes are permitted?",
				Enrichment: "The following changes, modifications, and updates are permitted and allowed",
				Keywords:   []string{"permitted change", "allowed update", "can modify"},
			},
			{
				Key:        "F3",
				Question:   "What changes are forbidden?",
				Enrichment: "The following changes are frozen, immutable, locked, and forbidden from modification",
				Keywords:   []string{"frozen", "immutable", "locked", "cannot change"},
			},
			{
				Key:        "F4",
				Question:   "What triggers a review?",
				Enrichment: "A review is triggered when the following conditions, changes, or audit thresholds are met",
				Keywords:   []string{"review trigger", "audit", "threshold", "when to review"},
			},
		},
	},
	DimTest: {
		Key:       DimTest,
		Name:      "Test (Evaluation)",
		Mandatory: true,
		Fields: []FieldSpec{
			{
				Key:        "T1",
				Question:   "How is success defined?",
				Enrichment: "Success is defined as: the system works correctly, all tests pass, requirements are verified",
				Keywords:   []string{"success", "pass", "works", "complete", "verified"},
				Scaffold:   "Success = [measurable outcome].",
			},
			{
				Key:        "T2",
				Question:   "How is failure defined?",
				Enrichment: "Failure is defined as: the system fails, produces errors, rejects valid input, or is broken",
				Keywords:   []string{"failure", "fail", "error", "broken", "incorrect"},
				Scaffold:   "Failure = [measurable outcome].",
			},
			{
				Key:        "T3",
				Question:   "What review questions apply (need >= 3)?",
				Enrichment: "The review questions to verify include: does the output meet requirements, is it auditable",
				Keywords:   []string{"review question", "check", "verify", "audit question"},
				Scaffold:   "3+ review questions: 'Does the output address [requirement]?'",
			},
			{
				Key:        "T4",
				Question:   "What evidence is required?",
				Enrichment: "The required evidence and proof includes: test results, artifacts, and verification data",
				Keywords:   []string{"evidence", "proof", "test result", "demonstration"},
			},
		},
	},
}

// Spec returns the fixed definition of a dimension.
func Spec(key DimensionKey) (DimensionSpec, bool) {
	s, ok := taxonomy[key]
	return s, ok
}

// ParseDimensionKey accepts a dimension letter in either case.
func ParseDimensionKey(s string) (DimensionKey, bool) {
	k := DimensionKey(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := taxonomy[k]
	return k, ok
}

// FieldByKey resolves a field key like "R3" to its owning dimension and spec.
func FieldByKey(fieldKey string) (DimensionSpec, FieldSpec, bool) {
	if fieldKey == "" {
		return DimensionSpec{}, FieldSpec{}, false
	}
	dim, ok := taxonomy[DimensionKey(fieldKey[:1])]
	if !ok {
		return DimensionSpec{}, FieldSpec{}, false
	}
	for _, f := range dim.Fields {
		if f.Key == fieldKey {
			return dim, f, true
		}
	}
	return dim, FieldSpec{}, false
}

// FieldCount returns the total number of fields across all dimensions.
func FieldCount() int {
	n := 0
	for _, d := range taxonomy {
		n += len(d.Fields)
	}
	return n
}
