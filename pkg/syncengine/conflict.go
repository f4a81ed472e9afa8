package syncengine

import (
	"fmt"
	"time"
)

// ConflictPolicy selects how concurrent edits on both stores are resolved.
type ConflictPolicy string

const (
	// PolicyLastWriteWins keeps the version with the later timestamp.
	PolicyLastWriteWins ConflictPolicy = "last_write_wins"
	// PolicyDocumentWins always keeps the document store version.
	PolicyDocumentWins ConflictPolicy = "document_wins"
	// PolicyRelationalWins always keeps the relational version.
	PolicyRelationalWins ConflictPolicy = "relational_wins"
)

// ParseConflictPolicy parses a policy name. The empty string is last-write-wins.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(s); p {
	case "":
		return PolicyLastWriteWins, nil
	case PolicyLastWriteWins, PolicyDocumentWins, PolicyRelationalWins:
		return p, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q", s)
}

// Side names one of the two stores.
type Side string

const (
	SideRelational Side = "relational"
	SideDocument   Side = "document"
)

// ParseSide parses a side name. The empty string is the relational side.
func ParseSide(s string) (Side, error) {
	switch side := Side(s); side {
	case "":
		return SideRelational, nil
	case SideRelational, SideDocument:
		return side, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Candidate is one side's version of an entity.
type Candidate struct {
	Side      Side
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Timestamp is the update time, or the creation time when never updated.
func (c Candidate) Timestamp() time.Time {
	if !c.UpdatedAt.IsZero() {
		return c.UpdatedAt
	}
	return c.CreatedAt
}

// Resolution reasons.
const (
	ReasonPolicy     = "policy"
	ReasonLaterWrite = "later_write"
	ReasonTieBreak   = "tie_break"
)

// Resolution is the outcome of a conflict.
type Resolution struct {
	Policy     ConflictPolicy
	Winner     Side
	Reason     string
	Relational Candidate
	Document   Candidate
}

// WinnerCandidate returns the winning version.
func (r Resolution) WinnerCandidate() Candidate {
	if r.Winner == SideDocument {
		return r.Document
	}
	return r.Relational
}

// auditEnvelope is the audit payload describing both candidates and the decision.
func (r Resolution) auditEnvelope() map[string]any {
	return map[string]any{
		"policy":     r.Policy,
		"winner":     r.Winner,
		"reason":     r.Reason,
		"relational": candidatePayload(r.Relational),
		"document":   candidatePayload(r.Document),
	}
}

func candidatePayload(c Candidate) map[string]any {
	out := map[string]any{"fields": c.Fields}
	if ts := c.Timestamp(); !ts.IsZero() {
		out["timestamp"] = ts.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// ConflictResolver decides the winner of a whole-entity conflict.
type ConflictResolver struct {
	policy   ConflictPolicy
	tieBreak Side
}

// NewConflictResolver returns a resolver for policy. tieBreak decides
// last-write-wins conflicts with equal timestamps.
func NewConflictResolver(policy ConflictPolicy, tieBreak Side) (*ConflictResolver, error) {
	p, err := ParseConflictPolicy(string(policy))
	if err != nil {
		return nil, err
	}
	s, err := ParseSide(string(tieBreak))
	if err != nil {
		return nil, err
	}
	return &ConflictResolver{policy: p, tieBreak: s}, nil
}

// Policy returns the configured policy.
func (r *ConflictResolver) Policy() ConflictPolicy {
	return r.policy
}

// Resolve picks the winner between one relational and one document candidate.
// Argument order does not matter.
func (r *ConflictResolver) Resolve(a, b Candidate) (Resolution, error) {
	if a.Side == b.Side {
		return Resolution{}, fmt.Errorf("conflict candidates are both %q", a.Side)
	}
	rel, doc := a, b
	if a.Side == SideDocument {
		rel, doc = b, a
	}
	if rel.Side != SideRelational || doc.Side != SideDocument {
		return Resolution{}, fmt.Errorf("invalid conflict sides %q and %q", a.Side, b.Side)
	}

	res := Resolution{Policy: r.policy, Relational: rel, Document: doc}
	switch r.policy {
	case PolicyDocumentWins:
		res.Winner, res.Reason = SideDocument, ReasonPolicy
	case PolicyRelationalWins:
		res.Winner, res.Reason = SideRelational, ReasonPolicy
	default:
		relTS, docTS := rel.Timestamp(), doc.Timestamp()
		switch {
		case docTS.After(relTS):
			res.Winner, res.Reason = SideDocument, ReasonLaterWrite
		case relTS.After(docTS):
			res.Winner, res.Reason = SideRelational, ReasonLaterWrite
		default:
			res.Winner, res.Reason = r.tieBreak, ReasonTieBreak
		}
	}
	return res, nil
}
