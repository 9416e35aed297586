package models

type DedupAction string

const (
	ActionInsert DedupAction = "insert"
	ActionUpdate DedupAction = "update"
	ActionSkip   DedupAction = "skip"
)

type MatchKind string

const (
	MatchNone         MatchKind = ""
	MatchExternalID   MatchKind = "external_id"
	MatchTitleCompany MatchKind = "title_company"
	MatchSimilarity   MatchKind = "similarity"
)

// Decision is the dedup verdict for one validated posting.
type Decision struct {
	Action     DedupAction `json:"action"`
	RecordID   string      `json:"record_id,omitempty"`
	MatchedBy  MatchKind   `json:"matched_by,omitempty"`
	Similarity float64     `json:"similarity,omitempty"`
	//Changed is set on an Update that reactivates the record or carries a new
	//deadline or description; other updates only refresh it
	Changed bool `json:"changed,omitempty"`
}

// RejectReason names why the validator refused a posting.
type RejectReason string

const (
	RejectTooShort        RejectReason = "too_short"
	RejectUnsafeContent   RejectReason = "unsafe_content"
	RejectRepetitive      RejectReason = "repetitive"
	RejectGenericContent  RejectReason = "generic_portal_content"
	RejectNoPostingSignal RejectReason = "no_posting_signal"
	RejectGenericEmployer RejectReason = "generic_employer"
)
