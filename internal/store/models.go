package store

import "time"

// Resource link reasons. Provenance edges are directed from the original
// opinion to its copy; dedup checks follow outgoing edges only.
const (
	LinkCopiedFromComponent           = "copied_from_component"
	LinkCreatedFromCollaborativeDraft = "created_from_collaborative_draft"
)

// Amendment review states.
const (
	AmendmentPending  = "PENDING"
	AmendmentAccepted = "ACCEPTED"
	AmendmentRejected = "REJECTED"
)

type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Identity is anything that can author, vote or be scored: a participant, a
// user group, a meeting, or the organization acting as official author.
type Identity struct {
	ID             string
	OrganizationID string
	DisplayName    string
	Kind           string // participant, group, meeting, organization
	CreatedAt      time.Time
}

// Component is the scoping boundary for opinions and votes. It carries the
// vote settings the ledger enforces.
type Component struct {
	ID                        string
	OrganizationID            string
	SpaceID                   string
	Name                      string
	VoteLimit                 int // max votes per voter in the component, 0 = unlimited
	VoteThreshold             int // max confirmed votes per opinion, 0 = no ceiling
	MinimumVotesPerUser       int // quorum before a voter's votes count publicly, 0 = none
	PublishAnswersImmediately bool
	CreatedAt                 time.Time
}

type Opinion struct {
	ID          string
	ComponentID string
	Reference   string
	Title       string
	Body        string

	// Snapshot taken when the opinion is published; never rewritten.
	PublishedTitle string
	PublishedBody  string

	Category string

	// State is the publicly visible answer state; it is written only when the
	// StatePublishedAt gate fires, or by withdrawal. InternalState is the
	// answer an admin has staged but not necessarily revealed.
	State         string
	InternalState string

	Answer          string
	Cost            string
	CostReport      string
	ExecutionPeriod string

	AmendableID   *string
	AllowOverflow bool // accumulate votes beyond the component ceiling

	PublishedAt      *time.Time
	AnsweredAt       *time.Time
	StatePublishedAt *time.Time
	WithdrawnAt      *time.Time

	VoteCount          int
	CoauthorshipsCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Vote struct {
	OpinionID string
	VoterID   string
	Temporary bool
	CreatedAt time.Time
}

type ValuationAssignment struct {
	OpinionID      string
	ValuatorRoleID string
	CreatedAt      time.Time
}

type ResourceLink struct {
	FromID    string
	ToID      string
	Reason    string
	CreatedAt time.Time
}

type Attachment struct {
	ID        string
	OpinionID string
	Title     string
	ObjectKey string
	CreatedAt time.Time
}

type Amendment struct {
	ID           string
	AmendableID  string
	EmendationID string
	Status       string
	CreatedAt    time.Time
}
