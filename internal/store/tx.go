package store

import (
	"context"
	"database/sql"
	"fmt"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so the query methods can be
// shared between the store and its transaction scope.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Mutator is the transaction-scoped view of the store handed to InTx
// callbacks. Everything inside one callback commits or rolls back together.
type Mutator interface {
	LockVoter(ctx context.Context, componentID, voterID string) error

	GetIdentity(ctx context.Context, id string) (Identity, error)
	OrganizationIdentity(ctx context.Context, organizationID string) (Identity, error)
	GetComponent(ctx context.Context, id string) (Component, error)
	GetOpinion(ctx context.Context, id string) (Opinion, error)
	GetOpinionForUpdate(ctx context.Context, id string) (Opinion, error)
	InsertOpinion(ctx context.Context, opinion Opinion) error
	UpdateOpinion(ctx context.Context, opinion Opinion) error
	DeleteOpinion(ctx context.Context, id string) error

	IsCoauthor(ctx context.Context, opinionID, identityID string) (bool, error)
	ListCoauthors(ctx context.Context, opinionID string) ([]string, error)
	InsertCoauthorship(ctx context.Context, opinionID, identityID string) error

	GetVote(ctx context.Context, opinionID, voterID string) (*Vote, error)
	InsertVote(ctx context.Context, vote Vote) error
	DeleteVote(ctx context.Context, opinionID, voterID string) (bool, error)
	CountVoterVotes(ctx context.Context, componentID, voterID string) (int, error)
	CountVoterConfirmedVotes(ctx context.Context, componentID, voterID string) (int, error)
	CountOpinionVotes(ctx context.Context, opinionID string, confirmedOnly bool) (int, error)
	SetVoterVotesTemporary(ctx context.Context, componentID, voterID string, temporary bool) error
	RefreshVoterOpinionCounts(ctx context.Context, componentID, voterID string) error
	RefreshOpinionVoteCount(ctx context.Context, opinionID string) error

	ListEmendations(ctx context.Context, opinionID string) ([]Opinion, error)
	PendingAmendment(ctx context.Context, emendationID string) (*Amendment, error)
	UpdateAmendmentStatus(ctx context.Context, amendmentID, status string) (bool, error)

	InsertResourceLink(ctx context.Context, link ResourceLink) error
	ListResourceLinks(ctx context.Context, fromID, reason string) ([]ResourceLink, error)
	ListLinkPartners(ctx context.Context, opinionID, reason string) ([]string, error)
	LinkedToComponent(ctx context.Context, fromID, reason, componentID string) (bool, error)

	ListAttachments(ctx context.Context, opinionID string) ([]Attachment, error)
	InsertAttachment(ctx context.Context, attachment Attachment) error

	InsertValuationAssignment(ctx context.Context, assignment ValuationAssignment) error
	DeleteValuationAssignment(ctx context.Context, opinionID, valuatorRoleID string) (bool, error)

	RejectPendingAccessRequests(ctx context.Context, opinionID string) (int, error)

	NextReferenceSeq(ctx context.Context) (int64, error)
}

// InTx runs fn inside a single transaction. Advisory locks taken through the
// Mutator are held until commit or rollback.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Mutator) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&queries{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
