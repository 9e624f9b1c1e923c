package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type PostgresStore struct {
	queries
	sqlDB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{queries: queries{db: db}, sqlDB: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.sqlDB
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// queries holds every statement shared between the store and its transaction
// scope; db is either *sql.DB or *sql.Tx.
type queries struct {
	db dbtx
}

var _ Mutator = (*queries)(nil)

// LockVoter serializes every vote mutation for one (component, voter) pair.
// The lock is transaction-scoped and released automatically at commit.
func (q *queries) LockVoter(ctx context.Context, componentID, voterID string) error {
	_, err := q.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, componentID, voterID)
	if err != nil {
		return fmt.Errorf("lock voter: %w", err)
	}
	return nil
}

func (q *queries) GetIdentity(ctx context.Context, id string) (Identity, error) {
	var item Identity
	err := q.db.QueryRowContext(ctx, `
		SELECT id, organization_id, display_name, kind, created_at
		FROM identities
		WHERE id=$1
	`, id).Scan(&item.ID, &item.OrganizationID, &item.DisplayName, &item.Kind, &item.CreatedAt)
	if err != nil {
		return Identity{}, err
	}
	return item, nil
}

func (q *queries) OrganizationIdentity(ctx context.Context, organizationID string) (Identity, error) {
	var item Identity
	err := q.db.QueryRowContext(ctx, `
		SELECT id, organization_id, display_name, kind, created_at
		FROM identities
		WHERE organization_id=$1 AND kind='organization'
		LIMIT 1
	`, organizationID).Scan(&item.ID, &item.OrganizationID, &item.DisplayName, &item.Kind, &item.CreatedAt)
	if err != nil {
		return Identity{}, err
	}
	return item, nil
}

func (q *queries) GetComponent(ctx context.Context, id string) (Component, error) {
	var item Component
	err := q.db.QueryRowContext(ctx, `
		SELECT id, organization_id, space_id, name, vote_limit, vote_threshold,
			minimum_votes_per_user, publish_answers_immediately, created_at
		FROM components
		WHERE id=$1
	`, id).Scan(
		&item.ID,
		&item.OrganizationID,
		&item.SpaceID,
		&item.Name,
		&item.VoteLimit,
		&item.VoteThreshold,
		&item.MinimumVotesPerUser,
		&item.PublishAnswersImmediately,
		&item.CreatedAt,
	)
	if err != nil {
		return Component{}, err
	}
	return item, nil
}

const opinionColumns = `id, component_id, reference, title, body, published_title, published_body,
	category, state, internal_state, answer, cost, cost_report, execution_period,
	amendable_id, allow_overflow, published_at, answered_at, state_published_at, withdrawn_at,
	vote_count, coauthorships_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpinion(row rowScanner) (Opinion, error) {
	var item Opinion
	err := row.Scan(
		&item.ID,
		&item.ComponentID,
		&item.Reference,
		&item.Title,
		&item.Body,
		&item.PublishedTitle,
		&item.PublishedBody,
		&item.Category,
		&item.State,
		&item.InternalState,
		&item.Answer,
		&item.Cost,
		&item.CostReport,
		&item.ExecutionPeriod,
		&item.AmendableID,
		&item.AllowOverflow,
		&item.PublishedAt,
		&item.AnsweredAt,
		&item.StatePublishedAt,
		&item.WithdrawnAt,
		&item.VoteCount,
		&item.CoauthorshipsCount,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (q *queries) GetOpinion(ctx context.Context, id string) (Opinion, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+opinionColumns+` FROM opinions WHERE id=$1`, id)
	return scanOpinion(row)
}

// GetOpinionForUpdate takes a row lock on the opinion for the rest of the
// transaction; vote and withdrawal both go through it so they exclude each
// other.
func (q *queries) GetOpinionForUpdate(ctx context.Context, id string) (Opinion, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+opinionColumns+` FROM opinions WHERE id=$1 FOR UPDATE`, id)
	return scanOpinion(row)
}

func (q *queries) InsertOpinion(ctx context.Context, opinion Opinion) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO opinions (id, component_id, reference, title, body, published_title, published_body,
			category, state, internal_state, answer, cost, cost_report, execution_period,
			amendable_id, allow_overflow, published_at, answered_at, state_published_at, withdrawn_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		opinion.ID, opinion.ComponentID, opinion.Reference, opinion.Title, opinion.Body,
		opinion.PublishedTitle, opinion.PublishedBody, opinion.Category, opinion.State,
		opinion.InternalState, opinion.Answer, opinion.Cost, opinion.CostReport,
		opinion.ExecutionPeriod, opinion.AmendableID, opinion.AllowOverflow,
		opinion.PublishedAt, opinion.AnsweredAt, opinion.StatePublishedAt, opinion.WithdrawnAt,
	)
	if err != nil {
		return fmt.Errorf("insert opinion: %w", err)
	}
	return nil
}

func (q *queries) UpdateOpinion(ctx context.Context, opinion Opinion) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE opinions
		SET title=$2, body=$3, published_title=$4, published_body=$5, category=$6,
			state=$7, internal_state=$8, answer=$9, cost=$10, cost_report=$11,
			execution_period=$12, published_at=$13, answered_at=$14,
			state_published_at=$15, withdrawn_at=$16, allow_overflow=$17, updated_at=NOW()
		WHERE id=$1
	`,
		opinion.ID, opinion.Title, opinion.Body, opinion.PublishedTitle, opinion.PublishedBody,
		opinion.Category, opinion.State, opinion.InternalState, opinion.Answer, opinion.Cost,
		opinion.CostReport, opinion.ExecutionPeriod, opinion.PublishedAt, opinion.AnsweredAt,
		opinion.StatePublishedAt, opinion.WithdrawnAt, opinion.AllowOverflow,
	)
	if err != nil {
		return fmt.Errorf("update opinion: %w", err)
	}
	return nil
}

func (q *queries) DeleteOpinion(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM opinions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete opinion: %w", err)
	}
	return nil
}

// ListOpinionsByPublicState returns the published, non-withdrawn opinions of
// a component whose public state matches one of states. The pseudo-state
// "not_answered" matches opinions whose answer gate has not fired.
func (q *queries) ListOpinionsByPublicState(ctx context.Context, componentID string, states []string) ([]Opinion, error) {
	conditions := make([]string, 0, len(states))
	args := []any{componentID}
	for _, state := range states {
		if state == "not_answered" {
			conditions = append(conditions, "state_published_at IS NULL")
			continue
		}
		args = append(args, state)
		conditions = append(conditions, fmt.Sprintf("(state_published_at IS NOT NULL AND state=$%d)", len(args)))
	}
	where := "TRUE"
	if len(conditions) > 0 {
		where = "(" + strings.Join(conditions, " OR ") + ")"
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+opinionColumns+`
		FROM opinions
		WHERE component_id=$1
		  AND published_at IS NOT NULL
		  AND withdrawn_at IS NULL
		  AND `+where+`
		ORDER BY created_at ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list opinions by state: %w", err)
	}
	defer rows.Close()

	items := make([]Opinion, 0)
	for rows.Next() {
		item, err := scanOpinion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan opinion: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opinions: %w", err)
	}
	return items, nil
}

// ListUnpublishedAnswers returns the ids of opinions with a staged answer
// whose gate has not fired yet.
func (q *queries) ListUnpublishedAnswers(ctx context.Context, componentID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id
		FROM opinions
		WHERE component_id=$1
		  AND internal_state <> ''
		  AND state_published_at IS NULL
		  AND withdrawn_at IS NULL
		ORDER BY answered_at ASC
	`, componentID)
	if err != nil {
		return nil, fmt.Errorf("list unpublished answers: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan opinion id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opinion ids: %w", err)
	}
	return ids, nil
}

func (q *queries) IsCoauthor(ctx context.Context, opinionID, identityID string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM coauthorships WHERE opinion_id=$1 AND identity_id=$2)
	`, opinionID, identityID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check coauthor: %w", err)
	}
	return exists, nil
}

func (q *queries) ListCoauthors(ctx context.Context, opinionID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT identity_id FROM coauthorships WHERE opinion_id=$1 ORDER BY created_at ASC
	`, opinionID)
	if err != nil {
		return nil, fmt.Errorf("list coauthors: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan coauthor: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coauthors: %w", err)
	}
	return ids, nil
}

func (q *queries) InsertCoauthorship(ctx context.Context, opinionID, identityID string) error {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO coauthorships (opinion_id, identity_id)
		VALUES ($1, $2)
		ON CONFLICT (opinion_id, identity_id) DO NOTHING
	`, opinionID, identityID)
	if err != nil {
		return fmt.Errorf("insert coauthorship: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert coauthorship rows: %w", err)
	}
	if affected > 0 {
		if _, err := q.db.ExecContext(ctx, `
			UPDATE opinions SET coauthorships_count = coauthorships_count + 1 WHERE id=$1
		`, opinionID); err != nil {
			return fmt.Errorf("bump coauthorships count: %w", err)
		}
	}
	return nil
}

func (q *queries) GetVote(ctx context.Context, opinionID, voterID string) (*Vote, error) {
	var item Vote
	err := q.db.QueryRowContext(ctx, `
		SELECT opinion_id, voter_id, temporary, created_at
		FROM votes
		WHERE opinion_id=$1 AND voter_id=$2
	`, opinionID, voterID).Scan(&item.OpinionID, &item.VoterID, &item.Temporary, &item.CreatedAt)
	if errorsIsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return &item, nil
}

func (q *queries) InsertVote(ctx context.Context, vote Vote) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO votes (opinion_id, voter_id, temporary)
		VALUES ($1, $2, $3)
	`, vote.OpinionID, vote.VoterID, vote.Temporary)
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (q *queries) DeleteVote(ctx context.Context, opinionID, voterID string) (bool, error) {
	result, err := q.db.ExecContext(ctx, `
		DELETE FROM votes WHERE opinion_id=$1 AND voter_id=$2
	`, opinionID, voterID)
	if err != nil {
		return false, fmt.Errorf("delete vote: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete vote rows: %w", err)
	}
	return affected > 0, nil
}

// CountVoterVotes counts all of a voter's votes in a component against
// non-withdrawn opinions; the quorum reconciliation reads this.
func (q *queries) CountVoterVotes(ctx context.Context, componentID, voterID string) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM votes v
		JOIN opinions o ON o.id = v.opinion_id
		WHERE v.voter_id=$1 AND o.component_id=$2 AND o.withdrawn_at IS NULL
	`, voterID, componentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count voter votes: %w", err)
	}
	return count, nil
}

func (q *queries) CountVoterConfirmedVotes(ctx context.Context, componentID, voterID string) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM votes v
		JOIN opinions o ON o.id = v.opinion_id
		WHERE v.voter_id=$1 AND o.component_id=$2 AND o.withdrawn_at IS NULL AND NOT v.temporary
	`, voterID, componentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count voter confirmed votes: %w", err)
	}
	return count, nil
}

func (q *queries) CountOpinionVotes(ctx context.Context, opinionID string, confirmedOnly bool) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM votes
		WHERE opinion_id=$1 AND (NOT $2::boolean OR NOT temporary)
	`, opinionID, confirmedOnly).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count opinion votes: %w", err)
	}
	return count, nil
}

// SetVoterVotesTemporary flips every vote of the voter in the component in
// one statement; the quorum is a property of the voter, not of one opinion.
func (q *queries) SetVoterVotesTemporary(ctx context.Context, componentID, voterID string, temporary bool) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE votes v
		SET temporary=$3
		FROM opinions o
		WHERE o.id = v.opinion_id
		  AND v.voter_id=$1
		  AND o.component_id=$2
		  AND o.withdrawn_at IS NULL
	`, voterID, componentID, temporary)
	if err != nil {
		return fmt.Errorf("set voter votes temporary: %w", err)
	}
	return nil
}

// RefreshVoterOpinionCounts recomputes the denormalized vote_count for every
// opinion the voter has a vote on; the batch temporary flip can change the
// confirmed tally of many opinions at once.
func (q *queries) RefreshVoterOpinionCounts(ctx context.Context, componentID, voterID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE opinions o
		SET vote_count = (SELECT COUNT(*) FROM votes v WHERE v.opinion_id = o.id AND NOT v.temporary)
		WHERE o.component_id=$1
		  AND o.id IN (SELECT opinion_id FROM votes WHERE voter_id=$2)
	`, componentID, voterID)
	if err != nil {
		return fmt.Errorf("refresh voter opinion counts: %w", err)
	}
	return nil
}

func (q *queries) RefreshOpinionVoteCount(ctx context.Context, opinionID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE opinions o
		SET vote_count = (SELECT COUNT(*) FROM votes v WHERE v.opinion_id = o.id AND NOT v.temporary)
		WHERE o.id=$1
	`, opinionID)
	if err != nil {
		return fmt.Errorf("refresh opinion vote count: %w", err)
	}
	return nil
}

func (q *queries) ListEmendations(ctx context.Context, opinionID string) ([]Opinion, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+opinionColumns+`
		FROM opinions
		WHERE amendable_id=$1
		ORDER BY created_at ASC
	`, opinionID)
	if err != nil {
		return nil, fmt.Errorf("list emendations: %w", err)
	}
	defer rows.Close()

	items := make([]Opinion, 0)
	for rows.Next() {
		item, err := scanOpinion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan emendation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emendations: %w", err)
	}
	return items, nil
}

func (q *queries) PendingAmendment(ctx context.Context, emendationID string) (*Amendment, error) {
	var item Amendment
	err := q.db.QueryRowContext(ctx, `
		SELECT id, amendable_id, emendation_id, status, created_at
		FROM amendments
		WHERE emendation_id=$1 AND status=$2
	`, emendationID, AmendmentPending).Scan(&item.ID, &item.AmendableID, &item.EmendationID, &item.Status, &item.CreatedAt)
	if errorsIsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending amendment: %w", err)
	}
	return &item, nil
}

func (q *queries) UpdateAmendmentStatus(ctx context.Context, amendmentID, status string) (bool, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE amendments SET status=$2 WHERE id=$1 AND status=$3
	`, amendmentID, status, AmendmentPending)
	if err != nil {
		return false, fmt.Errorf("update amendment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update amendment rows: %w", err)
	}
	return affected > 0, nil
}

func (q *queries) InsertResourceLink(ctx context.Context, link ResourceLink) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO resource_links (from_id, to_id, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (from_id, to_id, reason) DO NOTHING
	`, link.FromID, link.ToID, link.Reason)
	if err != nil {
		return fmt.Errorf("insert resource link: %w", err)
	}
	return nil
}

func (q *queries) ListResourceLinks(ctx context.Context, fromID, reason string) ([]ResourceLink, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT from_id, to_id, reason, created_at
		FROM resource_links
		WHERE from_id=$1 AND reason=$2
		ORDER BY created_at ASC
	`, fromID, reason)
	if err != nil {
		return nil, fmt.Errorf("list resource links: %w", err)
	}
	defer rows.Close()

	items := make([]ResourceLink, 0)
	for rows.Next() {
		var item ResourceLink
		if err := rows.Scan(&item.FromID, &item.ToID, &item.Reason, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan resource link: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resource links: %w", err)
	}
	return items, nil
}

// ListLinkPartners returns the opposite endpoints of every edge touching the
// opinion with the given reason, regardless of direction. Bounded one-hop
// lookup, never a graph walk.
func (q *queries) ListLinkPartners(ctx context.Context, opinionID, reason string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT to_id FROM resource_links WHERE from_id=$1 AND reason=$2
		UNION
		SELECT from_id FROM resource_links WHERE to_id=$1 AND reason=$2
	`, opinionID, reason)
	if err != nil {
		return nil, fmt.Errorf("list link partners: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan link partner: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate link partners: %w", err)
	}
	return ids, nil
}

// LinkedToComponent is the dedup check: does any outgoing edge from the
// opinion with this reason land on an opinion in the given component?
func (q *queries) LinkedToComponent(ctx context.Context, fromID, reason, componentID string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM resource_links l
			JOIN opinions o ON o.id = l.to_id
			WHERE l.from_id=$1 AND l.reason=$2 AND o.component_id=$3
		)
	`, fromID, reason, componentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check linked to component: %w", err)
	}
	return exists, nil
}

func (q *queries) ListAttachments(ctx context.Context, opinionID string) ([]Attachment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, opinion_id, title, object_key, created_at
		FROM attachments
		WHERE opinion_id=$1
		ORDER BY created_at ASC
	`, opinionID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.OpinionID, &item.Title, &item.ObjectKey, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (q *queries) InsertAttachment(ctx context.Context, attachment Attachment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO attachments (id, opinion_id, title, object_key)
		VALUES ($1, $2, $3, $4)
	`, attachment.ID, attachment.OpinionID, attachment.Title, attachment.ObjectKey)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (q *queries) InsertValuationAssignment(ctx context.Context, assignment ValuationAssignment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO valuation_assignments (opinion_id, valuator_role_id)
		VALUES ($1, $2)
		ON CONFLICT (opinion_id, valuator_role_id) DO NOTHING
	`, assignment.OpinionID, assignment.ValuatorRoleID)
	if err != nil {
		return fmt.Errorf("insert valuation assignment: %w", err)
	}
	return nil
}

func (q *queries) DeleteValuationAssignment(ctx context.Context, opinionID, valuatorRoleID string) (bool, error) {
	result, err := q.db.ExecContext(ctx, `
		DELETE FROM valuation_assignments WHERE opinion_id=$1 AND valuator_role_id=$2
	`, opinionID, valuatorRoleID)
	if err != nil {
		return false, fmt.Errorf("delete valuation assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete valuation assignment rows: %w", err)
	}
	return affected > 0, nil
}

func (q *queries) RejectPendingAccessRequests(ctx context.Context, opinionID string) (int, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE access_requests SET status='REJECTED' WHERE opinion_id=$1 AND status='PENDING'
	`, opinionID)
	if err != nil {
		return 0, fmt.Errorf("reject access requests: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reject access requests rows: %w", err)
	}
	return int(affected), nil
}

func (q *queries) OpinionFollowers(ctx context.Context, opinionID string) ([]string, error) {
	return q.followerIDs(ctx, `SELECT identity_id FROM opinion_followers WHERE opinion_id=$1 ORDER BY identity_id`, opinionID)
}

func (q *queries) SpaceFollowers(ctx context.Context, spaceID string) ([]string, error) {
	return q.followerIDs(ctx, `SELECT identity_id FROM space_followers WHERE space_id=$1 ORDER BY identity_id`, spaceID)
}

func (q *queries) followerIDs(ctx context.Context, query, scopeID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, query, scopeID)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follower: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate followers: %w", err)
	}
	return ids, nil
}

func (q *queries) NextReferenceSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := q.db.QueryRowContext(ctx, `SELECT nextval('opinion_reference_seq')`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next reference seq: %w", err)
	}
	return seq, nil
}

func errorsIsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
