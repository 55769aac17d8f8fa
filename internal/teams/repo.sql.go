package teams

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/1-to-100/backoffice/internal/shared"
)

// Repository defines persistence operations for team administration.
type Repository interface {
	ListTeams(ctx context.Context, filters ListFilters) ([]Team, int, error)
	GetTeam(ctx context.Context, id uuid.UUID) (Team, error)
	CreateTeam(ctx context.Context, customerID uuid.UUID, name, description string) (Team, error)
	UpdateTeam(ctx context.Context, id uuid.UUID, input UpdateTeamInput) (Team, error)
	DeleteTeam(ctx context.Context, id uuid.UUID) error
	ListMembers(ctx context.Context, teamID uuid.UUID) ([]Member, error)
	UserTenant(ctx context.Context, userID uuid.UUID) (*uuid.UUID, string, error)
	AddMember(ctx context.Context, teamID, userID uuid.UUID) (Member, error)
	RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const teamColumns = `t.id, t.customer_id, t.name, t.description,
	(SELECT COUNT(*) FROM team_members m WHERE m.team_id = t.id) AS members_count,
	t.created_at, t.updated_at`

func scanTeam(row pgx.Row) (Team, error) {
	var team Team
	err := row.Scan(
		&team.ID,
		&team.CustomerID,
		&team.Name,
		&team.Description,
		&team.MembersCount,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Team{}, shared.ErrNotFound
		}
		return Team{}, err
	}
	return team, nil
}

const teamFilterClause = `
	($1::bool OR t.customer_id = $2::uuid)
	AND ($3::text = '' OR t.name ILIKE '%' || $3 || '%')`

// ListTeams returns one page of teams plus the total match count.
func (r *PGRepository) ListTeams(ctx context.Context, filters ListFilters) ([]Team, int, error) {
	args := []any{filters.Unscoped, filters.CustomerID, filters.Search}

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM teams t WHERE `+teamFilterClause, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filters.Page, filters.PerPage, total)
	rows, err := r.pool.Query(ctx,
		`SELECT `+teamColumns+` FROM teams t
		 WHERE `+teamFilterClause+`
		 ORDER BY t.name, t.id
		 LIMIT $4 OFFSET $5`,
		append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, 0, err
		}
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return teams, total, nil
}

// GetTeam fetches one team by primary key.
func (r *PGRepository) GetTeam(ctx context.Context, id uuid.UUID) (Team, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams t WHERE t.id = $1`, id)
	return scanTeam(row)
}

// CreateTeam inserts a team into a tenant. Names are unique per tenant.
func (r *PGRepository) CreateTeam(ctx context.Context, customerID uuid.UUID, name, description string) (Team, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO teams (id, customer_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, customer_id, name, description, 0::bigint, created_at, updated_at`,
		uuid.New(), customerID, name, description)
	team, err := scanTeam(row)
	if err != nil {
		if shared.IsUniqueViolation(err, "") {
			return Team{}, fmt.Errorf("%w: team name already in use", shared.ErrConflict)
		}
		if shared.IsForeignKeyViolation(err) {
			return Team{}, fmt.Errorf("%w: unknown customer", shared.ErrValidation)
		}
		return Team{}, err
	}
	return team, nil
}

// UpdateTeam applies a partial update. Nil inputs keep the stored value.
func (r *PGRepository) UpdateTeam(ctx context.Context, id uuid.UUID, input UpdateTeamInput) (Team, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE teams t
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+teamColumns,
		id, input.Name, input.Description)
	team, err := scanTeam(row)
	if err != nil {
		if shared.IsUniqueViolation(err, "") {
			return Team{}, fmt.Errorf("%w: team name already in use", shared.ErrConflict)
		}
		return Team{}, err
	}
	return team, nil
}

// DeleteTeam removes a team and its memberships.
func (r *PGRepository) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListMembers returns the members of one team.
func (r *PGRepository) ListMembers(ctx context.Context, teamID uuid.UUID) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.user_id, u.email, u.full_name, m.added_at
		FROM team_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.team_id = $1
		ORDER BY u.full_name, m.user_id`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var member Member
		if err := rows.Scan(&member.UserID, &member.Email, &member.FullName, &member.AddedAt); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

// UserTenant resolves a live user to its tenant and status.
func (r *PGRepository) UserTenant(ctx context.Context, userID uuid.UUID) (*uuid.UUID, string, error) {
	var customerID *uuid.UUID
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT customer_id, status FROM users WHERE id = $1`, userID).Scan(&customerID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", shared.ErrNotFound
		}
		return nil, "", err
	}
	return customerID, status, nil
}

// AddMember records a membership.
func (r *PGRepository) AddMember(ctx context.Context, teamID, userID uuid.UUID) (Member, error) {
	var member Member
	err := r.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO team_members (team_id, user_id, added_at)
			VALUES ($1, $2, NOW())
			RETURNING user_id, added_at
		)
		SELECT i.user_id, u.email, u.full_name, i.added_at
		FROM inserted i JOIN users u ON u.id = i.user_id`,
		teamID, userID).Scan(&member.UserID, &member.Email, &member.FullName, &member.AddedAt)
	if err != nil {
		if shared.IsUniqueViolation(err, "") {
			return Member{}, fmt.Errorf("%w: user is already a member", shared.ErrConflict)
		}
		if shared.IsForeignKeyViolation(err) {
			return Member{}, fmt.Errorf("%w: unknown team or user", shared.ErrValidation)
		}
		return Member{}, err
	}
	return member, nil
}

// RemoveMember deletes a membership.
func (r *PGRepository) RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
