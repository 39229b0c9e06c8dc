// internal/user/implementation.go
package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"stocktrack/internal/auth"
	"stocktrack/internal/errs"
	"stocktrack/internal/web"
)

// service implements the Service interface on PostgreSQL.
type service struct {
	db          *sql.DB
	tracer      trace.Tracer
	rateLimiter *rate.Limiter
}

// NewService creates a new user service instance.
func NewService(db *sql.DB) Service {
	return &service{
		db:          db,
		tracer:      otel.Tracer("stocktrack/user"),
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Minute), 5), // 5 registrations per minute
	}
}

const userColumns = `
	id, email, name, role, status, department, phone, permissions,
	password_hash, salt, last_login_at, created_at, updated_at
`

// Register creates a new account with the default user role.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "user.register")
	defer span.End()

	if !s.rateLimiter.Allow() {
		return nil, errs.Validation("rate limit exceeded, try again later")
	}

	u := &User{
		ID:          uuid.New(),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Name:        req.Name,
		Role:        auth.RoleUser,
		Status:      StatusActive,
		Department:  req.Department,
		Phone:       req.Phone,
		Permissions: DefaultCapabilities(auth.RoleUser),
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if len(req.Password) < 8 {
		return nil, errs.ValidationFields("validation failed",
			map[string]string{"password": "password must be at least 8 characters"})
	}

	passwordHash, salt, err := hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	u.PasswordHash = passwordHash
	u.Salt = salt

	permissionsJSON, err := json.Marshal(u.Permissions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, status, department, phone, permissions, password_hash, salt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Email, u.Name, u.Role, u.Status, u.Department, u.Phone, permissionsJSON, u.PasswordHash, u.Salt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, errs.Conflict("an account with email %s already exists", u.Email)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

// Authenticate verifies credentials and records the login. The same
// error comes back for a wrong password and an unknown email.
func (s *service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "user.authenticate")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.byEmail(ctx, email)
	if err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			return nil, errs.Forbidden("invalid email or password")
		}
		return nil, err
	}

	ok, err := verifyPassword(password, u.Salt, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, errs.Forbidden("invalid email or password")
	}
	if !u.CanLogin() {
		return nil, errs.Forbidden("account is %s", u.Status)
	}

	now := time.Now()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`, u.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	u.LastLoginAt = &now
	return u, nil
}

// Get loads one account by ID.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "user.get",
		trace.WithAttributes(attribute.String("user.id", id.String())),
	)
	defer span.End()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

func (s *service) byEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("user with email %s not found", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

// List returns accounts matching the filter.
func (s *service) List(ctx context.Context, f Filter) ([]*User, *web.Pagination, error) {
	where := " WHERE 1=1"
	args := []any{}
	if f.Role != "" {
		args = append(args, f.Role)
		where += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(" AND (name ILIKE $%d OR email ILIKE $%d)", len(args), len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, nil, fmt.Errorf("failed to count users: %w", err)
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := `SELECT ` + userColumns + ` FROM users` + where +
		fmt.Sprintf(" ORDER BY name ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users, err := scanUsers(rows)
	if err != nil {
		return nil, nil, err
	}
	return users, web.NewPagination(f.Page, f.Limit, total), nil
}

// Update applies an administrative change to an account.
func (s *service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "user.update",
		trace.WithAttributes(attribute.String("user.id", id.String())),
	)
	defer span.End()

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Role != nil {
		if !ValidRole(*req.Role) {
			return nil, errs.Validation("invalid role %q", *req.Role)
		}
		// A role change resets the flags to the new role's defaults;
		// per-account edits are reapplied through UpdatePermissions.
		if *req.Role != u.Role {
			u.Permissions = DefaultCapabilities(*req.Role)
		}
		u.Role = *req.Role
	}
	if req.Status != nil {
		if !ValidStatus(*req.Status) {
			return nil, errs.Validation("invalid status %q", *req.Status)
		}
		u.Status = *req.Status
	}
	if req.Department != nil {
		u.Department = *req.Department
	}
	if req.Phone != nil {
		u.Phone = *req.Phone
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	permissionsJSON, err := json.Marshal(u.Permissions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, role = $3, status = $4, department = $5, phone = $6,
		    permissions = $7, updated_at = NOW()
		WHERE id = $1
	`, u.ID, u.Name, u.Role, u.Status, u.Department, u.Phone, permissionsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

// UpdatePermissions replaces the per-account permission flags. Tokens
// issued before the change keep their old claims until they expire.
func (s *service) UpdatePermissions(ctx context.Context, id uuid.UUID, caps auth.Capabilities) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "user.update_permissions",
		trace.WithAttributes(attribute.String("user.id", id.String())),
	)
	defer span.End()

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	permissionsJSON, err := json.Marshal(caps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET permissions = $2, updated_at = NOW() WHERE id = $1
	`, id, permissionsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to update permissions: %w", err)
	}
	u.Permissions = caps
	return u, nil
}

// ListItemManagers returns the active managers and admins.
func (s *service) ListItemManagers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role IN ($1, $2) AND status = $3
		ORDER BY name ASC
	`, auth.RoleManager, auth.RoleAdmin, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list managers: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	var department, phone sql.NullString
	var permissionsJSON []byte
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.Role, &u.Status, &department, &phone, &permissionsJSON,
		&u.PasswordHash, &u.Salt, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Department = department.String
	u.Phone = phone.String
	if len(permissionsJSON) > 0 {
		if err := json.Unmarshal(permissionsJSON, &u.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}
	return u, nil
}

func scanUsers(rows *sql.Rows) ([]*User, error) {
	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
