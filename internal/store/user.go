package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/growhive/apiserver/types"
)

const userColumns = `
		id, name, email, password_hash, is_verified, date_of_birth, gender,
		education, university, location, phone_number, bio,
		skills_owned, skills_to_learn, domains, certificates,
		profile_image_url, work_links, achievements, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user                              types.User
		dateOfBirth                       sql.NullTime
		gender                            sql.NullString
		skillsOwned, skillsToLearn        []byte
		domainsJSON, certificatesJSON     []byte
		education, university, location   sql.NullString
		phoneNumber, bio, profileImageURL sql.NullString
		workLinks, achievements           sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.IsVerified,
		&dateOfBirth,
		&gender,
		&education,
		&university,
		&location,
		&phoneNumber,
		&bio,
		&skillsOwned,
		&skillsToLearn,
		&domainsJSON,
		&certificatesJSON,
		&profileImageURL,
		&workLinks,
		&achievements,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}

	if dateOfBirth.Valid {
		d := types.NewDate(dateOfBirth.Time)
		user.DateOfBirth = &d
	}
	if gender.Valid {
		g := types.Gender(gender.String)
		user.Gender = &g
	}
	user.Education = nullableString(education)
	user.University = nullableString(university)
	user.Location = nullableString(location)
	user.PhoneNumber = nullableString(phoneNumber)
	user.Bio = nullableString(bio)
	user.ProfileImageURL = nullableString(profileImageURL)
	user.WorkLinks = nullableString(workLinks)
	user.Achievements = nullableString(achievements)

	user.SkillsOwned = []types.SkillOwned{}
	user.SkillsToLearn = []types.SkillToLearn{}
	user.Domains = []string{}
	user.Certificates = []types.Certificate{}
	if err := decodeList(skillsOwned, &user.SkillsOwned); err != nil {
		return types.User{}, fmt.Errorf("decode skills_owned of user %d: %w", user.ID, err)
	}
	if err := decodeList(skillsToLearn, &user.SkillsToLearn); err != nil {
		return types.User{}, fmt.Errorf("decode skills_to_learn of user %d: %w", user.ID, err)
	}
	if err := decodeList(domainsJSON, &user.Domains); err != nil {
		return types.User{}, fmt.Errorf("decode domains of user %d: %w", user.ID, err)
	}
	if err := decodeList(certificatesJSON, &user.Certificates); err != nil {
		return types.User{}, fmt.Errorf("decode certificates of user %d: %w", user.ID, err)
	}
	return user, nil
}

// decodeList unmarshals a JSONB array column. An empty column leaves dst as is.
func decodeList[T any](raw []byte, dst *[]T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// Create inserts a freshly registered user. Only identity fields are written;
// profile fields start empty.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (name, email, password_hash, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.IsVerified,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}

	user.SkillsOwned = []types.SkillOwned{}
	user.SkillsToLearn = []types.SkillToLearn{}
	user.Domains = []string{}
	user.Certificates = []types.Certificate{}
	return user, nil
}

// profileColumns are the columns UpdateProfile may write, in SET clause order.
var profileColumns = []string{
	"date_of_birth",
	"gender",
	"education",
	"university",
	"location",
	"phone_number",
	"bio",
	"skills_owned",
	"skills_to_learn",
	"domains",
	"profile_image_url",
	"work_links",
	"achievements",
}

// ProfileChanges maps profile columns to their new values. Columns missing
// from the map keep their stored value and a nil value stores NULL.
//
// Values are types.Date for date_of_birth, types.Gender for gender, the
// matching slice type for skills_owned, skills_to_learn and domains, and
// string for every other column.
type ProfileChanges map[string]any

// Apply copies the changes onto an in-memory user.
func (c ProfileChanges) Apply(user *types.User) {
	for column, value := range c {
		switch column {
		case "date_of_birth":
			user.DateOfBirth = nil
			if d, ok := value.(types.Date); ok {
				user.DateOfBirth = &d
			}
		case "gender":
			user.Gender = nil
			if g, ok := value.(types.Gender); ok {
				user.Gender = &g
			}
		case "education":
			user.Education = stringValue(value)
		case "university":
			user.University = stringValue(value)
		case "location":
			user.Location = stringValue(value)
		case "phone_number":
			user.PhoneNumber = stringValue(value)
		case "bio":
			user.Bio = stringValue(value)
		case "skills_owned":
			user.SkillsOwned, _ = value.([]types.SkillOwned)
		case "skills_to_learn":
			user.SkillsToLearn, _ = value.([]types.SkillToLearn)
		case "domains":
			user.Domains, _ = value.([]string)
		case "profile_image_url":
			user.ProfileImageURL = stringValue(value)
		case "work_links":
			user.WorkLinks = stringValue(value)
		case "achievements":
			user.Achievements = stringValue(value)
		}
	}
}

func stringValue(value any) *string {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	return &s
}

// columnArg converts a ProfileChanges value into a query argument.
func columnArg(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case types.Gender:
		return string(v), nil
	case types.Date:
		return v.Time, nil
	case []types.SkillOwned:
		return marshalList(v)
	case []types.SkillToLearn:
		return marshalList(v)
	case []string:
		return marshalList(v)
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

// UpdateProfile writes only the columns present in changes, in one statement,
// and returns the stored user. Columns not named keep whatever value they hold
// at write time, so concurrent writers of other columns are not overwritten.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, changes ProfileChanges) (types.User, error) {
	for column := range changes {
		if !slices.Contains(profileColumns, column) {
			return types.User{}, fmt.Errorf("unknown profile column %q", column)
		}
	}
	if len(changes) == 0 {
		return r.GetByID(ctx, id)
	}

	sets := make([]string, 0, len(changes)+1)
	args := make([]any, 0, len(changes)+2)
	for _, column := range profileColumns {
		value, ok := changes[column]
		if !ok {
			continue
		}
		arg, err := columnArg(value)
		if err != nil {
			return types.User{}, fmt.Errorf("%s: %w", column, err)
		}
		args = append(args, arg)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := `UPDATE users SET ` + strings.Join(sets, ", ") +
		fmt.Sprintf(` WHERE id = $%d RETURNING `, len(args)) + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, args...))
}

// AppendCertificates atomically appends certs to the user's certificate list
// and returns the resulting list.
func (r *UserRepository) AppendCertificates(ctx context.Context, id int64, certs []types.Certificate) ([]types.Certificate, error) {
	payload, err := marshalList(certs)
	if err != nil {
		return nil, err
	}

	const query = `
		UPDATE users
		SET certificates = certificates || $1::jsonb,
			updated_at = $2
		WHERE id = $3
		RETURNING certificates`
	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, payload, time.Now().UTC(), id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	all := []types.Certificate{}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	return all, nil
}

// SetProfileImage replaces the profile image URL.
func (r *UserRepository) SetProfileImage(ctx context.Context, id int64, url string) error {
	const query = `UPDATE users SET profile_image_url = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, query, url, time.Now().UTC(), id)
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, query, passwordHash, time.Now().UTC(), id)
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// marshalList encodes a slice as a JSON array, never as null.
func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func nullableString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}
