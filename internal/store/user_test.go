package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/growhive/apiserver/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumnNames = []string{
	"id", "name", "email", "password_hash", "is_verified", "date_of_birth", "gender",
	"education", "university", "location", "phone_number", "bio",
	"skills_owned", "skills_to_learn", "domains", "certificates",
	"profile_image_url", "work_links", "achievements", "created_at", "updated_at",
}

func TestUserRepositoryGetByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows(userColumnNames).AddRow(
		int64(3), "Ada", "ada@example.com", "hash", true,
		time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC), "Female",
		"BSc", nil, "London", nil, "hello",
		[]byte(`[{"skill":"Go","proficiency":"Expert","domain":"DevOps"}]`),
		[]byte(`[]`),
		[]byte(`["DevOps"]`),
		[]byte(`[{"name":"a.pdf","url":"/uploads/certificates/a.pdf","uploadedAt":"2026-01-02T03:04:05Z"}]`),
		nil, nil, nil, created, created,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("ada@example.com").
		WillReturnRows(rows)

	user, err := NewUserRepository(db).GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)

	assert.Equal(t, int64(3), user.ID)
	assert.True(t, user.IsVerified)
	require.NotNil(t, user.DateOfBirth)
	assert.Equal(t, "1990-04-02", user.DateOfBirth.String())
	require.NotNil(t, user.Gender)
	assert.Equal(t, types.GenderFemale, *user.Gender)
	assert.Equal(t, "BSc", *user.Education)
	assert.Nil(t, user.University)
	assert.Nil(t, user.ProfileImageURL)
	assert.Equal(t, []types.SkillOwned{{Skill: "Go", Proficiency: types.ProficiencyExpert, Domain: "DevOps"}}, user.SkillsOwned)
	assert.NotNil(t, user.SkillsToLearn)
	assert.Empty(t, user.SkillsToLearn)
	assert.Equal(t, []string{"DevOps"}, user.Domains)
	require.Len(t, user.Certificates, 1)
	assert.Equal(t, "a.pdf", user.Certificates[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(userColumnNames))

	_, err = NewUserRepository(db).GetByID(context.Background(), 9)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("Ada", "ada@example.com", "hash", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	user, err := NewUserRepository(db).Create(context.Background(), types.User{
		Name:         "Ada",
		Email:        "ada@example.com",
		PasswordHash: "hash",
		IsVerified:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), user.ID)
	assert.NotNil(t, user.Certificates)
	assert.False(t, user.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err = NewUserRepository(db).Create(context.Background(), types.User{Email: "ada@example.com"})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestUserRepositoryUpdateProfile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dob := types.NewDate(time.Date(1991, 1, 1, 0, 0, 0, 0, time.UTC))
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows(userColumnNames).AddRow(
		int64(4), "Ada", "ada@example.com", "hash", true,
		dob.Time, "Male", nil, nil, nil, nil, nil,
		[]byte(`[]`), []byte(`[]`), []byte(`["DevOps"]`), []byte(`[]`),
		"/uploads/profile_images/profileImage-4.png", nil, nil, created, created,
	)
	mock.ExpectQuery(regexp.QuoteMeta(
		"UPDATE users SET date_of_birth = $1, gender = $2, bio = $3, domains = $4, updated_at = $5 WHERE id = $6 RETURNING",
	)).
		WithArgs(dob.Time, "Male", nil, []byte(`["DevOps"]`), sqlmock.AnyArg(), int64(4)).
		WillReturnRows(rows)

	user, err := NewUserRepository(db).UpdateProfile(context.Background(), 4, ProfileChanges{
		"domains":       []string{"DevOps"},
		"bio":           nil,
		"gender":        types.GenderMale,
		"date_of_birth": dob,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.NotNil(t, user.ProfileImageURL, "columns outside the change set come back as stored")
	assert.Equal(t, "/uploads/profile_images/profileImage-4.png", *user.ProfileImageURL)
	assert.Nil(t, user.Bio)
	assert.Equal(t, []string{"DevOps"}, user.Domains)
}

func TestUserRepositoryUpdateProfileWritesOnlyNamedColumns(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`UPDATE users SET bio = $1, updated_at = $2 WHERE id = $3 RETURNING ` + userColumns).
		WithArgs("hello", sqlmock.AnyArg(), int64(4)).
		WillReturnError(sql.ErrNoRows)

	_, err = NewUserRepository(db).UpdateProfile(context.Background(), 4, ProfileChanges{"bio": "hello"})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryUpdateProfileRejectsUnknownColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewUserRepository(db).UpdateProfile(context.Background(), 4, ProfileChanges{"password_hash": "x"})
	require.ErrorContains(t, err, "password_hash")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryUpdateProfileNoChangesReads(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(int64(4)).
		WillReturnError(sql.ErrNoRows)

	_, err = NewUserRepository(db).UpdateProfile(context.Background(), 4, ProfileChanges{})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryScanRejectsCorruptList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows(userColumnNames).AddRow(
		int64(3), "Ada", "ada@example.com", "hash", true,
		nil, nil, nil, nil, nil, nil, nil,
		[]byte(`[{"skill":"Go"`), []byte(`[]`), []byte(`[]`), []byte(`[]`),
		nil, nil, nil, created, created,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(rows)

	_, err = NewUserRepository(db).GetByID(context.Background(), 3)
	require.ErrorContains(t, err, "decode skills_owned of user 3")
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestProfileChangesApply(t *testing.T) {
	bio := "keep"
	user := types.User{Bio: &bio, Domains: []string{"DevOps"}}
	dob := types.NewDate(time.Date(1991, 1, 1, 0, 0, 0, 0, time.UTC))

	ProfileChanges{
		"location":      "Paris",
		"gender":        types.GenderFemale,
		"date_of_birth": dob,
		"domains":       []string{"Web Development"},
	}.Apply(&user)

	assert.Equal(t, "keep", *user.Bio)
	assert.Equal(t, "Paris", *user.Location)
	assert.Equal(t, types.GenderFemale, *user.Gender)
	assert.Equal(t, dob, *user.DateOfBirth)
	assert.Equal(t, []string{"Web Development"}, user.Domains)

	ProfileChanges{"location": nil, "gender": nil}.Apply(&user)
	assert.Nil(t, user.Location)
	assert.Nil(t, user.Gender)
}

func TestUserRepositoryAppendCertificates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cert := types.Certificate{Name: "b.pdf", URL: "/uploads/certificates/b.pdf", UploadedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	mock.ExpectQuery(regexp.QuoteMeta("SET certificates = certificates || $1::jsonb")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"certificates"}).AddRow(
			[]byte(`[{"name":"a.pdf","url":"/uploads/certificates/a.pdf","uploadedAt":"2025-12-01T00:00:00Z"},` +
				`{"name":"b.pdf","url":"/uploads/certificates/b.pdf","uploadedAt":"2026-01-01T00:00:00Z"}]`),
		))

	all, err := NewUserRepository(db).AppendCertificates(context.Background(), 2, []types.Certificate{cert})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a.pdf", all[0].Name)
	assert.Equal(t, cert.URL, all[1].URL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositorySetProfileImageMissingUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET profile_image_url = $1")).
		WithArgs("/uploads/profile_images/profileImage-2.png", sqlmock.AnyArg(), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewUserRepository(db).SetProfileImage(context.Background(), 2, "/uploads/profile_images/profileImage-2.png")
	require.ErrorIs(t, err, ErrNotFound)
}
