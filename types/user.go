package types

import "time"

// User represents an account in the system.
// It contains identity, demographics filled in during onboarding, and the
// user's skill graph.
type User struct {
	// ID is the unique identifier of the user.
	ID int64 `json:"_id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address, stored lowercased. It is unique
	// across all users.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsVerified reports whether the email was proven through an OTP
	// verification before the account was created.
	IsVerified bool `json:"isVerified" db:"is_verified"`

	// DateOfBirth is the user's birth date, without a time component.
	DateOfBirth *Date `json:"dateOfBirth" db:"date_of_birth"`

	// Gender is one of the Gender values, or nil when unset.
	Gender *Gender `json:"gender" db:"gender"`

	Education   *string `json:"education" db:"education"`
	University  *string `json:"university" db:"university"`
	Location    *string `json:"location" db:"location"`
	PhoneNumber *string `json:"phoneNumber" db:"phone_number"`

	// Bio is a short free-text description, at most MaxBioLength characters.
	Bio *string `json:"bio" db:"bio"`

	// SkillsOwned is the ordered list of skills the user already has.
	SkillsOwned []SkillOwned `json:"skillsOwned" db:"skills_owned"`

	// SkillsToLearn is the ordered list of skills the user wants to acquire.
	SkillsToLearn []SkillToLearn `json:"skillsToLearn" db:"skills_to_learn"`

	// Domains is the set of vocabulary domains the user works in.
	Domains []string `json:"domains" db:"domains"`

	// Certificates lists uploaded certificate files. It only ever grows.
	Certificates []Certificate `json:"certificates" db:"certificates"`

	// ProfileImageURL is the public path of the current profile picture.
	ProfileImageURL *string `json:"profileImageUrl" db:"profile_image_url"`

	// WorkLinks is free text with links to the user's work.
	WorkLinks *string `json:"workLinks" db:"work_links"`

	// Achievements is free text describing notable achievements.
	Achievements *string `json:"achievements" db:"achievements"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Certificate is an uploaded certificate document attached to a profile.
type Certificate struct {
	// Name is the original filename supplied by the client.
	Name string `json:"name"`

	// URL is the public path under which the file is served.
	URL string `json:"url"`

	// UploadedAt is when the certificate was stored.
	UploadedAt time.Time `json:"uploadedAt"`
}

// MaxBioLength is the maximum number of characters in User.Bio.
const MaxBioLength = 500
