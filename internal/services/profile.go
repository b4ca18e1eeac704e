package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/growhive/apiserver/internal/store"
	"github.com/growhive/apiserver/types"
	"go.uber.org/zap"
)

// optional is a scalar field that was present in a payload. A nil Value
// clears the field.
type optional[T any] struct {
	Set   bool
	Value *T
}

func (o optional[T]) addTo(changes store.ProfileChanges, column string) {
	if !o.Set {
		return
	}
	if o.Value == nil {
		changes[column] = nil
		return
	}
	changes[column] = *o.Value
}

// ProfileUpdate is a validated partial profile. Nil slices and unset
// optionals leave the stored value untouched.
type ProfileUpdate struct {
	SkillsOwned   []types.SkillOwned
	SkillsToLearn []types.SkillToLearn
	Domains       []string

	DateOfBirth     optional[types.Date]
	Gender          optional[types.Gender]
	Education       optional[string]
	University      optional[string]
	Location        optional[string]
	PhoneNumber     optional[string]
	Bio             optional[string]
	WorkLinks       optional[string]
	Achievements    optional[string]
	ProfileImageURL optional[string]
}

// Changes returns the columns this update writes. Fields the payload did not
// mention are absent, so the stored values stay untouched.
func (u ProfileUpdate) Changes() store.ProfileChanges {
	changes := store.ProfileChanges{}
	if u.SkillsOwned != nil {
		changes["skills_owned"] = u.SkillsOwned
	}
	if u.SkillsToLearn != nil {
		changes["skills_to_learn"] = u.SkillsToLearn
	}
	if u.Domains != nil {
		changes["domains"] = u.Domains
	}
	u.DateOfBirth.addTo(changes, "date_of_birth")
	u.Gender.addTo(changes, "gender")
	u.Education.addTo(changes, "education")
	u.University.addTo(changes, "university")
	u.Location.addTo(changes, "location")
	u.PhoneNumber.addTo(changes, "phone_number")
	u.Bio.addTo(changes, "bio")
	u.WorkLinks.addTo(changes, "work_links")
	u.Achievements.addTo(changes, "achievements")
	u.ProfileImageURL.addTo(changes, "profile_image_url")
	return changes
}

type fieldDecoder struct {
	key    string
	decode func(raw json.RawMessage, u *ProfileUpdate, now time.Time) error
}

// profileFields is the complete set of client-writable profile keys, in the
// order they are validated. Any other key is ignored.
var profileFields = []fieldDecoder{
	{"skillsOwned", decodeSkillsOwned},
	{"skillsToLearn", decodeSkillsToLearn},
	{"domains", decodeDomains},
	{"dateOfBirth", decodeDateOfBirth},
	{"gender", decodeGender},
	{"education", stringField("education", func(u *ProfileUpdate) *optional[string] { return &u.Education })},
	{"university", stringField("university", func(u *ProfileUpdate) *optional[string] { return &u.University })},
	{"location", stringField("location", func(u *ProfileUpdate) *optional[string] { return &u.Location })},
	{"phoneNumber", stringField("phoneNumber", func(u *ProfileUpdate) *optional[string] { return &u.PhoneNumber })},
	{"bio", decodeBio},
	{"workLinks", stringField("workLinks", func(u *ProfileUpdate) *optional[string] { return &u.WorkLinks })},
	{"achievements", stringField("achievements", func(u *ProfileUpdate) *optional[string] { return &u.Achievements })},
	{"profileImageUrl", stringField("profileImageUrl", func(u *ProfileUpdate) *optional[string] { return &u.ProfileImageURL })},
}

// ParseProfileUpdate validates every recognised key of payload. It fails on
// the first invalid field and never returns a partial update.
func ParseProfileUpdate(payload map[string]json.RawMessage, now time.Time) (ProfileUpdate, error) {
	var update ProfileUpdate
	for _, field := range profileFields {
		raw, ok := payload[field.key]
		if !ok {
			continue
		}
		if err := field.decode(raw, &update, now); err != nil {
			return ProfileUpdate{}, err
		}
	}
	return update, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeArray splits raw into its elements. ok is false when raw is null.
func decodeArray(raw json.RawMessage, field string) ([]json.RawMessage, bool, error) {
	if isNull(raw) {
		return nil, false, nil
	}
	var items []json.RawMessage
	if bytes.TrimSpace(raw)[0] != '[' || json.Unmarshal(raw, &items) != nil {
		return nil, false, validationf("%s must be an array", field)
	}
	return items, true, nil
}

func decodeSkillsOwned(raw json.RawMessage, u *ProfileUpdate, _ time.Time) error {
	items, ok, err := decodeArray(raw, "skillsOwned")
	if err != nil || !ok {
		return err
	}
	skills := make([]types.SkillOwned, 0, len(items))
	for _, item := range items {
		var entry types.SkillOwned
		if err := json.Unmarshal(item, &entry); err != nil {
			return validationf("Each owned skill must have skill, proficiency, and domain")
		}
		entry.Skill = strings.TrimSpace(entry.Skill)
		entry.Domain = strings.TrimSpace(entry.Domain)
		if entry.Skill == "" || entry.Domain == "" || entry.Proficiency == "" {
			return validationf("Each owned skill must have skill, proficiency, and domain")
		}
		if !entry.Proficiency.Valid() {
			return validationf("Invalid proficiency level")
		}
		skills = append(skills, entry)
	}
	u.SkillsOwned = skills
	return nil
}

func decodeSkillsToLearn(raw json.RawMessage, u *ProfileUpdate, _ time.Time) error {
	items, ok, err := decodeArray(raw, "skillsToLearn")
	if err != nil || !ok {
		return err
	}
	skills := make([]types.SkillToLearn, 0, len(items))
	for _, item := range items {
		var entry types.SkillToLearn
		if err := json.Unmarshal(item, &entry); err != nil {
			return validationf("Each skill to learn must have skill and domain")
		}
		entry.Skill = strings.TrimSpace(entry.Skill)
		entry.Domain = strings.TrimSpace(entry.Domain)
		if entry.Skill == "" || entry.Domain == "" {
			return validationf("Each skill to learn must have skill and domain")
		}
		skills = append(skills, entry)
	}
	u.SkillsToLearn = skills
	return nil
}

func decodeDomains(raw json.RawMessage, u *ProfileUpdate, _ time.Time) error {
	items, ok, err := decodeArray(raw, "domains")
	if err != nil || !ok {
		return err
	}
	domains := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		var name string
		if err := json.Unmarshal(item, &name); err != nil {
			return validationf("Invalid domain: %s", strings.TrimSpace(string(item)))
		}
		if !types.IsKnownDomain(name) {
			return validationf("Invalid domain: %s", name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		domains = append(domains, name)
	}
	u.Domains = domains
	return nil
}

func decodeString(raw json.RawMessage, field string) (optional[string], error) {
	if isNull(raw) {
		return optional[string]{Set: true}, nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return optional[string]{}, validationf("%s must be a string", field)
	}
	value = strings.TrimSpace(value)
	return optional[string]{Set: true, Value: &value}, nil
}

func stringField(field string, target func(*ProfileUpdate) *optional[string]) func(json.RawMessage, *ProfileUpdate, time.Time) error {
	return func(raw json.RawMessage, u *ProfileUpdate, _ time.Time) error {
		value, err := decodeString(raw, field)
		if err != nil {
			return err
		}
		*target(u) = value
		return nil
	}
}

func decodeBio(raw json.RawMessage, u *ProfileUpdate, _ time.Time) error {
	value, err := decodeString(raw, "bio")
	if err != nil {
		return err
	}
	if value.Value != nil && utf8.RuneCountInString(*value.Value) > types.MaxBioLength {
		return validationf("Bio cannot exceed %d characters", types.MaxBioLength)
	}
	u.Bio = value
	return nil
}

func decodeGender(raw json.RawMessage, u *ProfileUpdate, _ time.Time) error {
	value, err := decodeString(raw, "gender")
	if err != nil {
		return err
	}
	if value.Value == nil {
		u.Gender = optional[types.Gender]{Set: true}
		return nil
	}
	gender := types.Gender(*value.Value)
	if !gender.Valid() {
		return validationf("Invalid gender")
	}
	u.Gender = optional[types.Gender]{Set: true, Value: &gender}
	return nil
}

func decodeDateOfBirth(raw json.RawMessage, u *ProfileUpdate, now time.Time) error {
	value, err := decodeString(raw, "dateOfBirth")
	if err != nil {
		return err
	}
	if value.Value == nil {
		u.DateOfBirth = optional[types.Date]{Set: true}
		return nil
	}
	date, err := types.ParseDate(*value.Value)
	if err != nil {
		return validationf("Invalid date of birth")
	}
	if date.After(now) {
		return validationf("Date of birth cannot be in the future")
	}
	u.DateOfBirth = optional[types.Date]{Set: true, Value: &date}
	return nil
}

// ProfileService applies partial profile updates.
type ProfileService struct {
	users  UserRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewProfileService(users UserRepository, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{users: users, logger: logger, now: time.Now}
}

// Complete validates payload and writes the supplied fields of userID's
// profile in a single statement. Nothing is written when validation fails.
func (s *ProfileService) Complete(ctx context.Context, userID int64, payload map[string]json.RawMessage) (types.User, error) {
	update, err := ParseProfileUpdate(payload, s.now())
	if err != nil {
		return types.User{}, err
	}

	changes := update.Changes()
	updated, err := s.users.UpdateProfile(ctx, userID, changes)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("update profile: %w", err)
	}
	s.logger.Debug("profile updated", zap.Int64("user_id", userID), zap.Int("fields", len(changes)))
	return updated, nil
}
