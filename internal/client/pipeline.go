package client

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/growhive/apiserver/types"
)

// Step is a screen of the profile completion flow.
type Step int

const (
	StepDateOfBirth Step = iota
	StepPersonalDetails
	StepSkills
	StepCertificates
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepDateOfBirth:
		return "date of birth"
	case StepPersonalDetails:
		return "personal details"
	case StepSkills:
		return "skills"
	case StepCertificates:
		return "certificates"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

var (
	ErrStepOutOfOrder = errors.New("profile step submitted out of order")
	ErrBackNotAllowed = errors.New("cannot go back from this step")
)

const maxCertificatesPerBatch = 5

const (
	ErrDateOfBirthRequired UserError = "Please select your date of birth."
	ErrPersonalDetails     UserError = "Please fill in all personal details."
	ErrInvalidGender       UserError = "Please select a valid gender."
	ErrWorkLinksRequired   UserError = "Please fill in Work Links and Achievements."
	ErrTooManyCertificates UserError = "You can upload at most 5 certificates."
	ErrSelectDomain        UserError = "Please select a domain to add."
	ErrDomainAlreadyAdded  UserError = "This domain has already been added."
	ErrDomainNameRequired  UserError = "Please enter a domain name."
	ErrDomainExists        UserError = "This domain already exists."
	ErrNoDomainSelected    UserError = "No domain selected."
	ErrSkillAndProficiency UserError = "Please select skill and proficiency."
	ErrSelectProficiency   UserError = "Please select proficiency."
	ErrSkillExists         UserError = "This skill already exists in the selected domain."
	ErrSkillNotFound       UserError = "Skill not found."
	ErrSelectSkillToLearn  UserError = "Please select a domain and skill to learn."
	ErrSkillToLearnExists  UserError = "This skill is already in your learning list."
)

// ProfileAPI is the part of Client used while completing a profile.
type ProfileAPI interface {
	CompleteProfile(ctx context.Context, token string, fields map[string]any) (types.User, error)
	UploadCertificates(ctx context.Context, token string, files []File) (CertificatesResult, error)
}

// PersonalDetails is the second step's form.
type PersonalDetails struct {
	Gender      types.Gender
	Education   string
	University  string
	Location    string
	PhoneNumber string
	Bio         string
}

// CertificatesForm is the last step's form. Files are optional.
type CertificatesForm struct {
	Files        []File
	WorkLinks    string
	Achievements string
}

// Pipeline walks a freshly registered user through profile completion.
// Steps run strictly in order and each one sends only its own fields.
type Pipeline struct {
	api    ProfileAPI
	token  string
	userID int64
	step   Step

	// Profile is the server's view after the last successful step.
	Profile types.User
	// Certificates is set once the last step's upload succeeded, so a retry
	// after a failed patch does not upload the same files twice.
	Certificates []types.Certificate
	uploaded     bool
}

func NewPipeline(api ProfileAPI, token string, userID int64) *Pipeline {
	return &Pipeline{api: api, token: token, userID: userID, step: StepDateOfBirth}
}

func (p *Pipeline) Step() Step    { return p.step }
func (p *Pipeline) Token() string { return p.token }
func (p *Pipeline) UserID() int64 { return p.userID }
func (p *Pipeline) Done() bool    { return p.step == StepDone }

// Back returns to the previous step. The date of birth step is the first
// screen after signup and has nowhere to go back to.
func (p *Pipeline) Back() error {
	if p.step == StepDateOfBirth || p.step == StepDone {
		return ErrBackNotAllowed
	}
	p.step--
	return nil
}

func (p *Pipeline) expect(step Step) error {
	if p.step != step {
		return ErrStepOutOfOrder
	}
	return nil
}

func (p *Pipeline) patch(ctx context.Context, fields map[string]any) error {
	profile, err := p.api.CompleteProfile(ctx, p.token, fields)
	if err != nil {
		return err
	}
	p.Profile = profile
	return nil
}

func (p *Pipeline) SubmitDateOfBirth(ctx context.Context, dob time.Time) error {
	if err := p.expect(StepDateOfBirth); err != nil {
		return err
	}
	if dob.IsZero() {
		return ErrDateOfBirthRequired
	}
	if err := p.patch(ctx, map[string]any{"dateOfBirth": types.NewDate(dob).String()}); err != nil {
		return err
	}
	p.step = StepPersonalDetails
	return nil
}

func (p *Pipeline) SubmitPersonalDetails(ctx context.Context, d PersonalDetails) error {
	if err := p.expect(StepPersonalDetails); err != nil {
		return err
	}
	fields := map[string]any{
		"gender":      string(d.Gender),
		"education":   strings.TrimSpace(d.Education),
		"university":  strings.TrimSpace(d.University),
		"location":    strings.TrimSpace(d.Location),
		"phoneNumber": strings.TrimSpace(d.PhoneNumber),
		"bio":         strings.TrimSpace(d.Bio),
	}
	for _, value := range fields {
		if value == "" {
			return ErrPersonalDetails
		}
	}
	if !d.Gender.Valid() {
		return ErrInvalidGender
	}
	if err := p.patch(ctx, fields); err != nil {
		return err
	}
	p.step = StepSkills
	return nil
}

// SubmitSkills sends the builder's content. Nothing is required.
func (p *Pipeline) SubmitSkills(ctx context.Context, b *SkillsBuilder) error {
	if err := p.expect(StepSkills); err != nil {
		return err
	}
	if err := p.patch(ctx, b.Payload()); err != nil {
		return err
	}
	p.step = StepCertificates
	return nil
}

// SubmitCertificates uploads the selected files, if any, then saves the work
// links and achievements. When the second call fails the uploaded
// certificates stay on the profile and a retry only repeats the patch.
func (p *Pipeline) SubmitCertificates(ctx context.Context, form CertificatesForm) error {
	if err := p.expect(StepCertificates); err != nil {
		return err
	}
	workLinks := strings.TrimSpace(form.WorkLinks)
	achievements := strings.TrimSpace(form.Achievements)
	if workLinks == "" || achievements == "" {
		return ErrWorkLinksRequired
	}
	if len(form.Files) > maxCertificatesPerBatch {
		return ErrTooManyCertificates
	}

	if len(form.Files) > 0 && !p.uploaded {
		result, err := p.api.UploadCertificates(ctx, p.token, form.Files)
		if err != nil {
			return err
		}
		p.Certificates = result.UserCertificates
		p.uploaded = true
	}

	if err := p.patch(ctx, map[string]any{"workLinks": workLinks, "achievements": achievements}); err != nil {
		return err
	}
	p.step = StepDone
	return nil
}

type domainEntry struct {
	name   string
	skills []types.SkillOwned
}

// SkillsBuilder edits the skills step locally. Domains coined by the user
// live only in this builder's vocabulary and are never sent as domains.
type SkillsBuilder struct {
	vocabulary []string
	domains    []domainEntry
	toLearn    []types.SkillToLearn
}

func NewSkillsBuilder() *SkillsBuilder {
	return &SkillsBuilder{vocabulary: slices.Clone(types.Domains)}
}

// Vocabulary lists the domains that can be picked, including coined ones.
func (b *SkillsBuilder) Vocabulary() []string {
	return slices.Clone(b.vocabulary)
}

// Domains lists the added domains in insertion order.
func (b *SkillsBuilder) Domains() []string {
	names := make([]string, 0, len(b.domains))
	for _, d := range b.domains {
		names = append(names, d.name)
	}
	return names
}

// Skills returns the skills added under domain.
func (b *SkillsBuilder) Skills(domain string) []types.SkillOwned {
	if i := b.domainIndex(domain); i >= 0 {
		return slices.Clone(b.domains[i].skills)
	}
	return nil
}

func (b *SkillsBuilder) SkillsToLearn() []types.SkillToLearn {
	return slices.Clone(b.toLearn)
}

// CreateDomain adds a user-coined domain to the session vocabulary.
func (b *SkillsBuilder) CreateDomain(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrDomainNameRequired
	}
	if slices.Contains(b.vocabulary, name) {
		return ErrDomainExists
	}
	b.vocabulary = append(b.vocabulary, name)
	return nil
}

func (b *SkillsBuilder) AddDomain(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || !slices.Contains(b.vocabulary, name) {
		return ErrSelectDomain
	}
	if b.domainIndex(name) >= 0 {
		return ErrDomainAlreadyAdded
	}
	b.domains = append(b.domains, domainEntry{name: name})
	return nil
}

// RemoveDomain drops the domain together with its skills.
func (b *SkillsBuilder) RemoveDomain(name string) error {
	i := b.domainIndex(name)
	if i < 0 {
		return ErrNoDomainSelected
	}
	b.domains = slices.Delete(b.domains, i, i+1)
	return nil
}

func (b *SkillsBuilder) AddSkill(domain, skill string, proficiency types.Proficiency) error {
	i := b.domainIndex(domain)
	if i < 0 {
		return ErrNoDomainSelected
	}
	skill = strings.TrimSpace(skill)
	if skill == "" || !proficiency.Valid() {
		return ErrSkillAndProficiency
	}
	if b.skillIndex(i, skill) >= 0 {
		return ErrSkillExists
	}
	b.domains[i].skills = append(b.domains[i].skills, types.SkillOwned{
		Skill:       skill,
		Proficiency: proficiency,
		Domain:      b.domains[i].name,
	})
	return nil
}

func (b *SkillsBuilder) SetProficiency(domain, skill string, proficiency types.Proficiency) error {
	i := b.domainIndex(domain)
	if i < 0 {
		return ErrNoDomainSelected
	}
	if !proficiency.Valid() {
		return ErrSelectProficiency
	}
	j := b.skillIndex(i, skill)
	if j < 0 {
		return ErrSkillNotFound
	}
	b.domains[i].skills[j].Proficiency = proficiency
	return nil
}

func (b *SkillsBuilder) RemoveSkill(domain, skill string) error {
	i := b.domainIndex(domain)
	if i < 0 {
		return ErrNoDomainSelected
	}
	j := b.skillIndex(i, skill)
	if j < 0 {
		return ErrSkillNotFound
	}
	b.domains[i].skills = slices.Delete(b.domains[i].skills, j, j+1)
	return nil
}

func (b *SkillsBuilder) AddSkillToLearn(domain, skill string) error {
	domain = strings.TrimSpace(domain)
	skill = strings.TrimSpace(skill)
	if domain == "" || skill == "" || !slices.Contains(b.vocabulary, domain) {
		return ErrSelectSkillToLearn
	}
	entry := types.SkillToLearn{Skill: skill, Domain: domain}
	if slices.Contains(b.toLearn, entry) {
		return ErrSkillToLearnExists
	}
	b.toLearn = append(b.toLearn, entry)
	return nil
}

func (b *SkillsBuilder) RemoveSkillToLearn(domain, skill string) error {
	i := slices.Index(b.toLearn, types.SkillToLearn{Skill: skill, Domain: domain})
	if i < 0 {
		return ErrSkillNotFound
	}
	b.toLearn = slices.Delete(b.toLearn, i, i+1)
	return nil
}

// Payload is the skills step's profile update. Owned skills keep their
// domain even when it was coined; the domains list only carries
// vocabulary domains because the server rejects anything else there.
func (b *SkillsBuilder) Payload() map[string]any {
	owned := []types.SkillOwned{}
	domains := []string{}
	for _, d := range b.domains {
		owned = append(owned, d.skills...)
		if types.IsKnownDomain(d.name) {
			domains = append(domains, d.name)
		}
	}
	toLearn := b.toLearn
	if toLearn == nil {
		toLearn = []types.SkillToLearn{}
	}
	return map[string]any{
		"skillsOwned":   owned,
		"skillsToLearn": toLearn,
		"domains":       domains,
	}
}

func (b *SkillsBuilder) domainIndex(name string) int {
	return slices.IndexFunc(b.domains, func(d domainEntry) bool { return d.name == name })
}

func (b *SkillsBuilder) skillIndex(domain int, skill string) int {
	return slices.IndexFunc(b.domains[domain].skills, func(s types.SkillOwned) bool { return s.Skill == skill })
}
