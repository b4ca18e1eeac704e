/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/growhive/apiserver/internal/client"
	"github.com/growhive/apiserver/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var onboardAPI string

// onboardCmd walks through signup and profile completion against a running server.
var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Create an account and complete a profile interactively",
	Long: `Runs the app's signup and profile completion screens in the terminal:
email verification, account creation, then date of birth, personal details,
skills and certificates.

	growhive onboard --api http://localhost:8080
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout()}
		api := client.New(onboardAPI, nil)
		ctx := cmd.Context()

		result, err := runSignup(ctx, p, client.NewSignupFlow(api))
		if err != nil {
			return err
		}
		p.say("Account created for %s.", result.Email)

		pipeline := client.NewPipeline(api, result.Token, result.ID)
		if err := runProfile(ctx, p, pipeline); err != nil {
			return err
		}
		p.say("Profile complete.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(onboardCmd)
	onboardCmd.Flags().StringVar(&onboardAPI, "api", "http://localhost:8080", "base URL of the GrowHive API")
}

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *prompter) say(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *prompter) ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// secret reads without echo when stdin is a terminal.
func (p *prompter) secret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return p.ask(label)
	}
	fmt.Fprintf(p.out, "%s: ", label)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func runSignup(ctx context.Context, p *prompter, flow *client.SignupFlow) (client.AuthResult, error) {
	for flow.Session.State != client.StateOTPSent {
		email, err := p.ask("Email")
		if err != nil {
			return client.AuthResult{}, err
		}
		flow.Session = flow.Session.EditEmail(email)
		if err := flow.RequestOTP(ctx); err != nil {
			p.say("%s", flow.Session.Message)
		}
	}
	p.say("%s", flow.Session.Message)

	for flow.Session.State == client.StateOTPSent {
		code, err := p.ask("Verification code (empty to resend)")
		if err != nil {
			return client.AuthResult{}, err
		}
		if code == "" {
			if err := flow.RequestOTP(ctx); err != nil {
				p.say("%s", flow.Session.Message)
			}
			continue
		}
		next, err := flow.Session.SetCode(code)
		if err != nil {
			p.say("%s", client.Message(err))
			continue
		}
		flow.Session = next
		if err := flow.VerifyOTP(ctx); err != nil {
			p.say("%s", flow.Session.Message)
		}
	}
	p.say("%s", flow.Session.Message)

	for {
		name, err := p.ask("Name")
		if err != nil {
			return client.AuthResult{}, err
		}
		password, err := p.secret("Password")
		if err != nil {
			return client.AuthResult{}, err
		}
		flow.Session = flow.Session.SetName(name).SetPassword(password)
		result, err := flow.Submit(ctx)
		if err == nil {
			return result, nil
		}
		p.say("%s", flow.Session.Message)
	}
}

func runProfile(ctx context.Context, p *prompter, pipeline *client.Pipeline) error {
	for !pipeline.Done() {
		var err error
		switch pipeline.Step() {
		case client.StepDateOfBirth:
			err = askDateOfBirth(ctx, p, pipeline)
		case client.StepPersonalDetails:
			err = askPersonalDetails(ctx, p, pipeline)
		case client.StepSkills:
			err = askSkills(ctx, p, pipeline)
		case client.StepCertificates:
			err = askCertificates(ctx, p, pipeline)
		}
		if err == nil {
			continue
		}
		if client.IsUnauthorized(err) || errors.Is(err, io.EOF) {
			return err
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) || client.IsUserError(err) {
			p.say("%s", client.Message(err))
			continue
		}
		p.say("%v", err)
	}
	return nil
}

func askDateOfBirth(ctx context.Context, p *prompter, pipeline *client.Pipeline) error {
	raw, err := p.ask("Date of birth (YYYY-MM-DD)")
	if err != nil {
		return err
	}
	var dob time.Time
	if raw != "" {
		parsed, err := types.ParseDate(raw)
		if err != nil {
			return client.ErrDateOfBirthRequired
		}
		dob = parsed.Time
	}
	return pipeline.SubmitDateOfBirth(ctx, dob)
}

func askPersonalDetails(ctx context.Context, p *prompter, pipeline *client.Pipeline) error {
	var d client.PersonalDetails
	options := make([]string, 0, len(types.Genders))
	for _, g := range types.Genders {
		options = append(options, string(g))
	}
	fields := []struct {
		label string
		dst   *string
	}{
		{"Education", &d.Education},
		{"University", &d.University},
		{"Location", &d.Location},
		{"Phone number", &d.PhoneNumber},
		{"Bio", &d.Bio},
	}

	gender, err := p.ask("Gender (" + strings.Join(options, ", ") + ")")
	if err != nil {
		return err
	}
	d.Gender = types.Gender(gender)
	for _, f := range fields {
		if *f.dst, err = p.ask(f.label); err != nil {
			return err
		}
	}
	return pipeline.SubmitPersonalDetails(ctx, d)
}

// askSkills reads "domain | skill | proficiency" lines for owned skills and
// "domain | skill" lines for skills to learn, each list ending at an empty line.
func askSkills(ctx context.Context, p *prompter, pipeline *client.Pipeline) error {
	b := client.NewSkillsBuilder()
	p.say("Known domains: %s", strings.Join(b.Vocabulary(), ", "))

	p.say("Skills you have, as domain | skill | proficiency. Empty line to finish.")
	for {
		line, err := p.ask(">")
		if err != nil {
			return err
		}
		if line == "" {
			break
		}
		parts := splitFields(line, 3)
		if parts == nil {
			p.say("%s", client.ErrSkillAndProficiency)
			continue
		}
		if err := addOwnedSkill(b, parts[0], parts[1], types.Proficiency(parts[2])); err != nil {
			p.say("%s", client.Message(err))
		}
	}

	p.say("Skills you want to learn, as domain | skill. Empty line to finish.")
	for {
		line, err := p.ask(">")
		if err != nil {
			return err
		}
		if line == "" {
			break
		}
		parts := splitFields(line, 2)
		if parts == nil {
			p.say("%s", client.ErrSelectSkillToLearn)
			continue
		}
		if err := b.AddSkillToLearn(parts[0], parts[1]); err != nil {
			p.say("%s", client.Message(err))
		}
	}
	return pipeline.SubmitSkills(ctx, b)
}

func addOwnedSkill(b *client.SkillsBuilder, domain, skill string, level types.Proficiency) error {
	if !slices.Contains(b.Vocabulary(), domain) {
		if err := b.CreateDomain(domain); err != nil {
			return err
		}
	}
	if !slices.Contains(b.Domains(), domain) {
		if err := b.AddDomain(domain); err != nil {
			return err
		}
	}
	return b.AddSkill(domain, skill, level)
}

func askCertificates(ctx context.Context, p *prompter, pipeline *client.Pipeline) error {
	paths, err := p.ask("Certificate PDF paths (comma separated, optional)")
	if err != nil {
		return err
	}
	var files []client.File
	for _, path := range strings.Split(paths, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files = append(files, client.File{Name: filepath.Base(path), ContentType: contentType, Data: data})
	}

	workLinks, err := p.ask("Work links")
	if err != nil {
		return err
	}
	achievements, err := p.ask("Achievements")
	if err != nil {
		return err
	}
	return pipeline.SubmitCertificates(ctx, client.CertificatesForm{
		Files:        files,
		WorkLinks:    workLinks,
		Achievements: achievements,
	})
}

func splitFields(line string, n int) []string {
	parts := strings.Split(line, "|")
	if len(parts) != n {
		return nil
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
