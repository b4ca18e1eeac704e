//go:build e2e

package e2e

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/growhive/apiserver/config"
	"github.com/growhive/apiserver/internal/client"
	"github.com/growhive/apiserver/internal/db"
	"github.com/growhive/apiserver/internal/server"
	"github.com/growhive/apiserver/types"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setTestEnv()

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown(context.Background())
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

// codeCapture records the code echoed by a development server.
type codeCapture struct {
	*client.Client
	last string
}

func (c *codeCapture) SendOTP(ctx context.Context, email string) (client.SendOTPResult, error) {
	res, err := c.Client.SendOTP(ctx, email)
	if err == nil {
		c.last = res.OTP
	}
	return res, err
}

func TestOnboarding(t *testing.T) {
	ctx := context.Background()
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	api := &codeCapture{Client: client.New(baseURL, nil)}
	email := fmt.Sprintf("user_%d@example.com", time.Now().UnixNano())

	flow := client.NewSignupFlow(api)
	flow.Session = flow.Session.EditEmail(email)
	if err := flow.RequestOTP(ctx); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	if len(api.last) != client.OTPLength {
		t.Fatalf("expected otp in development response, got %q", api.last)
	}

	next, err := flow.Session.SetCode(api.last)
	if err != nil {
		t.Fatalf("set code: %v", err)
	}
	flow.Session = next
	if err := flow.VerifyOTP(ctx); err != nil {
		t.Fatalf("verify otp: %v", err)
	}

	flow.Session = flow.Session.SetName("Test User").SetPassword("secret123")
	result, err := flow.Submit(ctx)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if result.Token == "" || result.ID == 0 {
		t.Fatalf("unexpected signup result: %+v", result)
	}
	if !result.IsVerified {
		t.Fatalf("expected verified account")
	}

	pipeline := client.NewPipeline(api, result.Token, result.ID)
	if err := pipeline.SubmitDateOfBirth(ctx, time.Date(2000, 5, 17, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("date of birth: %v", err)
	}
	if err := pipeline.SubmitPersonalDetails(ctx, client.PersonalDetails{
		Gender:      types.GenderFemale,
		Education:   "BSc",
		University:  "State University",
		Location:    "Lisbon",
		PhoneNumber: "+351000000",
		Bio:         "Learning things.",
	}); err != nil {
		t.Fatalf("personal details: %v", err)
	}

	skills := client.NewSkillsBuilder()
	mustNoErr(t, skills.AddDomain("Web Development"))
	mustNoErr(t, skills.AddSkill("Web Development", "Go", types.ProficiencyAdvanced))
	mustNoErr(t, skills.AddSkillToLearn("Data Science", "Statistics"))
	if err := pipeline.SubmitSkills(ctx, skills); err != nil {
		t.Fatalf("skills: %v", err)
	}

	pdf := client.File{Name: "cert.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4\n%%EOF\n")}
	if err := pipeline.SubmitCertificates(ctx, client.CertificatesForm{
		Files:        []client.File{pdf},
		WorkLinks:    "https://example.com",
		Achievements: "Shipped",
	}); err != nil {
		t.Fatalf("certificates: %v", err)
	}
	if len(pipeline.Certificates) != 1 {
		t.Fatalf("expected one certificate, got %d", len(pipeline.Certificates))
	}

	profile, err := api.Profile(ctx, result.Token)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.DateOfBirth == nil || profile.DateOfBirth.String() != "2000-05-17" {
		t.Fatalf("unexpected date of birth: %v", profile.DateOfBirth)
	}
	if len(profile.SkillsOwned) != 1 || profile.SkillsOwned[0].Skill != "Go" {
		t.Fatalf("unexpected skills: %+v", profile.SkillsOwned)
	}
	if profile.WorkLinks == nil || *profile.WorkLinks != "https://example.com" {
		t.Fatalf("unexpected work links: %v", profile.WorkLinks)
	}

	resp, err := http.Get(baseURL + pipeline.Certificates[0].URL)
	if err != nil {
		t.Fatalf("fetch certificate: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(data) != string(pdf.Data) {
		t.Fatalf("unexpected certificate response %d: %q", resp.StatusCode, data)
	}

	login, err := api.Login(ctx, email, "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.ID != result.ID {
		t.Fatalf("login returned user %d, want %d", login.ID, result.ID)
	}

	_, err = api.Login(ctx, email, "wrong-password")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid credentials" {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestSendOTPRejectsRegisteredEmail(t *testing.T) {
	ctx := context.Background()
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	api := &codeCapture{Client: client.New(baseURL, nil)}
	email := fmt.Sprintf("dup_%d@example.com", time.Now().UnixNano())

	if _, err := api.SendOTP(ctx, email); err != nil {
		t.Fatalf("send otp: %v", err)
	}
	if err := api.VerifyOTP(ctx, email, api.last); err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	if _, err := api.Signup(ctx, "Dup", email, "secret123"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	_, err := api.Client.SendOTP(ctx, email)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 for registered email, got %v", err)
	}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func setTestEnv() {
	_ = os.Setenv("ENV", "development")
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "growhive")
	_ = os.Setenv("DB_PASSWORD", "growhive")
	_ = os.Setenv("DB_NAME", "growhive")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "growhive")
	_ = os.Setenv("REDIS_URL", "redis://localhost:6379/0")
	_ = os.Setenv("OTP_RESEND_COOLDOWN", "1s")
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.URL(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	httpClient := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New(migrationsURL, db.URL(cfg.Database))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func startServer(ctx context.Context) (*server.Server, error) {
	cfg := config.LoadConfig()
	srv, err := server.New(ctx, cfg, zap.NewNop())
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
