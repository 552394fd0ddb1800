package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/samely/samely/internal/assignment"
	"github.com/samely/samely/internal/config"
	"github.com/samely/samely/internal/quran"
	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo team with an editor, a student, a TA and one assignment",
	RunE:  runSeed,
}

var seedStart, seedEnd string

func init() {
	seedCmd.Flags().StringVar(&seedStart, "start", "67:1", "first verse of the demo assignment (surah:verse)")
	seedCmd.Flags().StringVar(&seedEnd, "end", "67:30", "last verse of the demo assignment (surah:verse)")
	rootCmd.AddCommand(seedCmd)
}

const demoPassword = "bismillah1"

var demoUsers = []user.SignupInput{
	{Name: "Demo Editor", Email: "editor@samely.dev", Password: demoPassword, BirthDate: "1985-03-14"},
	{Name: "Demo Student", Email: "student@samely.dev", Password: demoPassword, BirthDate: "2009-09-01"},
	{Name: "Demo TA", Email: "ta@samely.dev", Password: demoPassword, BirthDate: "1998-06-21"},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("seed needs the %s driver, got %q", config.DriverPostgres, cfg.Database.Driver)
	}

	start, err := quran.Parse(seedStart)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	end, err := quran.Parse(seedEnd)
	if err != nil {
		return fmt.Errorf("--end: %w", err)
	}

	ctx := context.Background()
	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	users := user.NewService(be.users, user.Options{})
	teams := team.NewService(be.teams, users, be.tx, nil, be.activity)
	assignments := assignment.NewService(be.assignments, teams, users, be.tx, nil, nil)

	// Check if seed has already run.
	if _, err := users.GetByEmail(ctx, demoUsers[0].Email); err == nil {
		slog.Info("demo data already exists, skipping seed")
		return nil
	} else if !errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("checking existing users: %w", err)
	}

	created := make([]*user.User, len(demoUsers))
	for i, in := range demoUsers {
		u, err := users.Signup(ctx, in)
		if err != nil {
			return fmt.Errorf("creating user %q: %w", in.Email, err)
		}
		slog.Info("created user", "email", u.Email, "id", u.ID)
		created[i] = u
	}
	editor, student, ta := created[0], created[1], created[2]

	t, err := teams.Create(ctx, editor.ID, team.CreateInput{
		Name:        "Demo Halaqa",
		Description: "Weekly memorization circle",
	})
	if err != nil {
		return fmt.Errorf("creating demo team: %w", err)
	}
	if _, err := teams.Join(ctx, student.ID, t.ID); err != nil {
		return fmt.Errorf("joining demo team: %w", err)
	}

	startTime := time.Now().UTC().Truncate(24 * time.Hour)
	endTime := startTime.Add(7 * 24 * time.Hour)
	a, err := assignments.Create(ctx, editor.ID, t.ID, assignment.Input{
		AssignedTo: student.ID,
		TA:         &ta.ID,
		Start:      &start,
		End:        &end,
		StartTime:  &startTime,
		EndTime:    &endTime,
		Status:     assignment.StatusPending,
		Notes:      "Memorize before next week's circle.",
	})
	if err != nil {
		return fmt.Errorf("creating demo assignment: %w", err)
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Team:       %s (%s)\n", t.Name, t.ID)
	fmt.Printf("Assignment: %s, %s to %s\n", a.ID, a.Start, a.End)
	for _, u := range created {
		fmt.Printf("Login:      %s / %s\n", u.Email, demoPassword)
	}
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST -d '{\"email\":\"%s\",\"password\":\"%s\"}' http://%s/api/v1/auth/login\n", student.Email, demoPassword, cfg.Addr())

	return nil
}
