package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"reforesta/internal/config"
	"reforesta/internal/db"
	"reforesta/internal/domain"
	"reforesta/internal/engine"
	"reforesta/internal/engine/identity"
	"reforesta/internal/migrate"
	"reforesta/internal/repo"
	"reforesta/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "refo",
	Short: "Reforesta CLI",
	Long: `Reforesta runs the volunteering workflows of a reforestation platform.
- Projects: planting sites with tree and volunteer targets; created by admins
  or by approving petitions.
- Petitions: volunteer/organizer proposals for new projects, reviewed by admins.
- Registrations: volunteers joining a project; at most one active per project.
- Attendance: each volunteer's current tree total for a project.
- Donations: money towards a project or the organization.
- Event log: diary of every change, view with 'refo log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("REFORESTA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(petitionCmd())
	rootCmd.AddCommand(registrationCmd())
	rootCmd.AddCommand(attendanceCmd())
	rootCmd.AddCommand(donationCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default reforesta.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	return cfg
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userSetRoleCmd())
	user.AddCommand(userResetTokenCmd())
	return user
}

// userResetTokenCmd issues a password reset token the operator hands to
// the user out-of-band; it is redeemed at POST /auth/reset.
func userResetTokenCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-token",
		Short: "Issue a password reset token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				token, err := e.RequestPasswordReset(ctx, email)
				if err != nil {
					return err
				}
				// Shown once; only the hash is stored.
				fmt.Printf("reset token: %s\n", token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

// userCreateCmd writes the user row directly: the CLI runs on the
// workspace host and is trusted, so the signup-code gate does not apply.
func userCreateCmd() *cobra.Command {
	var email, password, name, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" || name == "" {
				return fmt.Errorf("--email, --password and --name required")
			}
			if !identity.ValidRole(role) {
				return fmt.Errorf("invalid role %q", role)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
				if err != nil {
					return err
				}
				u := domain.User{
					ID:           uuid.NewString(),
					Email:        email,
					PasswordHash: string(hash),
					DisplayName:  name,
					Role:         role,
					CreatedAt:    time.Now().UTC().Format(time.RFC3339),
				}
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := r.InsertUser(ctx, tx, u); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", domain.RoleVolunteer, "role (volunteer, organizer, admin)")
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx, role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Name", "Role", "Created"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Email, u.DisplayName, u.Role, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func userSetRoleCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "set-role <user-id>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				u, err := e.ChangeRole(ctx, caller, args[0], role)
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "new role")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectProgressCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx, repo.ProjectFilters{Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Location", "Status", "Trees", "Volunteers", "Date"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.LocationName, p.Status, p.TreeTarget, p.VolunteerTarget, p.ScheduledDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	return cmd
}

func projectCreateCmd() *cobra.Command {
	opts := engine.PetitionOptions{}
	var species string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				if species != "" {
					opts.Species = strings.Split(species, ",")
				}
				p, err := e.CreateProject(ctx, caller, opts)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.LocationName, "location", "", "location name")
	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&opts.Lng, "lng", 0, "longitude")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().IntVar(&opts.TreeTarget, "trees", 0, "tree target")
	cmd.Flags().IntVar(&opts.VolunteerTarget, "volunteers", 0, "volunteer target")
	cmd.Flags().StringVar(&species, "species", "", "comma-separated species list")
	cmd.Flags().StringVar(&opts.ScheduledDate, "date", "", "scheduled date (YYYY-MM-DD)")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				return e.DeleteProject(ctx, caller, args[0])
			})
		},
	}
	return cmd
}

func projectProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <id>",
		Short: "Show project progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ProjectProgress(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("trees:      %d / %d (%.1f%%)\n", p.TreesPlanted, p.TreeTarget, p.TreesPercent)
				fmt.Printf("volunteers: %d / %d (%.1f%%)\n", p.Volunteers, p.VolunteerTarget, p.VolunteerPercent)
				return nil
			})
		},
	}
	return cmd
}

func petitionCmd() *cobra.Command {
	pet := &cobra.Command{Use: "petition", Short: "Manage project petitions"}
	pet.AddCommand(petitionSubmitCmd())
	pet.AddCommand(petitionListCmd())
	pet.AddCommand(petitionApproveCmd())
	pet.AddCommand(petitionRejectCmd())
	return pet
}

func petitionSubmitCmd() *cobra.Command {
	opts := engine.PetitionOptions{}
	var species string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a project petition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				if species != "" {
					opts.Species = strings.Split(species, ",")
				}
				p, err := e.SubmitPetition(ctx, caller, opts)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.LocationName, "location", "", "location name")
	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&opts.Lng, "lng", 0, "longitude")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().IntVar(&opts.TreeTarget, "trees", 0, "tree target")
	cmd.Flags().IntVar(&opts.VolunteerTarget, "volunteers", 0, "volunteer target")
	cmd.Flags().StringVar(&species, "species", "", "comma-separated species list")
	cmd.Flags().StringVar(&opts.ScheduledDate, "date", "", "scheduled date (YYYY-MM-DD)")
	return cmd
}

func petitionListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List petitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.ListPetitions(ctx, caller, repo.PetitionFilters{Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Requester", "Status", "Trees", "Date"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.RequesterID, p.Status, p.TreeTarget, p.ScheduledDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func petitionApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a petition (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				pet, proj, err := e.ApprovePetition(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"petition": pet, "project": proj})
			})
		},
	}
	return cmd
}

func petitionRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a petition (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				pet, err := e.RejectPetition(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSON(pet)
			})
		},
	}
	return cmd
}

func registrationCmd() *cobra.Command {
	reg := &cobra.Command{Use: "registration", Short: "Manage registrations"}
	reg.AddCommand(registrationAddCmd())
	reg.AddCommand(registrationListCmd())
	reg.AddCommand(registrationCancelCmd())
	return reg
}

func registrationAddCmd() *cobra.Command {
	var projectID string
	snap := domain.ProfileSnapshot{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register the acting volunteer for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				reg, err := e.Register(ctx, caller, projectID, snap)
				if err != nil {
					return err
				}
				return printJSON(reg)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&snap.Name, "name", "", "contact name")
	cmd.Flags().StringVar(&snap.Phone, "phone", "", "contact phone")
	cmd.Flags().IntVar(&snap.Age, "age", 0, "age")
	cmd.Flags().StringVar(&snap.Experience, "experience", "", "planting experience")
	cmd.Flags().StringVar(&snap.Availability, "availability", "", "availability")
	cmd.Flags().StringVar(&snap.Transport, "transport", "", "transport")
	cmd.Flags().StringVar(&snap.Comments, "comments", "", "comments")
	return cmd
}

func registrationListCmd() *cobra.Command {
	var f repo.RegistrationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.ListRegistrations(ctx, caller, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Project", "Name", "Status", "Created"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.UserID, r.ProjectID, r.Snapshot.Name, r.Status, r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.UserID, "user", "", "user filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func registrationCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				reg, err := e.CancelRegistration(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSON(reg)
			})
		},
	}
	return cmd
}

func attendanceCmd() *cobra.Command {
	att := &cobra.Command{Use: "attendance", Short: "Record and list attendance"}
	att.AddCommand(attendanceRecordCmd())
	att.AddCommand(attendanceListCmd())
	return att
}

func attendanceRecordCmd() *cobra.Command {
	var projectID string
	var trees int
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record trees planted for the acting volunteer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				a, err := e.RecordAttendance(ctx, caller, projectID, trees)
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().IntVar(&trees, "trees", 0, "trees planted")
	return cmd
}

func attendanceListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List attendances for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.ListProjectAttendances(ctx, caller, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Trees", "Recorded"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.UserID, a.TreesPlanted, a.RecordedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func donationCmd() *cobra.Command {
	don := &cobra.Command{Use: "donation", Short: "Record and list donations"}
	don.AddCommand(donationAddCmd())
	don.AddCommand(donationListCmd())
	return don
}

func donationAddCmd() *cobra.Command {
	opts := engine.DonationOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a donation for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				d, err := e.Donate(ctx, caller, opts)
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id (optional)")
	cmd.Flags().Int64Var(&opts.AmountCents, "amount-cents", 0, "amount in cents")
	cmd.Flags().StringVar(&opts.Currency, "currency", "EUR", "3-letter currency code")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note")
	return cmd
}

func donationListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List donations of the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.ListMyDonations(ctx, caller)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Global statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.GlobalStats(ctx)
				if err != nil {
					return err
				}
				return printJSON(stats)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetUser(ctx, userID); err != nil {
					return err
				}
				secret := uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					UserID:  userID,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// The plaintext key is shown once and never stored.
				fmt.Printf("api key: %s\n", secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				return printJSON(keys)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			secret := cfg.Auth.JWTSecret
			if secret == "" {
				secret = os.Getenv("REFORESTA_JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("auth.jwt_secret (or REFORESTA_JWT_SECRET) is required for bearer auth")
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:       secret,
					TokenTTLMinutes: cfg.TokenTTLMinutes(),
				},
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Reforesta API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

// resolveActor turns --actor-id into a full identity through the users
// table, so CLI operations run under the same role gates as the API.
func resolveActor(ctx context.Context, e engine.Engine) (identity.Identity, error) {
	actorID := strings.TrimSpace(viper.GetString("actor-id"))
	if actorID == "" {
		return identity.Identity{}, fmt.Errorf("--actor-id required (a user id, see 'refo user list')")
	}
	u, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("actor %s: %w", actorID, err)
	}
	return identity.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
