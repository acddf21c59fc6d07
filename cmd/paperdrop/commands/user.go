package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/paperdrop/paperdrop/internal/cli/output"
	"github.com/paperdrop/paperdrop/internal/cli/prompt"
	"github.com/paperdrop/paperdrop/pkg/auth"
	"github.com/paperdrop/paperdrop/pkg/config"
	"github.com/paperdrop/paperdrop/pkg/server"
)

var (
	userAddPassword string
	userDelForce    bool
	userListOutput  string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
	Long: `Manage paperdrop users.

Users live as credential objects in the bucket; adding a user also
provisions the home folders, and deleting one only removes the credential,
the user's files stay in place.

Examples:
  paperdrop user add alice
  paperdrop user del alice
  paperdrop user list`,
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add a new user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userDelCmd = &cobra.Command{
	Use:     "del <username>",
	Aliases: []string{"delete", "remove"},
	Short:   "Delete a user's credentials",
	Args:    cobra.ExactArgs(1),
	RunE:    runUserDel,
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all users",
	Args:    cobra.NoArgs,
	RunE:    runUserList,
}

func init() {
	userAddCmd.Flags().StringVar(&userAddPassword, "password", "", "Password for the new user (prompted when omitted)")
	userDelCmd.Flags().BoolVar(&userDelForce, "force", false, "Skip the confirmation prompt")
	userListCmd.Flags().StringVarP(&userListOutput, "output", "o", "table", "Output format (table, json, yaml)")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userDelCmd)
	userCmd.AddCommand(userListCmd)
}

// newAuthenticator connects to the configured bucket and builds the
// authenticator the user commands operate through.
func newAuthenticator(ctx context.Context) (*auth.Authenticator, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}

	st, err := server.NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return auth.New(auth.Config{
		Store:                st,
		UserBasePath:         cfg.Users.BasePath,
		DefaultSubdirs:       cfg.Users.DefaultSubdirs,
		CreateDefaultSubdirs: cfg.Users.CreateDefaultSubdirs,
	}), nil
}

func userContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	username := args[0]
	if err := auth.ValidateUsername(username); err != nil {
		return err
	}

	password := userAddPassword
	if password == "" {
		var err error
		password, err = prompt.PasswordWithConfirmation("Password", "Confirm password", 8)
		if err != nil {
			return err
		}
	}

	ctx, cancel := userContext()
	defer cancel()

	authenticator, err := newAuthenticator(ctx)
	if err != nil {
		return err
	}

	if err := authenticator.CreateUser(ctx, username, password); err != nil {
		return err
	}

	output.DefaultPrinter().Success(fmt.Sprintf("User %q created", username))
	return nil
}

func runUserDel(cmd *cobra.Command, args []string) error {
	username := args[0]

	ok, err := prompt.ConfirmWithForce(
		fmt.Sprintf("Delete credentials for %q? The user's files stay in the bucket", username),
		userDelForce,
	)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted")
		return nil
	}

	ctx, cancel := userContext()
	defer cancel()

	authenticator, err := newAuthenticator(ctx)
	if err != nil {
		return err
	}

	if err := authenticator.DeleteUser(ctx, username); err != nil {
		return err
	}

	output.DefaultPrinter().Success(fmt.Sprintf("User %q deleted", username))
	return nil
}

// userEntry is the machine-readable row for "user list".
type userEntry struct {
	Username string `json:"username" yaml:"username"`
	Home     string `json:"home" yaml:"home"`
}

func runUserList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(userListOutput)
	if err != nil {
		return err
	}

	ctx, cancel := userContext()
	defer cancel()

	authenticator, err := newAuthenticator(ctx)
	if err != nil {
		return err
	}

	users, err := authenticator.ListUsers(ctx)
	if err != nil {
		return err
	}

	printer := output.NewPrinter(os.Stdout, format, false)
	if format == output.FormatTable {
		if len(users) == 0 {
			printer.Println("No users found")
			return nil
		}
		table := output.NewTableData("USERNAME", "HOME")
		for _, u := range users {
			table.AddRow(u, "/"+u)
		}
		return printer.Print(table)
	}

	entries := make([]userEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, userEntry{Username: u, Home: "/" + u})
	}
	return printer.Print(entries)
}
