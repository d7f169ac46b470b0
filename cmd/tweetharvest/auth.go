package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"tweetharvest/pkg/auth"
)

func newAuthCmd(g *globalOptions) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored app credentials",
		Long: `Manage the app key pairs tweetharvest authenticates with.

Profiles are stored in:
  - the system keychain (when available)
  - an encrypted file with PBKDF2 key derivation

TWITTER_APP_KEY and TWITTER_APP_SECRET, when set, take precedence over
every stored profile.`,
	}

	loginCmd := &cobra.Command{
		Use:   "login [profile]",
		Short: "Store an app key and secret",
		Example: `  # Store the default profile
  tweetharvest auth login

  # Store a second app under its own name
  tweetharvest auth login research`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, g, args)
		},
	}

	logoutCmd := &cobra.Command{
		Use:   "logout <profile>",
		Short: "Remove a stored profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newCredentialManager()
			if err != nil {
				return err
			}
			if err := manager.Delete(args[0]); err != nil {
				return err
			}
			newConsole(cmd, g).Success("Profile removed: " + args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, g)
		},
	}

	guideCmd := &cobra.Command{
		Use:   "guide",
		Short: "Explain where app credentials come from",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			auth.ShowCredentialGuide(cmd.OutOrStdout())
		},
	}

	authCmd.AddCommand(loginCmd, logoutCmd, listCmd, guideCmd)
	return authCmd
}

func runLogin(cmd *cobra.Command, g *globalOptions, args []string) error {
	console := newConsole(cmd, g)
	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := auth.DefaultProfile
	if len(args) > 0 {
		name = args[0]
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Fprintf(out, "Profile '%s' already exists. Replace it? (y/N): ", name)
		answer, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			return nil
		}
	}

	fmt.Fprint(out, "API key: ")
	key, err := readLine(reader)
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	fmt.Fprint(out, "API key secret (hidden): ")
	secret, err := readSecret(cmd.InOrStdin(), reader, out)
	if err != nil {
		return fmt.Errorf("failed to read API key secret: %w", err)
	}

	if err := manager.Store(&auth.Credentials{Name: name, AppKey: key, AppSecret: secret}); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	console.Success("Profile saved: " + name)
	if name != auth.DefaultProfile {
		console.Println("Select it with --profile " + name)
	}
	return nil
}

func runList(cmd *cobra.Command, g *globalOptions) error {
	console := newConsole(cmd, g)
	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	profiles, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}
	if len(profiles) == 0 {
		console.Info("No stored profiles", "use 'tweetharvest auth login' to add one")
		return nil
	}

	for _, p := range profiles {
		s := auth.Sanitize(p)
		rows := [][2]string{
			{"App key", s.AppKey},
			{"Secret", s.AppSecret},
		}
		if !s.LastModified.IsZero() {
			rows = append(rows, [2]string{"Last modified", s.LastModified.Format("2006-01-02 15:04:05")})
		}
		console.Summary(s.Name, rows)
	}
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads without echo from a terminal and falls back to a plain line.
func readSecret(in io.Reader, r *bufio.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}
	return readLine(r)
}
