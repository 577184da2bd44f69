package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login [email]",
		Short: "Sign in and persist the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, log, err := newClient()
			if err != nil {
				return err
			}
			defer log.Sync()

			email, password, err := promptCredentials(args)
			if err != nil {
				return err
			}

			if err := client.Sessions.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			session := client.Sessions.Snapshot()
			fmt.Printf("Signed in as %s\n", session.User.Email)
			return nil
		},
	}
}

func newRegisterCommand() *cobra.Command {
	var fullName string
	cmd := &cobra.Command{
		Use:   "register [email]",
		Short: "Create an account and sign in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, log, err := newClient()
			if err != nil {
				return err
			}
			defer log.Sync()

			email, password, err := promptCredentials(args)
			if err != nil {
				return err
			}

			if err := client.Sessions.Register(cmd.Context(), email, password, fullName); err != nil {
				return err
			}
			fmt.Printf("Account created for %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&fullName, "name", "", "your display name")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, log, err := newClient()
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := client.Sessions.Load(cmd.Context()); err != nil {
				return err
			}
			client.Sessions.Logout(cmd.Context())
			fmt.Println("Signed out")
			return nil
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, log, err := newClient()
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := client.Sessions.Load(cmd.Context()); err != nil {
				return err
			}
			session := client.Sessions.Snapshot()
			if !session.Authenticated() {
				fmt.Println("Not signed in")
				return nil
			}

			fmt.Printf("Email:  %s\n", session.User.Email)
			if session.User.FullName != "" {
				fmt.Printf("Name:   %s\n", session.User.FullName)
			}
			fmt.Printf("Role:   %s\n", session.User.Role)
			return nil
		},
	}
}

// promptCredentials takes the email from args when given, otherwise asks,
// and always reads the password without echo.
func promptCredentials(args []string) (email, password string, err error) {
	reader := bufio.NewReader(os.Stdin)

	if len(args) == 1 {
		email = args[0]
	} else {
		fmt.Print("Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return "", "", fmt.Errorf("email is required")
	}

	fmt.Print("Password: ")
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", "", err
	}
	if len(secret) == 0 {
		return "", "", fmt.Errorf("password is required")
	}
	return email, string(secret), nil
}
