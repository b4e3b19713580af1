package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"leviosa/internal/cs"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the CS backend and store the token pair",
	Long: `Signs in with email and password. The access/refresh pair is stored under
the state directory and refreshed automatically when the access token expires.

The password can be passed with --password, via LEVIOSA_PASSWORD, or typed
at the prompt.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		a.api.Auth.Logout()
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in seller",
	RunE:  runWhoami,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a seller account",
	RunE:  runRegister,
}

func init() {
	loginCmd.Flags().String("email", "", "Account email (required)")
	loginCmd.Flags().String("password", "", "Account password")
	loginCmd.MarkFlagRequired("email")

	registerCmd.Flags().String("email", "", "Account email (required)")
	registerCmd.Flags().String("password", "", "Account password")
	registerCmd.Flags().String("name", "", "Display name (required)")
	registerCmd.MarkFlagRequired("email")
	registerCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, registerCmd)
}

// resolvePassword reads the password from the flag, the environment, or stdin.
func resolvePassword(cmd *cobra.Command) (string, error) {
	if pw, _ := cmd.Flags().GetString("password"); pw != "" {
		return pw, nil
	}
	if pw := os.Getenv("LEVIOSA_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password is required")
	}
	return pw, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	email, _ := cmd.Flags().GetString("email")
	password, err := resolvePassword(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if _, err := a.api.Auth.Login(ctx, cs.SellerLogin{Email: email, Password: password}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", email)
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if !a.creds.HasAccessToken() {
		return errors.New("not logged in")
	}
	me, err := a.api.Auth.Me(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s <%s>\n", me.Data.Name, me.Data.Email)
	fmt.Fprintf(out, "id: %s  active: %s\n", me.Data.ID, yesNo(me.Data.IsActive))
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	password, err := resolvePassword(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	res, err := a.api.Auth.Register(ctx, cs.SellerRegister{Email: email, Password: password, Name: name})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s). Run 'leviosa login' to sign in.\n", res.Data.Email, res.Data.ID)
	return nil
}
