package cmd

import (
	"bufio"
	"fmt"
	"time"

	"github.com/KaramelBytes/docqa-cli/internal/auth"
	"github.com/KaramelBytes/docqa-cli/internal/session"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string

	regUsername string
	regEmail    string
	regPassword string
	regConfirm  string

	whoamiRemote bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		email, password := loginEmail, loginPassword
		if email == "" {
			if email, err = ask(in, out, "Email: "); err != nil {
				return err
			}
		}
		if password == "" {
			if password, err = ask(in, out, "Password: "); err != nil {
				return err
			}
		}
		sess, err := a.Auth.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Logged in as %s\n", sess.User.Username)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		input := auth.RegisterInput{Username: regUsername, Email: regEmail, Password: regPassword, ConfirmPassword: regConfirm}
		fields := []struct {
			val   *string
			label string
		}{
			{&input.Username, "Username: "},
			{&input.Email, "Email: "},
			{&input.Password, "Password: "},
			{&input.ConfirmPassword, "Confirm password: "},
		}
		for _, f := range fields {
			if *f.val != "" {
				continue
			}
			if *f.val, err = ask(in, out, f.label); err != nil {
				return err
			}
		}
		sess, err := a.Auth.Register(cmd.Context(), input)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Registered and logged in as %s\n", sess.User.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		out := cmd.OutOrStdout()

		sess, ok := a.Store.Session()
		if !ok {
			fmt.Fprintln(out, "Not logged in")
			return nil
		}
		fmt.Fprintf(out, "user_id: %s\n", sess.User.ID)
		fmt.Fprintf(out, "username: %s\n", sess.User.Username)
		fmt.Fprintf(out, "email: %s\n", sess.User.Email)
		fmt.Fprintf(out, "token: %s\n", mask(sess.Token))
		if exp, ok := session.TokenExpiry(sess.Token); ok {
			fmt.Fprintf(out, "token_expires: %s (%s)\n", exp.Local().Format(time.RFC3339), humanize.Time(exp))
		}
		if !whoamiRemote {
			return nil
		}
		p, err := a.Auth.Profile(cmd.Context())
		if err != nil {
			return err
		}
		if !p.CreatedAt.IsZero() {
			fmt.Fprintf(out, "member_since: %s\n", p.CreatedAt.Format("2006-01-02"))
		}
		fmt.Fprintln(out, "✓ Session accepted by backend")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "account password (prompted when omitted)")

	registerCmd.Flags().StringVarP(&regUsername, "username", "u", "", "username")
	registerCmd.Flags().StringVarP(&regEmail, "email", "e", "", "account email")
	registerCmd.Flags().StringVarP(&regPassword, "password", "p", "", "password (at least 6 characters)")
	registerCmd.Flags().StringVar(&regConfirm, "confirm", "", "password confirmation")

	whoamiCmd.Flags().BoolVar(&whoamiRemote, "remote", false, "also verify the session against the backend")
}
