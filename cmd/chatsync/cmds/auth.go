package cmds

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type credentials struct {
	email    string
	password string
}

func (c *credentials) flags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.email, "email", "e", "", "institutional email")
	cmd.Flags().StringVarP(&c.password, "password", "p", "", "password (prompted when omitted)")
}

// complete prompts on stdin for whatever was not given as a flag.
func (c *credentials) complete(cmd *cobra.Command) error {
	in := bufio.NewReader(cmd.InOrStdin())
	var err error
	if c.email == "" {
		if c.email, err = prompt(in, cmd.ErrOrStderr(), "Email: "); err != nil {
			return err
		}
	}
	if c.password == "" {
		if c.password, err = prompt(in, cmd.ErrOrStderr(), "Contraseña: "); err != nil {
			return err
		}
	}
	return nil
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func newLoginCommand(app *App) *cobra.Command {
	var creds credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.complete(cmd); err != nil {
				return err
			}
			if err := app.Auth.Login(cmd.Context(), creds.email, creds.password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sesión iniciada como %s\n", app.Session.Subject())
			return nil
		},
	}
	creds.flags(cmd)
	return cmd
}

func newLogoutCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Auth.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Sesión cerrada")
			return nil
		},
	}
}

func newRegisterCommand(app *App) *cobra.Command {
	var creds credentials
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.complete(cmd); err != nil {
				return err
			}
			if err := app.Auth.Register(cmd.Context(), creds.email, creds.password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Usuario registrado exitosamente")
			return nil
		},
	}
	creds.flags(cmd)
	return cmd
}
