package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orbit-cli/orbit/pkg/orbit/auth"
	"github.com/orbit-cli/orbit/pkg/orbit/output"
)

func NewLoginCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a device code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if !force {
				ac, err := rt.AuthClient(ctx, false)
				if err != nil {
					return err
				}
				user, err := ac.WhoAmI(ctx)
				switch {
				case err == nil:
					_, _ = fmt.Fprintf(rt.Writer(), "Already logged in as %s\n", displayName(user))
					return nil
				case errors.Is(err, auth.ErrUnauthenticated):
					// stale or missing credential, start a new grant
				default:
					return err
				}
			}

			ac, err := rt.AuthClient(ctx, true)
			if err != nil {
				return err
			}
			if _, err := ac.Login(ctx); err != nil {
				return err
			}
			user, err := ac.WhoAmI(ctx)
			if err != nil {
				rt.log.Debugw("Session lookup after login failed", "error", err)
				_, _ = fmt.Fprintln(rt.Writer(), output.Success.Render("Logged in"))
				return nil
			}
			_, _ = fmt.Fprintln(rt.Writer(), output.Success.Render("Logged in as "+displayName(user)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Start a new login even if the stored credential is still valid")
	return cmd
}

func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ac, err := rt.AuthClient(cmd.Context(), false)
			if err != nil {
				return err
			}
			if err := ac.Logout(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), "Logged out")
			return nil
		},
	}
}

func NewWhoAmICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			user, err := rt.CurrentUser(cmd)
			if err != nil {
				return err
			}
			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				output.WriteUser(rt.Writer(), user)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, user)
		},
	}
}

// CurrentUser resolves the caller through the server, honouring --token.
func (rt *runtimeState) CurrentUser(cmd *cobra.Command) (*auth.User, error) {
	ctx := cmd.Context()
	token, err := rt.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	c, err := rt.APIClient("")
	if err != nil {
		return nil, err
	}
	return c.LookupSession(ctx, token)
}

func displayName(u *auth.User) string {
	switch {
	case u.Name != "" && u.Email != "":
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	}
	return u.ID
}
