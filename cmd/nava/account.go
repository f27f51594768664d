package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/nava/pkg/core/flow"
	"github.com/vango-go/nava/pkg/core/types"
	"github.com/vango-go/nava/pkg/localstore"
	nava "github.com/vango-go/nava/sdk"
)

// accountSession is a gateway client restored from the saved session.
type accountSession struct {
	client *nava.Client
	store  *localstore.Store
	user   *localstore.User
}

func (s *accountSession) Close() {
	_ = s.store.Close()
}

func (a *app) accountSession(ctx context.Context) (*accountSession, error) {
	be, err := a.connect(ctx, a.opts, a.log)
	if err != nil {
		return nil, err
	}
	gw, err := be.requireGateway()
	if err != nil {
		return nil, err
	}
	st, err := a.openStore(a.opts.home)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	user, err := st.GetUser(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if user != nil && user.Token != "" {
		gw.SetSession(user.Token)
	}
	return &accountSession{client: gw, store: st, user: user}, nil
}

func newSignUpCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "signup EMAIL",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.accountSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			password, err := a.prompt("Password: ")
			if err != nil {
				return err
			}
			acct, err := s.client.Accounts.SignUp(cmd.Context(), args[0], password, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Account created for %s. Enter the code we emailed with:\n  nava verify %s CODE\n", acct.Email, acct.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var resend bool
	cmd := &cobra.Command{
		Use:   "verify EMAIL [CODE]",
		Short: "Confirm an email address",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.accountSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			if resend {
				if err := s.client.Accounts.ResendVerification(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "A new code is on its way.")
				return nil
			}
			if len(args) < 2 {
				return errors.New("verification code is required (or pass --resend)")
			}
			if err := s.client.Accounts.VerifyEmail(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Email verified. You can sign in now.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&resend, "resend", false, "email a new code")
	return cmd
}

func newResetPasswordCmd(a *app) *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "reset-password EMAIL",
		Short: "Request a reset code, or set a new password with --code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.accountSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			if code == "" {
				if err := s.client.Accounts.RequestPasswordReset(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "If that account exists, a reset code has been emailed.")
				return nil
			}
			password, err := a.prompt("New password: ")
			if err != nil {
				return err
			}
			if err := s.client.Accounts.ResetPassword(cmd.Context(), args[0], code, password); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Password updated. Sign in again on your devices.")
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "reset code from the email")
	return cmd
}

func newSignInCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "signin EMAIL",
		Short: "Sign in and remember the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.accountSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			password, err := a.prompt("Password: ")
			if err != nil {
				return err
			}

			ctrl, err := flow.NewController(flow.Config{
				AI:       s.client,
				Profiles: s.client.History(),
				Logger:   a.log,
			})
			if err != nil {
				return err
			}
			defer ctrl.Close()
			ctrl.Dispatch(flow.OpenAuth{})

			acct, err := s.client.Accounts.SignIn(ctx, args[0], password)
			if err != nil {
				return err
			}
			err = s.store.SaveUser(ctx, localstore.User{
				ID:         acct.ID,
				Email:      acct.Email,
				Name:       acct.Name,
				Token:      s.client.Session(),
				SignedInAt: time.Now(),
			})
			if err != nil {
				return fmt.Errorf("save session: %w", err)
			}

			ctrl.Dispatch(flow.SignedIn{UserID: acct.ID})
			st, err := await(ctx, ctrl, func(st flow.State) bool { return st.Pending == flow.OpNone })
			if err != nil {
				return err
			}
			if st.View == flow.ViewLanding && st.Profile != nil {
				fmt.Fprintf(a.out, "Welcome back, %s.\n", st.Profile.Name)
				return nil
			}

			fmt.Fprintf(a.out, "Signed in as %s. Let's set up your profile.\n", acct.Email)
			update, err := a.askProfile(acct.Name)
			if err != nil {
				return err
			}
			p, err := s.client.Accounts.SaveProfile(ctx, update)
			if err != nil {
				return err
			}
			ctrl.Dispatch(flow.ProfileSaved{Profile: p})
			fmt.Fprintf(a.out, "Welcome, %s.\n", p.Name)
			return nil
		},
	}
}

// askProfile collects a profile interactively. Blank answers keep defaults.
func (a *app) askProfile(name string) (types.ProfileUpdate, error) {
	var u types.ProfileUpdate
	label := "Name: "
	if name != "" {
		label = fmt.Sprintf("Name [%s]: ", name)
	}
	var err error
	if u.Name, err = a.prompt(label); err != nil {
		return u, err
	}
	if u.Country, err = a.prompt("Country: "); err != nil {
		return u, err
	}
	for {
		skill, err := a.prompt("Skill level (Beginner, Student, Maker): ")
		if err != nil {
			return u, err
		}
		if skill == "" {
			return u, nil
		}
		if lvl, ok := parseSkill(skill); ok {
			u.SkillLevel = lvl
			return u, nil
		}
		fmt.Fprintln(a.out, "Pick Beginner, Student or Maker.")
	}
}

func parseSkill(s string) (types.SkillLevel, bool) {
	for _, lvl := range []types.SkillLevel{types.SkillBeginner, types.SkillStudent, types.SkillMaker} {
		if strings.EqualFold(s, string(lvl)) {
			return lvl, true
		}
	}
	return "", false
}

func newSignOutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(a.opts.home)
			if err != nil {
				return fmt.Errorf("open local store: %w", err)
			}
			defer st.Close()
			user, err := st.GetUser(ctx)
			if err != nil {
				return err
			}
			if user == nil {
				fmt.Fprintln(a.out, "Not signed in.")
				return nil
			}
			if be, err := a.connect(ctx, a.opts, a.log); err == nil && be.gateway != nil && user.Token != "" {
				be.gateway.SetSession(user.Token)
				if err := be.gateway.Accounts.SignOut(ctx); err != nil {
					a.log.Warn("gateway sign-out failed", "error", err)
				}
			}
			if err := st.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Signed out of %s.\n", user.Email)
			return nil
		},
	}
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.accountSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			p, err := s.client.Accounts.Profile(cmd.Context())
			if err != nil {
				return err
			}
			if p == nil {
				fmt.Fprintln(a.out, "No profile yet. Create one with: nava profile set --name NAME")
				return nil
			}
			printProfile(a, *p)
			return nil
		},
	}

	var update types.ProfileUpdate
	var skill string
	set := &cobra.Command{
		Use:   "set",
		Short: "Update your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if skill != "" {
				lvl, ok := parseSkill(skill)
				if !ok {
					return fmt.Errorf("unknown skill level %q (Beginner, Student, Maker)", skill)
				}
				update.SkillLevel = lvl
			}
			s, err := a.accountSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			p, err := s.client.Accounts.SaveProfile(cmd.Context(), update)
			if err != nil {
				return err
			}
			printProfile(a, p)
			return nil
		},
	}
	set.Flags().StringVar(&update.Name, "name", "", "display name")
	set.Flags().StringVar(&update.Country, "country", "", "country")
	set.Flags().StringVar(&skill, "skill", "", "Beginner, Student or Maker")
	set.Flags().StringVar(&update.Color, "color", "", "avatar color")
	cmd.AddCommand(set)
	return cmd
}

func printProfile(a *app, p types.UserProfile) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Name\t%s\n", p.Name)
	fmt.Fprintf(w, "Email\t%s\n", p.Email)
	fmt.Fprintf(w, "Country\t%s\n", p.Country)
	fmt.Fprintf(w, "Skill\t%s\n", p.SkillLevel)
	if !p.JoinedDate.IsZero() {
		fmt.Fprintf(w, "Joined\t%s\n", p.JoinedDate.Format("Jan 2, 2006"))
	}
	_ = w.Flush()
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List your projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projects, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintln(a.out, "No projects yet. Start one with: nava build PHOTO")
				return nil
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tTITLE\tDIFFICULTY\tSTATUS")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Date.Local().Format("2006-01-02"), p.Title, p.Difficulty, p.Status)
			}
			return w.Flush()
		},
	}
}

// history reads the gateway history when signed in there, otherwise the
// local one.
func (a *app) history(ctx context.Context) ([]types.ProjectHistory, error) {
	st, err := a.openStore(a.opts.home)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	defer st.Close()
	user, err := st.GetUser(ctx)
	if err != nil {
		return nil, err
	}
	if a.opts.gateway != "" && user != nil && user.Token != "" {
		be, err := a.connect(ctx, a.opts, a.log)
		if err != nil {
			return nil, err
		}
		if be.gateway != nil {
			be.gateway.SetSession(user.Token)
			return be.gateway.Accounts.History(ctx)
		}
	}
	return st.GetHistory(ctx)
}

func newLanguagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List guide languages",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			for _, l := range types.Languages {
				fmt.Fprintf(a.out, "%-3s %s\n", l.Code, l.Name)
			}
		},
	}
}
