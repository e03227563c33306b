package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/autounite/admin-console/internal/auth"
	"github.com/autounite/admin-console/internal/session"
)

func (a *App) cmdLogin(ctx context.Context, args []string) error {
	fs := a.newFlagSet("login")
	email := fs.String("email", "", "Account email (prompted when empty)")
	password := fs.String("password", "", "Account password (prompted when empty)")
	if _, err := parse(fs, args); err != nil {
		return err
	}

	if strings.TrimSpace(*email) == "" {
		v, err := a.prompt("Email: ")
		if err != nil {
			return err
		}
		*email = v
	}
	if *email == "" {
		return usageError("email is required")
	}
	if *password == "" {
		v, err := a.readPassword("Password: ")
		if err != nil {
			return err
		}
		*password = v
	}

	creds, err := a.auth.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	a.out.Success(fmt.Sprintf("Signed in as %s%s", creds.User.DisplayName(), roleSuffix(creds.User)))
	return nil
}

func (a *App) cmdRegister(ctx context.Context, args []string) error {
	fs := a.newFlagSet("register")
	var r auth.Registration
	fs.StringVar(&r.Email, "email", "", "Account email")
	fs.StringVar(&r.Password, "password", "", "Account password (prompted when empty)")
	fs.StringVar(&r.FirstName, "first", "", "First name")
	fs.StringVar(&r.LastName, "last", "", "Last name")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(r.Email) == "" {
		return usageError("--email is required")
	}
	if r.Password == "" {
		v, err := a.readPassword("Password: ")
		if err != nil {
			return err
		}
		r.Password = v
	}

	creds, err := a.auth.Register(ctx, r)
	if err != nil {
		return err
	}
	a.out.Success(fmt.Sprintf("Registered and signed in as %s%s", creds.User.DisplayName(), roleSuffix(creds.User)))
	return nil
}

func (a *App) cmdLogout(args []string) error {
	if _, err := parse(a.newFlagSet("logout"), args); err != nil {
		return err
	}
	if !a.store.IsAuthenticated() {
		a.out.Info("Not signed in.")
		return nil
	}
	a.auth.Logout()
	a.out.Success("Signed out.")
	return nil
}

func (a *App) cmdWhoami(ctx context.Context, args []string) error {
	fs := a.newFlagSet("whoami")
	asJSON := fs.Bool("json", false, "Print the profile as JSON")
	if _, err := parse(fs, args); err != nil {
		return err
	}

	p, err := a.requireSession(ctx, "whoami")
	if err != nil {
		return err
	}
	if *asJSON {
		return a.printJSON(p)
	}

	a.out.Printf("Name:   %s\n", p.DisplayName())
	a.out.Printf("Email:  %s\n", p.Email)
	a.out.Printf("Role:   %s\n", p.Role)
	a.out.Printf("ID:     %s\n", p.ID)
	if exp, ok := a.store.TokenExpiry(); ok {
		left := time.Until(exp).Round(time.Minute)
		a.out.Printf("Token:  expires %s (in %s)\n", exp.Local().Format(time.RFC1123), left)
	}
	return nil
}

func roleSuffix(p session.Profile) string {
	if p.IsAdmin() {
		return " (admin)"
	}
	return ""
}
