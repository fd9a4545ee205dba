package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

// getSimpleText and getPassword are swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

var errNoSession = errors.New("no stored session")

// report prints err for the user. A lost session also logs the user out
// locally.
func (a *App) report(err error) error {
	if services.IsNotLoggedIn(err) {
		a.userName = ""
		printlnFn("Not logged in: " + err.Error())
		return err
	}
	printlnFn("Error: " + err.Error())
	return err
}

func (a *App) credentials() (string, []byte, error) {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return "", nil, err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return userName, password, nil
}

func (a *App) Register(ctx context.Context) error {
	userName, password, err := a.credentials()
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Register(ctx, userName, password); err != nil {
		return a.report(err)
	}

	a.userName = userName
	printlnFn("Registered and logged in as " + userName)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	userName, password, err := a.credentials()
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Login(ctx, userName, password); err != nil {
		return a.report(err)
	}

	a.userName = userName
	printlnFn("Logged in as " + userName)
	return nil
}

// Restore picks up the session stored by a previous run.
func (a *App) Restore(ctx context.Context) error {
	userName, err := a.authService.RestoreSession(ctx)
	if err != nil {
		if services.IsNotLoggedIn(err) {
			return errNoSession
		}
		return err
	}

	a.userName = userName
	printlnFn("Resumed session of " + userName)
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	me, err := a.authService.WhoAmI(ctx)
	if err != nil {
		return a.report(err)
	}

	printlnFn(fmt.Sprintf("%s (id %s, role %s), access token valid until %s",
		me.Username, me.UserID, me.Role, me.ExpiresAt.Local().Format(time.RFC1123)))
	return nil
}

func (a *App) Sessions(ctx context.Context) error {
	sessions, err := a.authService.Sessions(ctx)
	if err != nil {
		return a.report(err)
	}

	if len(sessions) == 0 {
		printlnFn("No active sessions")
		return nil
	}
	for _, s := range sessions {
		label := s.DeviceLabel
		if label == "" {
			label = "-"
		}
		printlnFn(fmt.Sprintf("%s  %-20s  %-8s  last used %s  expires %s",
			s.ID, label, s.State, s.LastUsedAt.Local().Format(time.RFC822), s.ExpiresAt.Local().Format(time.RFC822)))
	}
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if err := a.authService.Refresh(ctx); err != nil {
		return a.report(err)
	}
	printlnFn("Tokens refreshed")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		return a.report(err)
	}
	a.userName = ""
	printlnFn("Logged out")
	return nil
}

func (a *App) LogoutAll(ctx context.Context) error {
	n, err := a.authService.LogoutAll(ctx)
	if err != nil {
		return a.report(err)
	}
	a.userName = ""
	printlnFn(fmt.Sprintf("Logged out everywhere (%d sessions revoked)", n))
	return nil
}

func (a *App) Ping(ctx context.Context) error {
	if err := a.authService.Ping(ctx); err != nil {
		return a.report(err)
	}
	printlnFn("Server is up")
	return nil
}
