package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/somalabs/darasa/core"
	"github.com/somalabs/darasa/core/account"
)

// addAccount updates or creates an account.Account
func (cli *commandLine) addAccount(uname, email, name, pwd string, isAdmin bool) error {
	var acct account.Account
	var err error
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	if acct, err = cli.acctRepo.GetAccount(ctx, account.GetFilter{UsernameOrEmail: uname}); err != nil {
		if errors.Cause(err) != account.ErrNotFound {
			return err
		}
		acct = account.Account{
			Username: uname,
			Email:    email,
		}
	}
	if name != "" {
		acct.Name = name
	}
	if isAdmin {
		acct.Roles = account.AllRoles
	}
	acct.SetActive(true)
	if err := acct.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.acctRepo.UpdateOrCreateAccount(ctx, acct); err != nil {
		return err
	}
	return nil
}
