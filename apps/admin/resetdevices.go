package main

import (
	"context"

	"github.com/somalabs/darasa/core/account"
	"github.com/somalabs/darasa/core/device"
)

func (cli *commandLine) resetDevices(uname string) error {
	ctx := context.Background()
	acct, err := cli.acctRepo.GetAccount(ctx, account.GetFilter{UsernameOrEmail: uname})
	if err != nil {
		return err
	}
	count, err := cli.deviceRepo.DeactivateAccountDevices(ctx, acct.ID, device.ReasonAdminReset)
	if err != nil {
		return err
	}
	logger.Printf("deactivated %d device(s) for %s\n", count, acct.Username)
	return nil
}
