package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/somalabs/darasa/core"
	"github.com/somalabs/darasa/core/account"
	"github.com/somalabs/darasa/core/device"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	db         *sqlx.DB
	acctRepo   account.Repository
	deviceRepo device.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate [up|down|status|version] - run database migrations")
	fmt.Println("  addaccount -username USERNAME -email EMAIL [-name NAME] [-admin] - add or update an account; the password will be prompted")
	fmt.Println("  resetdevices -username USERNAME|EMAIL - deactivate all of the account's devices")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addAccountCmd := flag.NewFlagSet("addaccount", flag.ExitOnError)
	addAccountUname := addAccountCmd.String("username", "", "The account's username.")
	addAccountEmail := addAccountCmd.String("email", "", "The account's email.")
	addAccountName := addAccountCmd.String("name", "", "The account's display name.")
	addAccountAdmin := addAccountCmd.Bool("admin", false, "Grant all roles.")

	resetDevicesCmd := flag.NewFlagSet("resetdevices", flag.ExitOnError)
	resetDevicesUname := resetDevicesCmd.String("username", "", "The account's username or email.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addaccount":
		if err := addAccountCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addAccountUname == "" || *addAccountEmail == "" {
			addAccountCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addAccountCmd.Usage()
			return errHelp
		}
		return cli.addAccount(*addAccountUname, *addAccountEmail, *addAccountName, string(pwd), *addAccountAdmin)
	case "resetdevices":
		if err := resetDevicesCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetDevicesUname == "" {
			resetDevicesCmd.Usage()
			return errHelp
		}
		return cli.resetDevices(*resetDevicesUname)
	default:
		cli.printUsage()
		return errHelp
	}
}
