package main

import (
	"os"

	"github.com/cybercore/ldap-sync/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
