// Command aptitest-admin is the operator CLI: it issues login codes,
// imports question banks and hashes the admin code.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
