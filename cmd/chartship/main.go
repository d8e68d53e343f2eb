// chartship automates releases for Helm chart repositories.
package main

import (
	"os"

	"github.com/hupe1980/chartship/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
