package main

import (
	"fmt"
	"os"

	"github.com/openstack-charmers/charm-recipe-tool/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
)

// main executes the charm-recipe-tool command-line application.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		os.Exit(1)
	}
}
