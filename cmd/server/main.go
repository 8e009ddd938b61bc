package main

import (
	"github.com/spf13/cobra"
)

const version = "v1.0.0"

func main() {
	cobra.CheckErr(newRootCmd().Execute())
}
