package main

import (
	"os"

	ccmetercmder "github.com/sigmetric/ccmeter/cmd/ccmeter"
)

func main() {
	cmd := ccmetercmder.NewCCMeterCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
