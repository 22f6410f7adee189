package main

import (
	"fmt"
	"os"

	"github.com/example/reviewalarm/cmd"
)

var (
	version = "dev"
	commit  string
)

func main() {
	err := cmd.Execute(os.Args, cmd.BuildArgs{
		Version: version,
		Commit:  commit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "reviewalarm: %s\n", err.Error())
		os.Exit(1)
	}
}
