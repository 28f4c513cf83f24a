package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phillip-england/timecard/internal/timecardcli"
)

func main() {
	if err := timecardcli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, timecardcli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			timecardcli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
