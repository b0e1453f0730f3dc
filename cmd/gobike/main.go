package main

import (
	"fmt"
	"os"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		serveMain(nil)
		return
	}

	switch args[0] {
	case "serve":
		serveMain(args[1:])
	case "login":
		loginMain(args[1:])
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("gobike [command] [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  serve  Run the bridge daemon (default)")
	fmt.Println("  login  Verify MySmartBike credentials and persist bootstrap + session state")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
