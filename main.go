package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/alexburke/dupfinder/cmd"
)

func main() {
	// A missing .env is fine; config falls back to the process environment.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
