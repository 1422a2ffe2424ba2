package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Optional .env for WARDEN_ overrides; absence is fine.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
