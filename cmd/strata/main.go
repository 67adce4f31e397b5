package main

import (
	"github.com/joho/godotenv"

	"github.com/strata-search/strata/internal/adapters/driving/cli"
)

func main() {
	// Load a local .env if present; real environment wins.
	_ = godotenv.Load()
	cli.Execute()
}
