package main

import (
	"github.com/joho/godotenv"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// Local .env files supply WEFT_* overrides in dev checkouts; a missing
	// file is not an error.
	_ = godotenv.Load()
	Execute()
}
