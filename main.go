package main

import (
	"github.com/joho/godotenv"
	"smartsteps/cmd"
)

func main() {
	// Local overrides for SMTP credentials live in .env; missing file is fine.
	_ = godotenv.Load()

	cmd.Execute()
}
