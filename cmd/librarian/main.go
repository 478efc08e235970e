package main

import (
	"github.com/joho/godotenv"

	"librarian/internal/commands"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	commands.SetVersion(version)
	commands.Execute()
}
