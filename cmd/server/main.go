package main

import (
	"github.com/joho/godotenv"
	"github.com/ofirdahan/poalim-chat/cmd"
)

func main() {
	_ = godotenv.Load()
	cmd.Execute()
}
