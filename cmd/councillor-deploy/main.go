package main

import "github.com/councillor-bot/councillor-deploy/cmd/councillor-deploy/cmd"

func main() {
	cmd.Execute()
}
