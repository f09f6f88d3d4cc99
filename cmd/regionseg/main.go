package main

import "github.com/MeKo-Tech/regionseg/cmd/regionseg/cmd"

func main() {
	cmd.Execute()
}
