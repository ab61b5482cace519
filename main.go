package main

import "github.com/open1s/aisbot/cmd"

func main() {
	cmd.Execute()
}
