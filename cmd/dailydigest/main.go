package main

import "DailyDigest/internal/cli"

func main() {
	cli.Execute()
}
