package main

import "github.com/myprojectmanager/mpm-release/cmd/mpm-fetcher/cmd"

func main() {
	cmd.Execute()
}
