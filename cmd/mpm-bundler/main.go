package main

import "github.com/myprojectmanager/mpm-release/cmd/mpm-bundler/cmd"

func main() {
	cmd.Execute()
}
