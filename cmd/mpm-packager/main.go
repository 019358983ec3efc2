package main

import "github.com/myprojectmanager/mpm-release/cmd/mpm-packager/cmd"

func main() {
	cmd.Execute()
}
