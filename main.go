/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package main

import "github.com/Darshan399-cloud/Kerala-Farm-Assistant/cmd"

func main() {
	cmd.Execute()
}
