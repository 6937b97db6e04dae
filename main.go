/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/oshop/backoffice/cmd"

func main() {
	cmd.Execute()
}
