/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/ssargent/freyjadb/cmd/btreectl/cmd"

func main() {
	cmd.Execute()
}
