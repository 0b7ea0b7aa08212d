// Package main is the entry point for the recipe API.
//
// The main package stays minimal: all commands live in internal/cli, all
// request handling in internal/server and below.
//
//	go run ./cmd/server serve --wait-for-db
package main

import "github.com/sakif/recipe-api/internal/cli"

func main() {
	cli.Execute()
}
