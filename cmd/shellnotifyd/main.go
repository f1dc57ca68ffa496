// Package main provides the CLI entrypoint for shellnotifyd.
package main

func main() {
	Execute()
}
