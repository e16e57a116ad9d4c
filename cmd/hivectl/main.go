// Package main implements the hivectl admin console CLI.
package main

func main() {
	Execute()
}
