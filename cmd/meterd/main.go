// Package main is the entry point for meterd.
package main

func main() {
	Execute()
}
