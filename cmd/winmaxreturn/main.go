// Package main is the entry point for the winmaxreturn service: it
// analyses retail inventory snapshots and recommends ND/RF stock returns
// to the central warehouse.
package main

func main() {
	Execute()
}
