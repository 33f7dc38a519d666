//go:build !windows

package main

func attachConsole() error {
	return nil
}
