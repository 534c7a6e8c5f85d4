/*
Copyright © 2026 PGLENS CONTRIBUTORS
*/
package main

import "github.com/pglens/pglens/cmd"

func main() {
	cmd.Execute()
}
