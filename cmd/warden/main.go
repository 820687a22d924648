// warden governs agent tool calls: classify, approve, execute, audit.
package main

import "github.com/ppiankov/warden/internal/cli"

func main() {
	cli.Execute()
}
