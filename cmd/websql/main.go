// Command websql runs Web SQL style transactions against local SQLite
// databases.
package main

import "github.com/mesh-intelligence/websql/internal/cli"

func main() {
	cli.Execute()
}
