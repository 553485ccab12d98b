// Command intervu-server serves the intervu single-page app and offers a
// small CLI over the intervu GraphQL API.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.LookupEnv).Execute(); err != nil {
		os.Exit(1)
	}
}
