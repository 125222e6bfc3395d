// Command dsgctl talks to a miner's dsg_local_commands endpoint and can run a
// demo device router.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
