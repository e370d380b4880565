// dimadb - proteomics search-result loader
package main

import (
	"os"

	"github.com/ChrisMcGann/dimadb/cmd/dimadb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
