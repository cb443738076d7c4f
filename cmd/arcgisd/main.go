// Command arcgisd hosts the ArcGIS plugin bridge behind a stdio frame stream.
package main

import (
	"fmt"
	"os"

	"github.com/go-drift/arcgis/cmd/arcgisd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
