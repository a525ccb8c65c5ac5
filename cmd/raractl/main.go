// Command raractl runs Rara's document pipeline from the command line.
//
// Usage:
//
//	./raractl extract contract.pdf
//	./raractl analyze contract.docx --title "Perjanjian Sewa" --output json
//	./raractl fetch boxcnXXXX --save contract.pdf
//	./raractl send '{"file_token":"boxcnXXXX"}'
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already printed the error
		os.Exit(1)
	}
}
