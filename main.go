// The main package for the catalogd executable.
package main

import (
	"github.com/JakeFAU/media-catalog-crawler/cmd"
)

func main() {
	cmd.Execute()
}
