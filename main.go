// Command sitesnap serves and runs website snapshot jobs.
package main

import (
	"github.com/JakeFAU/sitesnap/cmd"
)

func main() {
	cmd.Execute()
}
