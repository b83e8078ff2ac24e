// Command sitecrawler crawls every same-host page reachable from a seed URL.
package main

import (
	"github.com/JakeFAU/sitecrawler/cmd"
)

func main() {
	cmd.Execute()
}
