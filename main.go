// Command spider crawls sites and indexes their content hierarchy.
package main

import "github.com/JakeFAU/site-spider/cmd"

func main() {
	cmd.Execute()
}
