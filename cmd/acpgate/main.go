// Command acpgate runs the browser-to-agent bridge gateway.
package main

import "github.com/sentineldock/acpgate/cmd/acpgate/cmd"

func main() {
	cmd.Execute()
}
