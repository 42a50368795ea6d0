// devpulse is the command-line companion to the capture agent.
package main

import "github.com/strongdm/devpulse-go/internal/cli"

func main() {
	cli.Execute()
}
