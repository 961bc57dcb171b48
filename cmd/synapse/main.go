// Command synapse serves the Synapse persona build: templated prompt, reshaped reply, port 8081.
package main

import (
	"chatproxy/internal/app"
	"chatproxy/internal/config"
)

func main() {
	app.Run(config.Synapse)
}
