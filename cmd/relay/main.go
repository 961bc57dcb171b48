// Command relay serves the chat proxy on net/http with the chi router.
package main

import (
	"chatproxy/internal/app"
	"chatproxy/internal/config"
)

func main() {
	app.Run(config.Relay)
}
