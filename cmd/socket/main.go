// Command socket serves the chat proxy on a hand-framed TCP listener.
package main

import (
	"chatproxy/internal/app"
	"chatproxy/internal/config"
)

func main() {
	app.Run(config.Socket)
}
