package services

import (
	"log"
	"os"
)

// LoadFile reads a whole file, returning "" if it cannot be read.
func LoadFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("static: %v", err)
		return ""
	}
	return string(data)
}

// StaticPage serves the configured HTML document. The file is read on every
// request so edits show up without a restart.
type StaticPage struct {
	Path string
}

// Contents returns the page and whether it was found.
func (p StaticPage) Contents() (string, bool) {
	html := LoadFile(p.Path)
	return html, html != ""
}

// NotFoundMessage is the plaintext body sent when the page is missing.
const NotFoundMessage = "index.html not found"
