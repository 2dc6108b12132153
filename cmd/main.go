// cmd/main.go
package main

import (
	"book-club-api/app"
)

// @title           Book Club API
// @version         1.0
// @description     Session and token-lifecycle service for the book-club platform.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app.Run()
}
