package main

import "github.com/killallgit/sensitive-data-api/cmd"

// @title           Sensitive Data Classifier API
// @version         1.0.0
// @description     Detects sensitive entities in text with patterns and a statistical model, and improves the model from user feedback
// @contact.name    API Support
// @contact.url     https://github.com/killallgit/sensitive-data-api
// @license.name    MIT
// @license.url     https://opensource.org/licenses/MIT
// @host            localhost:8080
// @BasePath        /
// @schemes         http https
// @securityDefinitions.apikey BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cmd.Execute()
}
