package main

import (
	"os"

	"sentilytics/cmd/handlers"
	"sentilytics/internal/logger"
)

func main() {
	// Logs go to stderr so analyze output on stdout stays clean.
	logger.InitWithWriter(os.Stderr)
	handlers.Execute()
}
