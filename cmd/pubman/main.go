package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/pubman/internal/app"
	"github.com/joho/godotenv"
)

func main() {
	// .envはローカル開発用。存在しなくてもエラーにしない
	godotenv.Load()

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
