package main

import (
	"log"

	"github.com/daffadevhosting/paypal-workers/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("paypal workers failed: %v", err)
	}
}
