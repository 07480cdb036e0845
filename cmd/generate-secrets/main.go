package main

import (
	"fmt"
	"log"

	"github.com/hoponpass/daypass-backend/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("Session Token Secret Generator")
	fmt.Println("===========================================")
	fmt.Println()

	secret, err := utils.GenerateSecret(32)
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("✅ Secret generated successfully!")
	fmt.Println()
	fmt.Println("Add this to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Println()
	fmt.Println("⚠️  IMPORTANT: Rotating it signs out every verified booking session.")
	fmt.Println("===========================================")
}
