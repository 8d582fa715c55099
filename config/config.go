package config

import (
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

var loadOnce sync.Once

// LoadEnv loads variables from a .env file if one is present. Real
// deployments set the environment directly, so a missing file is not fatal.
func LoadEnv() {
	loadOnce.Do(func() {
		if err := godotenv.Load(); err != nil {
			if !os.IsNotExist(err) {
				log.Printf("could not load .env file: %v", err)
			}
		}
	})
}
