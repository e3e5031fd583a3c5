// Command admintoken prints a signed admin API token for an operator id.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"signalhub/invitehub/internal/config"
	jwtpkg "signalhub/invitehub/pkg/jwt"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	adminFlag := flag.String("admin", "", "admin id (UUID); a new one is generated when empty")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	adminID := uuid.New()
	if *adminFlag != "" {
		adminID, err = uuid.Parse(*adminFlag)
		if err != nil {
			log.Fatalf("invalid admin id: %v", err)
		}
	}

	manager, err := jwtpkg.NewManager(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)
	if err != nil {
		log.Fatalf("failed to init jwt manager: %v", err)
	}
	token, err := manager.GenerateAdminToken(adminID)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}

	listed := false
	for _, id := range cfg.Admin.UserIDs {
		if id == adminID.String() {
			listed = true
			break
		}
	}
	if !listed {
		fmt.Fprintf(os.Stderr, "warning: %s is not in admin.user_ids, the API will answer 403\n", adminID)
	}

	fmt.Fprintf(os.Stderr, "admin id: %s\n", adminID)
	fmt.Println(token)
}
