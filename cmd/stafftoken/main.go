// Command stafftoken mints a staff bearer token signed with JWT_SIGNING_KEY.
// Staff sign-in lives in the staff directory; this is for operators and
// local development.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	jwttoken "esfe/internal/jwt_token"
	"esfe/internal/platform/config"
	id "esfe/pkg/domain"
)

func main() {
	staff := flag.String("staff", "", "staff id (uuid); a random one when empty")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	staffID := id.StaffID(uuid.New())
	if *staff != "" {
		parsed, err := id.ParseStaffID(*staff)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid staff id: %v\n", err)
			os.Exit(2)
		}
		staffID = parsed
	}

	cfg := config.FromEnv()
	token, err := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer).GenerateStaffToken(staffID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
