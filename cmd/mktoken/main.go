package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/akarpov87/taskhive/internal/flagx"
	"github.com/akarpov87/taskhive/internal/server/auth"
	"github.com/akarpov87/taskhive/internal/server/config"
)

// mktoken mints a bearer token for a user id, signed with the server's
// secret key. Used to provision sync clients and for local testing:
//
//	mktoken -user u1 -c server.json
func main() {

	cfg := config.LoadConfig()

	args := flagx.FilterArgs(os.Args[1:], []string{"-user"})

	fs := flag.NewFlagSet("mktoken", flag.ContinueOnError)
	userID := fs.String("user", "", "user id to embed in the token")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("%v", err)
	}
	if *userID == "" {
		log.Fatalf("missing -user")
	}

	token, err := auth.GenerateToken(*userID, []byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Println(token)
}
