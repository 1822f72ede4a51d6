// Command tokengen mints a development bearer token for the teamsync API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/server/auth"
)

func main() {
	secret := flag.String("secret", "secretKey", "HMAC secret shared with the server")
	user := flag.String("user", "", "user id")
	name := flag.String("name", "", "display name (defaults to the user id)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token validity")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}

	tok, err := auth.GenerateToken(auth.Identity{UserID: *user, DisplayName: *name}, []byte(*secret), *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
