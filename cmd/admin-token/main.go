// Command admin-token mints a bearer token for the management endpoints.
//
// Usage:
//
//	ADMIN_JWT_SECRET=... admin-token --subject ops --scopes slots:read,slots:write --ttl 12h
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"slotgateway/internal/auth"
)

var (
	subject = flag.String("subject", "admin", "Token subject (operator name)")
	scopes  = flag.String("scopes", auth.ScopeRead+","+auth.ScopeWrite, "Comma-separated scopes")
	ttl     = flag.Duration("ttl", auth.DefaultTokenExpiry, "Token lifetime")
)

func main() {
	flag.Parse()

	cfg, err := auth.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "admin-token:", err)
		os.Exit(2)
	}

	var list []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		fmt.Fprintln(os.Stderr, "admin-token: at least one scope is required")
		os.Exit(2)
	}

	token, expires, err := auth.NewJWTManager(cfg).Issue(*subject, list, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "admin-token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
}
