// Package main writes a self-signed development certificate for the
// Legal Lens server to the "certs" directory.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atinyakov/LegalLens/internal/certgen"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("certgen", flag.ContinueOnError)
	dir := fs.String("dir", "certs", "output directory")
	hosts := fs.String("hosts", strings.Join(certgen.DefaultHosts, ","), "comma-separated host names and IPs")
	validFor := fs.Duration("valid-for", 365*24*time.Hour, "certificate lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	certPath := filepath.Join(*dir, "server.crt")
	keyPath := filepath.Join(*dir, "server.key")
	if err := certgen.WriteSelfSigned(certPath, keyPath, splitHosts(*hosts), *validFor); err != nil {
		return err
	}
	fmt.Printf("Certificate written to %s and %s\nStart the server with -tls-cert %s -tls-key %s\n", certPath, keyPath, certPath, keyPath)
	return nil
}

func splitHosts(s string) []string {
	var out []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}
