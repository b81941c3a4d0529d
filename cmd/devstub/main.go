package main

import (
	"flag"
	"log"
	"net/http"
	"path/filepath"

	"github.com/go-chi/httplog"

	"sponsorlink/internal/devstub"
	"sponsorlink/internal/store"
)

var (
	addr    = flag.String("addr", ":8090", "address to listen on")
	secret  = flag.String("secret", "devstub-secret", "jwt signing secret")
	dataDir = flag.String("data-dir", "devstub-data", "directory for uploaded files")
)

func main() {
	flag.Parse()
	logger := httplog.NewLogger("devstub", httplog.Options{JSON: false})

	artifacts, err := store.OpenArtifactStore(filepath.Join(*dataDir, "artifacts.db"), filepath.Join(*dataDir, "files"))
	if err != nil {
		log.Fatalf("open artifact store: %v", err)
	}
	defer artifacts.Close()

	srv := devstub.New(devstub.Options{Secret: *secret, Artifacts: artifacts})
	seedAccounts(srv)

	log.Printf("devstub running at %s", *addr)
	if err := http.ListenAndServe(*addr, httplog.RequestLogger(logger)(srv.Router())); err != nil {
		log.Fatalf("devstub stopped: %v", err)
	}
}

// seedAccounts registers a fixed athlete/brand pair so two clients can talk
// out of the box.
func seedAccounts(srv *devstub.Server) {
	seeds := []struct {
		email, password, id, role string
	}{
		{"athlete@local.test", "athlete", "athlete-1", "athlete"},
		{"brand@local.test", "brand", "brand-7", "brand"},
	}
	for _, s := range seeds {
		if err := srv.AddAccount(s.email, s.password, s.id, s.role); err != nil {
			log.Fatalf("seed account %s: %v", s.email, err)
		}
		log.Printf("seeded account %s (%s)", s.email, s.id)
	}
}
