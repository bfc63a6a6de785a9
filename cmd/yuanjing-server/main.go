package main

import (
	"flag"
	"log"
	"net/http"
	"runtime"

	"github.com/Tenerife-Q/yuanjing-core/internal/httpapi"
	"github.com/Tenerife-Q/yuanjing-core/internal/identity"
	"github.com/Tenerife-Q/yuanjing-core/internal/kvstore"
	"github.com/Tenerife-Q/yuanjing-core/internal/mmrstore"
	"github.com/Tenerife-Q/yuanjing-core/internal/orchestrator"
	"github.com/Tenerife-Q/yuanjing-core/internal/registry"
	"github.com/Tenerife-Q/yuanjing-core/internal/sth"
	"github.com/Tenerife-Q/yuanjing-core/internal/workerpool"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	dataDir := flag.String("data-dir", "./data/kv", "directory for the embedded KV store")
	keyPath := flag.String("identity-key", "./data/identity.key", "path to the Ed25519 seed file")
	workers := flag.Int("workers", runtime.NumCPU(), "number of blocking-pool workers")
	flag.Parse()

	kv, err := kvstore.Open(*dataDir)
	if err != nil {
		log.Fatalf("open kv store: %v", err)
	}
	defer kv.Close()

	reg, err := registry.Open(kv)
	if err != nil {
		log.Fatalf("open whitelist registry: %v", err)
	}

	mmr, err := mmrstore.Open(kv)
	if err != nil {
		log.Fatalf("open mmr store: %v", err)
	}

	id, err := identity.LoadOrGenerate(*keyPath)
	if err != nil {
		log.Fatalf("load identity: %v", err)
	}

	pool := workerpool.New(*workers)
	defer pool.Close()

	orch := orchestrator.New(reg, id, mmr, pool)
	logHead := sth.New(mmr, id)

	mux := httpapi.NewMux(httpapi.HandlerOptions{
		Registry:     reg,
		MMR:          mmr,
		Orchestrator: orch,
		LogHead:      logHead,
		Logger:       log.Default(),
	})

	log.Printf("starting yuanjing-core server on %s (leaf_count=%d)", *addr, mmr.LeafCount())
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
