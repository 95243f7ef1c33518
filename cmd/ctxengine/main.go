// Command ctxengine runs the context engine's HTTP surface and
// generation queue, bootstraps a fresh workspace ("init"), or drives a
// one-shot recursive generation plan from the CLI ("plan").
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/codeready-toolchain/ctxengine/pkg/agentreg"
	"github.com/codeready-toolchain/ctxengine/pkg/api"
	"github.com/codeready-toolchain/ctxengine/pkg/bootstrap"
	"github.com/codeready-toolchain/ctxengine/pkg/config"
	"github.com/codeready-toolchain/ctxengine/pkg/ctxapi"
	"github.com/codeready-toolchain/ctxengine/pkg/frame"
	"github.com/codeready-toolchain/ctxengine/pkg/heads"
	"github.com/codeready-toolchain/ctxengine/pkg/ids"
	"github.com/codeready-toolchain/ctxengine/pkg/ignore"
	"github.com/codeready-toolchain/ctxengine/pkg/locks"
	"github.com/codeready-toolchain/ctxengine/pkg/node"
	"github.com/codeready-toolchain/ctxengine/pkg/plan"
	"github.com/codeready-toolchain/ctxengine/pkg/queue"
	"github.com/codeready-toolchain/ctxengine/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			runInit(os.Args[2:])
			return
		case "plan":
			runPlan(os.Args[2:])
			return
		}
	}
	runServe(os.Args[1:])
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	workspace := fs.String("workspace", ".", "Path to the workspace root to bootstrap")
	configDir := fs.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to write engine.yaml")
	fs.Parse(args)

	res, err := bootstrap.Init(*workspace, *configDir)
	if err != nil {
		log.Fatalf("init failed: %v", err)
	}
	for _, c := range res.Created {
		fmt.Printf("created %s\n", c)
	}
	for _, s := range res.Skipped {
		fmt.Printf("skipped %s (already exists)\n", s)
	}
}

// engine bundles every component cmd/ctxengine wires together, shared
// between the "serve" and "plan" entry points so the dependency graph
// is assembled in exactly one place.
type engine struct {
	Config  *config.Config
	API     *ctxapi.Service
	Queue   *queue.Queue
	Matcher *ignore.Matcher
}

func wireEngine(ctx context.Context, configDir string) (*engine, func(), error) {
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing configuration: %w", err)
	}

	nodes, frames, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening stores: %w", err)
	}

	headsPath, err := bootstrap.HeadsPath(cfg.Workspace)
	if err != nil {
		closeStores()
		return nil, nil, fmt.Errorf("resolving head index path: %w", err)
	}
	headIndex, err := heads.Load(headsPath)
	if err != nil {
		closeStores()
		return nil, nil, fmt.Errorf("loading head index: %w", err)
	}

	agents, err := agentreg.Load(cfg.AgentConfigDir)
	if err != nil {
		closeStores()
		return nil, nil, fmt.Errorf("loading agent registry: %w", err)
	}

	svc := &ctxapi.Service{
		Nodes:     nodes,
		Frames:    frames,
		Heads:     headIndex,
		Locks:     locks.New(),
		Agents:    agents,
		HeadsPath: headsPath,
		Log:       slog.Default(),
	}

	processor := &queue.Processor{
		API:       svc,
		Agents:    agents,
		Providers: cfg.Providers,
		Files:     queue.OSFileReader{Root: cfg.Workspace},
	}
	genQueue := queue.New(cfg.Queue, processor)
	genQueue.Start(ctx)

	matcher, err := ignore.Load(cfg.Workspace)
	if err != nil {
		genQueue.Stop()
		closeStores()
		return nil, nil, fmt.Errorf("loading ignore rules: %w", err)
	}

	cleanup := func() {
		genQueue.Stop()
		closeStores()
	}
	return &engine{Config: cfg, API: svc, Queue: genQueue, Matcher: matcher}, cleanup, nil
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configDir := fs.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	fs.Parse(args)

	loadDotenv(*configDir)
	gin.SetMode(getEnv("GIN_MODE", "release"))

	log.Printf("Starting %s", version.Full())
	log.Printf("Config Directory: %s", *configDir)

	eng, cleanup, err := wireEngine(context.Background(), *configDir)
	if err != nil {
		log.Fatalf("Failed to wire engine: %v", err)
	}
	defer cleanup()

	server := &api.Server{
		API:             eng.API,
		Queue:           eng.Queue,
		HeadLookup:      eng.API.GetHead,
		GenerateTimeout: 2 * time.Minute,
		Log:             slog.Default(),
	}
	router := server.NewRouter()

	log.Printf("HTTP server listening on %s", eng.Config.ListenAddr)
	if err := router.Run(eng.Config.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// runPlan drives a one-shot recursive generation plan over a subtree
// from the CLI, without standing up the HTTP surface: useful for
// batch-regenerating context after a large filesystem change.
func runPlan(args []string) {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	configDir := fs.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	nodeIDHex := fs.String("node", "", "Root node_id to generate from (hex)")
	agentID := fs.String("agent", "", "Writer agent_id to run (defaults to config's default_agent)")
	providerName := fs.String("provider", "", "Provider name to run (defaults to config's default_provider)")
	frameType := fs.String("frame-type", "", "Frame type to generate (defaults to config's default_frame_type)")
	recursive := fs.Bool("recursive", true, "Generate for the whole subtree, not just the named node")
	force := fs.Bool("force", false, "Regenerate even if a head already exists")
	fs.Parse(args)

	loadDotenv(*configDir)

	if *nodeIDHex == "" {
		log.Fatal("plan: -node is required")
	}
	nodeID, err := ids.ParseID(*nodeIDHex)
	if err != nil {
		log.Fatalf("plan: invalid -node: %v", err)
	}

	eng, cleanup, err := wireEngine(context.Background(), *configDir)
	if err != nil {
		log.Fatalf("Failed to wire engine: %v", err)
	}
	defer cleanup()

	agent := firstNonEmpty(*agentID, eng.Config.DefaultAgent)
	provider := firstNonEmpty(*providerName, eng.Config.DefaultProvider)
	ft := firstNonEmpty(*frameType, eng.Config.DefaultFrameType)

	ctx := context.Background()
	p, err := plan.Build(ctx, eng.API.Nodes, eng.API.Heads, nodeID, *recursive, *force, agent, provider, ft, eng.Matcher)
	if err != nil {
		log.Fatalf("plan: building plan: %v", err)
	}

	executor := &plan.Executor{
		Queue:   eng.Queue,
		Timeout: 5 * time.Minute,
		Progress: func(levelIndex, totalLevels, succeeded, failed int) {
			log.Printf("level %d/%d: %d succeeded, %d failed", levelIndex+1, totalLevels, succeeded, failed)
		},
	}
	report, err := executor.Execute(ctx, p)
	if err != nil {
		log.Fatalf("plan: %v (succeeded=%d failed=%d)", err, report.TotalSucceeded(), report.TotalFailed())
	}
	log.Printf("plan %s complete: %d succeeded, %d failed", report.PlanID, report.TotalSucceeded(), report.TotalFailed())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func loadDotenv(configDir string) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}
}

// openStores chooses Postgres-backed stores when DATABASE_URL is set,
// falling back to in-memory stores otherwise so a freshly bootstrapped
// workspace (pkg/bootstrap) can be driven without standing up a
// database first.
func openStores(ctx context.Context, cfg *config.Config) (node.Store, frame.Store, func(), error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Printf("DATABASE_URL not set: using in-memory node/frame stores (state is lost on restart)")
		return node.NewMemStore(), frame.NewMemStore(), func() {}, nil
	}

	nodeStore, err := node.OpenPostgresStore(ctx, dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening node store: %w", err)
	}
	frameStore, err := frame.OpenPostgresStore(ctx, dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening frame store: %w", err)
	}
	log.Println("Connected node/frame stores to PostgreSQL")

	closeFn := func() {
		_ = nodeStore.Close()
		_ = frameStore.Close()
	}
	return nodeStore, frameStore, closeFn, nil
}
