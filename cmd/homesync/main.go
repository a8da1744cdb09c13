// homesync - offline-first sync client for the HomeManager API.
//
// Sub-commands:
//
//	homesync login              Authenticate and store tokens
//	homesync logout             Clear tokens and cached data
//	homesync status             Show session and cache status
//	homesync refresh            Force an access token refresh
//	homesync queue              List pending offline actions
//	homesync sync <resource>    Fetch a resource list (cache-aware)
//	homesync watch              Run the connectivity watcher daemon
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/AmbeyiBrian/HomeManager-sub002/internal/api"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/config"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/logging"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/metrics"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/netmon"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/queue"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/resource"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/session"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/store"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/token"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "login":
		cmdLogin(os.Args[2:])
	case "logout":
		cmdLogout(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "refresh":
		cmdRefresh(os.Args[2:])
	case "queue":
		cmdQueue(os.Args[2:])
	case "sync":
		cmdSync(os.Args[2:])
	case "watch":
		cmdWatch(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: homesync <login|logout|status|refresh|queue|sync|watch> [flags]")
}

// app bundles the wired client stack for a single command invocation.
type app struct {
	cfg     *config.Config
	client  *api.Client
	tokens  *token.Manager
	cache   *store.Router
	net     *netmon.Monitor
	queue   *queue.Queue
	engine  *resource.Engine
	session *session.Manager

	bulk *store.BulkStore
}

func buildApp() *app {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	secure, err := store.OpenSecureStore(cfg.SecureDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening secure store: %v\n", err)
		os.Exit(1)
	}
	bulk, err := store.OpenBulkStore(cfg.BulkDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening bulk store: %v\n", err)
		os.Exit(1)
	}

	router := store.NewRouter(secure, bulk)
	router.SetEnabled(cfg.OfflineCache)

	client := api.New(api.Config{
		BaseURL: strings.TrimSuffix(cfg.ServerURL, "/"),
		Timeout: cfg.RequestTimeout,
	})
	tokens := token.NewManager(secure, client)
	net := netmon.New()
	q := queue.New(router)
	engine := resource.NewEngine(client, router, net, q)
	engine.RegisterReplayHandlers()
	sess := session.NewManager(client, tokens, router, net, q)

	return &app{
		cfg:     cfg,
		client:  client,
		tokens:  tokens,
		cache:   router,
		net:     net,
		queue:   q,
		engine:  engine,
		session: sess,
		bulk:    bulk,
	}
}

func (a *app) close() {
	a.session.Close()
	a.net.Close()
	if err := a.bulk.Close(); err != nil {
		logging.Warn("closing bulk store: " + err.Error())
	}
	logging.Sync()
}

func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "Username (prompted if empty)")
	fs.Parse(args)

	a := buildApp()
	defer a.close()

	name := *username
	if name == "" {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Username: ")
		line, _ := reader.ReadString('\n')
		name = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		os.Exit(1)
	}

	res := a.session.Login(context.Background(), name, string(passwordBytes))
	if res.Err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", res.Err)
		os.Exit(1)
	}
	if res.Offline {
		fmt.Println("Login successful (offline mode, using cached profile).")
		return
	}
	state := a.session.Snapshot()
	fmt.Printf("Login successful! Logged in as %s.\n", state.User.Username)
}

func cmdLogout(args []string) {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	fs.Parse(args)

	a := buildApp()
	defer a.close()

	a.session.Logout()
	fmt.Println("Logged out successfully.")
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Parse(args)

	a := buildApp()
	defer a.close()

	a.session.Start(context.Background())
	state := a.session.Snapshot()

	fmt.Printf("Server:        %s\n", a.cfg.ServerURL)
	fmt.Printf("Authenticated: %v\n", state.Authenticated)
	if state.User != nil {
		fmt.Printf("User:          %s <%s>\n", state.User.Username, state.User.Email)
	}
	if state.CurrentOrganizationID != "" {
		fmt.Printf("Organization:  %s\n", state.CurrentOrganizationID)
	}
	fmt.Printf("Offline cache: %v\n", state.OfflineEnabled)
	fmt.Printf("Offline:       %v\n", state.Offline)
	fmt.Printf("Queued:        %d action(s)\n", len(a.queue.Pending()))
}

func cmdRefresh(args []string) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	fs.Parse(args)

	a := buildApp()
	defer a.close()

	access, err := a.tokens.Refresh(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Access token refreshed (%d bytes).\n", len(access))
}

func cmdQueue(args []string) {
	fs := flag.NewFlagSet("queue", flag.ExitOnError)
	fs.Parse(args)

	a := buildApp()
	defer a.close()

	pending := a.queue.Pending()
	if len(pending) == 0 {
		fmt.Println("No pending offline actions.")
		return
	}
	for i, action := range pending {
		fmt.Printf("%3d  %-24s %s\n", i+1, action.Type, action.EnqueuedAt.Format("2006-01-02 15:04:05"))
	}
}

func cmdSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	force := fs.Bool("force", false, "Bypass the cache and hit the server")
	pageSize := fs.Int("page-size", 0, "Server page size (0 = server default)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: homesync sync [-force] <properties|units|tenants|tickets|payments|notices>\n")
		os.Exit(1)
	}

	a := buildApp()
	defer a.close()

	ctx := context.Background()
	a.session.Start(ctx)

	opts := api.ListOptions{PageSize: *pageSize}
	var (
		data      any
		fetchErr  error
		fromCache bool
	)
	switch fs.Arg(0) {
	case "properties":
		r := a.engine.Properties(ctx, *force, opts)
		data, fetchErr, fromCache = r.Data, r.Err, r.FromCache
	case "units":
		r := a.engine.Units(ctx, *force, opts)
		data, fetchErr, fromCache = r.Data, r.Err, r.FromCache
	case "tenants":
		r := a.engine.Tenants(ctx, *force, opts)
		data, fetchErr, fromCache = r.Data, r.Err, r.FromCache
	case "tickets":
		r := a.engine.Tickets(ctx, *force, opts)
		data, fetchErr, fromCache = r.Data, r.Err, r.FromCache
	case "payments":
		r := a.engine.Payments(ctx, *force, opts)
		data, fetchErr, fromCache = r.Data, r.Err, r.FromCache
	case "notices":
		r := a.engine.Notices(ctx, *force, opts)
		data, fetchErr, fromCache = r.Data, r.Err, r.FromCache
	default:
		fmt.Fprintf(os.Stderr, "Unknown resource: %s\n", fs.Arg(0))
		os.Exit(1)
	}

	if fetchErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", fetchErr)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(data, "", "  ")
	os.Stdout.Write(out)
	fmt.Println()
	if fromCache {
		fmt.Fprintln(os.Stderr, "(served from cache)")
	}
}

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	fs.Parse(args)

	a := buildApp()
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.session.Start(ctx)
	a.net.StartProbe(ctx, a.client, a.cfg.HealthCheckPeriod)

	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(a.cfg.MetricsAddr, mux); err != nil {
				logging.Warn("metrics listener stopped: " + err.Error())
			}
		}()
		logging.Info("metrics listening on " + a.cfg.MetricsAddr)
	}

	logging.Info("watching for connectivity changes, ctrl-c to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Println("\nShutting down...")
}
