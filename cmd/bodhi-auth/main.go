// Command bodhi-auth runs the Bodhi login flow from a terminal: it detects
// the local bridge, negotiates resource access, opens the browser at the
// authorization URL, and completes the PKCE code exchange on a loopback
// /callback listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/bodhiapps/bodhi-auth/internal/authstate"
	"github.com/bodhiapps/bodhi-auth/internal/bridge"
	"github.com/bodhiapps/bodhi-auth/internal/callback"
	"github.com/bodhiapps/bodhi-auth/internal/config"
	"github.com/bodhiapps/bodhi-auth/internal/log"
	"github.com/bodhiapps/bodhi-auth/internal/oauth"
	"github.com/bodhiapps/bodhi-auth/internal/platform"
	"github.com/bodhiapps/bodhi-auth/internal/store"
)

var BuildVersion = "dev"

const loginTimeout = 5 * time.Minute

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: bodhi-auth [flags] <login|logout|status>\n\n")
	flag.PrintDefaults()
}

func main() {
	version := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *version {
		fmt.Println(BuildVersion)
		return
	}

	command := flag.Arg(0)
	if command == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	st, err := newStore(cfg)
	if err != nil {
		log.LogError("Failed to open session store: %v", err)
		os.Exit(1)
	}
	session := oauth.NewSessionManager(cfg, st)

	switch command {
	case "login":
		if err := runLogin(cfg, session); err != nil {
			log.LogError("Login failed: %v", err)
			os.Exit(1)
		}
	case "logout":
		session.Logout()
		fmt.Println("Logged out")
	case "status":
		runStatus(session)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreKindMemory:
		return store.NewMemoryStore(), nil
	case config.StoreKindFile:
		path, err := store.DefaultFilePath()
		if err != nil {
			return nil, err
		}
		return store.NewFileStore(path)
	default:
		return store.NewKeyringStore(store.DefaultKeyringService), nil
	}
}

func runStatus(session *oauth.SessionManager) {
	if !session.IsAuthenticated() {
		fmt.Println("Not authenticated")
		return
	}
	if info := session.GetUserInfo(); info != nil {
		fmt.Printf("Authenticated as %s (role %s)\n", info.Email, info.Role)
		return
	}
	fmt.Println("Authenticated (no cached user info)")
}

func runLogin(cfg *config.Config, session *oauth.SessionManager) error {
	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()

	locator := bridge.NewHTTPLocator(cfg.BridgeURL, string(cfg.BridgeToken))
	monitor := platform.NewMonitor(locator, cfg.DetectTimeout)
	status := monitor.Run(ctx)
	if status.State != platform.StateReady {
		return status.Err
	}

	coordinator := authstate.NewCoordinator(session, authstate.NavigatorFunc(openBrowser))
	defer coordinator.Close()
	coordinator.HandleBridgeReady(ctx, status.Client)

	if snap := coordinator.Snapshot(); snap.Status == authstate.StatusAuthenticated {
		fmt.Printf("Already authenticated as %s\n", snap.UserInfo.Email)
		return nil
	}

	done := make(chan callback.Result, 1)
	handler := callback.NewHandler(session, func(r callback.Result) { done <- r })

	listener, err := listenOnOrigin(cfg.Origin)
	if err != nil {
		return fmt.Errorf("failed to listen for the callback: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/callback", handler)
	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError("Callback server error: %v", err)
		}
	}()
	defer server.Close()

	if err := coordinator.Login(ctx); err != nil {
		return err
	}
	fmt.Println("Waiting for the browser to complete the login...")

	select {
	case <-ctx.Done():
		return fmt.Errorf("login timed out: %w", ctx.Err())
	case result := <-done:
		if failed, ok := result.(callback.Failed); ok {
			return failed.Err
		}
	}

	coordinator.CompleteLogin(ctx)
	snap := coordinator.Snapshot()
	switch snap.Status {
	case authstate.StatusAuthenticated:
		fmt.Printf("Authenticated as %s (role %s)\n", snap.UserInfo.Email, snap.UserInfo.Role)
		return nil
	case authstate.StatusError:
		return snap.Err
	default:
		return fmt.Errorf("login finished in unexpected state %q", snap.Status)
	}
}

func listenOnOrigin(origin string) (net.Listener, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "80")
	}
	return net.Listen("tcp", host)
}

// openBrowser performs the full top-level navigation to the authorization
// URL using the platform's URL opener.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
