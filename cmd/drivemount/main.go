// Command drivemount mounts a remote cloud document store as a local
// filesystem, wiring together the Sync Engine (internal/engine), its Remote
// API Facade (internal/remote), and the FUSE glue (internal/fusefront). It
// follows the teacher's cmd/onedriver/main.go almost line for line: same
// flag set, same config-load-then-override order, same console logger setup.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
	"go.etcd.io/bbolt"

	"github.com/drivefs-project/drivefs/cmd/common"
	"github.com/drivefs-project/drivefs/internal/engine"
	"github.com/drivefs-project/drivefs/internal/fusefront"
	"github.com/drivefs-project/drivefs/internal/mimemap"
	"github.com/drivefs-project/drivefs/internal/remote"
	"github.com/drivefs-project/drivefs/internal/shadow"
)

// driveRootID is the well-known identifier Drive uses for "my drive"'s root
// folder; Files.Get("root") resolves it, so the engine never has to learn it
// from a config file.
const driveRootID = "root"

func usage() {
	fmt.Printf(`drivemount - mount a cloud document store as a local filesystem.

This mounts your cloud drive at the given mountpoint. Unless an index
snapshot from a previous run is restored, mounting crawls the whole drive
and downloads every file into a private shadow directory. The remote must
be reachable for any operation that isn't already cached.

Usage: drivemount [options] <mountpoint>

Valid options:
`)
	flag.PrintDefaults()
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	authOnly := flag.BoolP("auth-only", "a", false, "Authenticate and then exit.")
	headless := flag.BoolP("no-browser", "n", false,
		"Print the authorization URL without the hint to open it in a browser. "+
			"No browser is launched either way; paste the \"code\" parameter "+
			"of the redirect URL into the terminal.")
	configPath := flag.StringP("config-file", "f", common.DefaultConfigPath(),
		"A YAML-formatted configuration file.")
	logLevel := flag.StringP("log", "l", "",
		"Set logging verbosity. One of: "+fmt.Sprint(common.LogLevels()))
	cacheDir := flag.StringP("cache-dir", "c", "",
		"Override the shadow cache parent directory.")
	wipeCache := flag.BoolP("wipe-cache", "w", false,
		"Delete the cache directory for this mountpoint, then exit.")
	debugFUSE := flag.BoolP("debug", "d", false, "Log FUSE kernel traffic.")
	versionFlag := flag.BoolP("version", "v", false, "Display program version.")
	help := flag.BoolP("help", "h", false, "Display this help message.")
	flag.Usage = usage
	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Println("drivemount", common.Version())
		os.Exit(0)
	}

	config := common.LoadConfig(*configPath)
	if *cacheDir != "" {
		config.CacheDir = *cacheDir
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	zerolog.SetGlobalLevel(common.StringToLevel(config.LogLevel))

	if len(flag.Args()) == 0 {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nNo mountpoint provided, exiting.")
		os.Exit(1)
	}
	mountpoint := flag.Arg(0)
	st, err := os.Stat(mountpoint)
	if err != nil || !st.IsDir() {
		log.Fatal().Str("mountpoint", mountpoint).Msg("Mountpoint did not exist or was not a directory.")
	}
	entries, _ := os.ReadDir(mountpoint)
	if len(entries) > 0 {
		log.Fatal().Str("mountpoint", mountpoint).Msg("Mountpoint must be empty.")
	}

	absMountpoint, _ := filepath.Abs(mountpoint)
	mountName := unit.UnitNamePathEscape(absMountpoint)
	runDir := filepath.Join(config.CacheDir, mountName)

	if *wipeCache {
		log.Info().Str("path", runDir).Msg("Removing cache.")
		os.RemoveAll(runDir)
		os.Exit(0)
	}
	if err := os.MkdirAll(runDir, 0700); err != nil {
		log.Fatal().Err(err).Str("path", runDir).Msg("Could not create cache directory.")
	}

	appDir := common.DefaultAppDir()
	os.MkdirAll(appDir, 0700)
	tokenPath := filepath.Join(appDir, "token.json")

	oauthConfig, err := remote.LoadClientCredentials(config.CredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", config.CredentialsFile).
			Msg("Could not load OAuth client credentials.")
	}

	ctx := context.Background()
	tok, err := remote.Authenticate(ctx, oauthConfig, tokenPath, func(authURL string) string {
		return promptForAuthCode(authURL, *headless)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not obtain OAuth credentials.")
	}
	if *authOnly {
		os.Exit(0)
	}

	mimes, err := mimemap.Load(filepath.Join(appDir, "types.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load MIME translation table.")
	}

	api, err := remote.NewDriveClient(ctx, oauthConfig, tok, mimes)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not construct remote client.")
	}

	shadowDir := filepath.Join(os.TempDir(), "drivefs-"+mountName)
	shadowCache, err := shadow.New(shadowDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not initialize shadow cache. " +
			"A stale directory from a previous run may need removing by hand.")
	}

	eng := engine.New(api, shadowCache, mimes, driveRootID)

	db, err := bbolt.Open(filepath.Join(runDir, "state.db"), 0600, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open local state database.")
	}
	defer db.Close()
	if err := eng.AttachUploadDB(db); err != nil {
		log.Fatal().Err(err).Msg("Could not attach upload state database.")
	}

	restored, err := eng.RestoreSnapshot(db)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read index snapshot; falling back to a full crawl.")
	}
	if restored {
		log.Info().Msg("Resumed from on-disk index snapshot, skipping crawl.")
	} else {
		log.Info().Msg("Performing initial crawl of remote drive...")
		if err := eng.Crawl(ctx); err != nil {
			log.Fatal().Err(err).Msg("Initial crawl failed.")
		}
	}

	loopCtx, cancelLoops := context.WithCancel(ctx)
	if !config.DisableBackgroundRefresh {
		go eng.RefreshLoop(loopCtx, config.RefreshInterval)
	}
	go eng.UploadRetryLoop(loopCtx, config.UploadRetryInterval)

	server, err := fusefront.Mount(eng, mountpoint, *debugFUSE)
	if err != nil {
		log.Fatal().Err(err).Str("mountpoint", mountpoint).
			Msg("Mount failed. Is the mountpoint already in use? " +
				"(Try running \"fusermount3 -uz " + mountpoint + "\")")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go unmountHandler(sigChan, server, shadowCache, eng, db, cancelLoops)

	log.Info().Str("cachePath", shadowDir).Str("mountpoint", absMountpoint).
		Msg("Serving filesystem.")
	server.Serve()
}

// promptForAuthCode implements the OAuth redirect step the spec leaves
// external (§1: "the OAuth flow... is external"): print the authorization
// URL and read the resulting code back from the terminal, the same
// headless flow as the teacher's getAuthCodeHeadless.
func promptForAuthCode(authURL string, headless bool) string {
	if !headless {
		log.Info().Msg("Open the following URL in a browser to authorize drivemount:")
	}
	fmt.Printf("\n%s\n\n", authURL)
	fmt.Println("Paste the \"code\" query parameter from the redirect URL here:")
	var code string
	fmt.Scanln(&code)
	return code
}

// unmountHandler blocks until a termination signal arrives, then unmounts
// cleanly and tears down the shadow cache, mirroring the teacher's
// fs.UnmountHandler in fs/signal_handlers.go. It also snapshots the index
// into the state database before closing it, so the next mount can
// RestoreSnapshot instead of re-crawling.
func unmountHandler(sigChan <-chan os.Signal, server interface{ Unmount() error }, shadowCache *shadow.Cache, eng *engine.Engine, db *bbolt.DB, cancelLoops context.CancelFunc) {
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Signal received, unmounting filesystem.")
	cancelLoops()
	if err := server.Unmount(); err != nil {
		log.Error().Err(err).Msg("Failed to unmount cleanly; run \"fusermount3 -uz <mountpoint>\" by hand.")
	}
	if err := eng.PersistSnapshot(db); err != nil {
		log.Error().Err(err).Msg("Failed to persist index snapshot; next mount will do a full crawl.")
	}
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close state database.")
	}
	if err := shadowCache.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to remove shadow cache directory.")
	}
	os.Exit(0)
}
