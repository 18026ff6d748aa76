package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/lewtec/anotador/annotation"
)

// rootCmd initializes a project folder or serves an existing project
var rootCmd = &cobra.Command{
	Use:   "anotador [folder|config.yaml]",
	Short: "Annotate images and videos for computer vision datasets",
	Long: strings.TrimSpace(`
Serve an annotation project: draw shapes, assign labels and review model
predictions over a folder of images and videos.

Given a folder without a config.yaml, a sample project is created there and
the command exits so that it can be reviewed before serving.
`),
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		if len(args) == 1 {
			arg := args[0]
			if stat, err := os.Stat(arg); err == nil && stat.IsDir() {
				log.Printf("Detected folder argument: %s", arg)
				configFile = filepath.Join(arg, "config.yaml")
				if _, err := os.Stat(configFile); os.IsNotExist(err) {
					if err := initProject(arg); err != nil {
						return err
					}
					log.Printf("Project initialized, review %s and run again to serve it", configFile)
					return nil
				}
			} else {
				configFile = arg
			}
		}
		if configFile == "" {
			return fmt.Errorf("either provide a folder/config argument or use --config flag")
		}

		project, err := openProject(configFile)
		if err != nil {
			return err
		}
		defer project.Close()

		lock := flock.New(project.DatabasePath + ".lock")
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another anotador instance is already serving %s", project.DatabasePath)
		}
		defer lock.Unlock()

		if ingest, _ := cmd.Flags().GetBool("ingest"); ingest {
			jobs, _ := cmd.Flags().GetInt("jobs")
			if _, err := project.Ingest(cmd.Context(), jobs); err != nil {
				log.Printf("warning: some media could not be ingested: %s", err)
			}
		}

		app := &annotation.AnnotatorApp{
			Config:   project.Config,
			Database: project.DB,
			MediaFS:  project.MediaFS,
		}

		addr, _ := cmd.Flags().GetString("addr")
		log.Printf("Configuration: %s", configFile)
		log.Printf("Database: %s", project.DatabasePath)
		log.Printf("Media: %s", project.MediaDir)
		log.Printf("Tasks configured: %d", len(project.Config.Tasks))
		for _, task := range project.Config.Tasks {
			log.Printf("  - %s: %s (%s)", task.ID, task.Title, task.Domain)
		}
		log.Printf("Starting server on: %s", addr)

		return serve(cmd.Context(), addr, app.GetHTTPHandler())
	},
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Printf("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.Flags().StringP("config", "c", "", "Config file of the project")
	rootCmd.Flags().StringP("addr", "a", ":8080", "Address to bind the webserver")
	rootCmd.Flags().Bool("ingest", true, "Ingest new media before serving")
	rootCmd.Flags().IntP("jobs", "j", 4, "Parallel workers for ingestion")
}
