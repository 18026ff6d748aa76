package media

import (
	"context"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"
	"github.com/hashicorp/go-multierror"

	"github.com/lewtec/anotador/internal/domain"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsMedia reports whether name is an image or a video the ingester picks up
func IsMedia(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))] || IsVideo(name)
}

// Report summarizes one ingestion run
type Report struct {
	Images    int
	Videos    int
	Unchanged int
	Skipped   int
	Failed    int
}

// Ingester walks a filesystem and records every media file it finds
type Ingester struct {
	fs   billy.Filesystem
	repo domain.MediaRepository
	jobs int
}

func NewIngester(fs billy.Filesystem, repo domain.MediaRepository, jobs int) *Ingester {
	if jobs < 1 {
		jobs = 1
	}
	return &Ingester{fs: fs, repo: repo, jobs: jobs}
}

// Ingest records the media under root. Files that fail are reported
// together in the returned error while the rest are still ingested.
func (i *Ingester) Ingest(ctx context.Context, root string) (*Report, error) {
	var (
		mu     sync.Mutex
		report Report
		errs   *multierror.Error
		wg     sync.WaitGroup
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failed++
		errs = multierror.Append(errs, err)
	}

	queue := make(chan string, 10) // pipeline
	worker := func() {
		defer wg.Done()
		for filename := range queue {
			existing, err := i.repo.GetByPath(ctx, filename)
			if err != nil {
				fail(err)
				continue
			}
			item, err := Describe(i.fs, filename)
			if err != nil {
				fail(err)
				continue
			}
			if existing != nil && existing.SHA256 == item.SHA256 {
				mu.Lock()
				report.Unchanged++
				mu.Unlock()
				continue
			}
			if _, err := i.repo.Create(ctx, *item); err != nil {
				fail(err)
				continue
			}
			log.Printf("ingest: found %s '%s'", item.Identifier.Type, filename)
			mu.Lock()
			if item.Identifier.Type == domain.MediaVideo {
				report.Videos++
			} else {
				report.Images++
			}
			mu.Unlock()
		}
	}
	for n := 0; n < i.jobs; n++ {
		wg.Add(1)
		go worker()
	}

	walkErr := util.Walk(i.fs, root, func(filename string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			return nil
		}
		if !IsMedia(filename) {
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			return nil
		}
		queue <- strings.TrimPrefix(filepath.ToSlash(filename), "/")
		return nil
	})
	close(queue)
	wg.Wait()

	if walkErr != nil {
		errs = multierror.Append(errs, walkErr)
	}
	return &report, errs.ErrorOrNil()
}
