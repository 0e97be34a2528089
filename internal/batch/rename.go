package batch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kuailefengnan2024/Finetune/internal/utils"
)

// Renamer gives the images of a directory sequential names
type Renamer struct {
	Prefix     string
	Extensions []string
}

// NewRenamer creates a Renamer producing names like image_001.jpg
func NewRenamer(prefix string, exts []string) *Renamer {
	if len(exts) == 0 {
		exts = utils.DefaultImageExtensions
	}
	return &Renamer{Prefix: prefix, Extensions: exts}
}

// Run renames the images directly inside dir, in name order, to
// Prefix + 001, 002, ... keeping each file's extension. A file is skipped
// when its new name is already taken by another file.
func (r *Renamer) Run(dir string) (*Summary, error) {
	if !utils.DirExists(dir) {
		return nil, fmt.Errorf("directory %q does not exist", dir)
	}

	files, err := utils.ListImageFiles(dir, r.Extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	summary := &Summary{Total: len(files)}
	if len(files) == 0 {
		log.Printf("no image files found in %s", dir)
		return summary, nil
	}

	for i, oldPath := range files {
		name := utils.SequentialName(r.Prefix, i+1, filepath.Ext(oldPath))
		newPath := filepath.Join(dir, name)

		if newPath == oldPath {
			summary.succeed()
			continue
		}
		if _, err := os.Lstat(newPath); err == nil {
			log.Printf("skipped %s: %s already exists", filepath.Base(oldPath), name)
			summary.skip()
			continue
		}

		if err := os.Rename(oldPath, newPath); err != nil {
			log.Printf("failed %s: %v", filepath.Base(oldPath), err)
			summary.fail(oldPath, err)
			continue
		}
		log.Printf("renamed %s -> %s", filepath.Base(oldPath), name)
		summary.succeed()
	}

	log.Printf("done: %s", summary)
	return summary, nil
}
